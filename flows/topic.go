package flows

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/services/topic"
	"github.com/weisyn/ledger-flow-go/types"
)

// TopicReport 主题流程结果
type TopicReport struct {
	TopicID   types.TopicID
	Submitted *types.Receipt
	// Received 订阅收到的消息（从主题创建起）
	Received []*types.TopicMessage
}

// TopicRoundTrip 运营账户创建主题、提交一条消息，再从头订阅读回
//
// 订阅在收到 want 条消息或 wait 超时后结束；超时不视为错误。
func TopicRoundTrip(ctx context.Context, env *Env, message string, want int, wait time.Duration) (*TopicReport, error) {
	svc := topic.NewService(env.Services)

	created, err := svc.CreateTopic(ctx, &topic.CreateRequest{})
	if err != nil {
		return nil, err
	}
	report := &TopicReport{TopicID: created.TopicID}
	env.logger().Info("topic created", zap.String("topic_id", string(created.TopicID)))

	if message == "" {
		message = time.Now().Format(time.RFC1123)
	}
	report.Submitted, err = svc.SubmitMessage(ctx, &topic.MessageRequest{
		TopicID: created.TopicID,
		Message: []byte(message),
	})
	if err != nil {
		return report, err
	}

	subCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ch, err := svc.Subscribe(subCtx, created.TopicID, time.Time{})
	if err != nil {
		return report, err
	}
	if want <= 0 {
		want = 1
	}
	for len(report.Received) < want {
		select {
		case msg, ok := <-ch:
			if !ok {
				return report, nil
			}
			report.Received = append(report.Received, msg)
		case <-subCtx.Done():
			return report, nil
		}
	}
	return report, nil
}
