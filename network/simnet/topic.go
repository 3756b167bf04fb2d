package simnet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

type subscriber struct {
	ch chan *types.TopicMessage
}

type topic struct {
	id        types.TopicID
	memo      string
	adminKey  string
	submitKey string
	messages  []*types.TopicMessage
	subs      map[*subscriber]struct{}
}

// deliver 非阻塞投递，缓冲区满时丢弃，不会阻塞账本锁
func (t *topic) deliver(s *subscriber, msg *types.TopicMessage, logger *logging.Logger) {
	out := *msg
	out.Contents = append([]byte(nil), msg.Contents...)
	select {
	case s.ch <- &out:
	default:
		logger.Warn("topic subscriber buffer full, message dropped",
			zap.String("topic_id", string(t.id)),
			zap.Uint64("sequence", msg.SequenceNumber),
		)
	}
}

func (t *topic) closeSubscribers() {
	for s := range t.subs {
		close(s.ch)
		delete(t.subs, s)
	}
}

func (l *Ledger) applyTopicCreateLocked(p *tx.TopicCreateParams, receipt *types.Receipt) types.Status {
	id := types.TopicID(l.allocateLocked())
	l.topics[id] = &topic{
		id:        id,
		memo:      p.Memo,
		adminKey:  p.AdminKey,
		submitKey: p.SubmitKey,
		subs:      make(map[*subscriber]struct{}),
	}
	receipt.TopicID = id
	return types.StatusSuccess
}

func (l *Ledger) applyTopicMessageLocked(p *tx.TopicMessageParams, ts time.Time, receipt *types.Receipt) types.Status {
	t, ok := l.topics[p.TopicID]
	if !ok {
		return types.StatusInvalidTopicID
	}

	msg := &types.TopicMessage{
		TopicID:            t.id,
		SequenceNumber:     uint64(len(t.messages)) + 1,
		ConsensusTimestamp: ts,
		Contents:           append([]byte(nil), p.Message...),
	}
	t.messages = append(t.messages, msg)
	for s := range t.subs {
		t.deliver(s, msg, l.logger)
	}

	receipt.TopicID = t.id
	receipt.TopicSequence = msg.SequenceNumber
	return types.StatusSuccess
}

// SubscribeTopic 订阅主题：先回放 start 之后的历史消息，再推送新消息；ctx 取消时关闭通道
func (l *Ledger) SubscribeTopic(ctx context.Context, topicID types.TopicID, start time.Time) (<-chan *types.TopicMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, client.NewClosedError()
	}
	l.settleLocked(l.now())

	t, ok := l.topics[topicID]
	if !ok {
		l.mu.Unlock()
		return nil, precheck(types.StatusInvalidTopicID, "", "topic %s not found", topicID)
	}

	sub := &subscriber{ch: make(chan *types.TopicMessage, l.cfg.TopicBuffer)}
	for _, msg := range t.messages {
		if !msg.ConsensusTimestamp.Before(start) {
			t.deliver(sub, msg, l.logger)
		}
	}
	t.subs[sub] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := t.subs[sub]; ok {
			delete(t.subs, sub)
			close(sub.ch)
		}
	}()

	return sub.ch, nil
}

// Run 周期性结算，直到 ctx 取消（服务模式下保证订阅者无需轮询也能收到消息）
func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Settle()
		}
	}
}
