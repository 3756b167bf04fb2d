package flows

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/services/schedule"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/utils"
)

// DefaultScheduleMemo 计划交易默认备注
const DefaultScheduleMemo = "Take this"

// ScheduleReport 计划交易流程结果
type ScheduleReport struct {
	ScheduleID             types.ScheduleID
	ScheduledTransactionID string
	Created                *types.Receipt
	// Executed 子交易收据；签名未齐或等待超时时为 Pending
	Executed *types.Receipt
}

// FreezeScheduledTransfer 构建计划转账（登记表第一个账户转给第二个），冻结后编码为传递串
//
// 传递串不含任何签名，可以交给另一个进程解码、检查、签名并提交。
func FreezeScheduledTransfer(ctx context.Context, env *Env, amount int64) (string, error) {
	ps, err := env.parties(2)
	if err != nil {
		return "", err
	}
	from, to := ps[0], ps[1]

	child, err := tx.NewTransfer(
		tx.LineItem{Account: from.ID, Amount: -amount},
		tx.LineItem{Account: to.ID, Amount: amount},
	)
	if err != nil {
		return "", err
	}

	frozen, err := schedule.NewService(env.Services).Freeze(&schedule.CreateRequest{
		Child:    child,
		Payer:    from.ID,
		Memo:     DefaultScheduleMemo,
		AdminKey: from.Wallet.PublicKeyHex(),
	})
	if err != nil {
		return "", err
	}

	data, err := frozen.Bytes()
	if err != nil {
		return "", err
	}
	env.logger().Info("scheduled transfer frozen",
		zap.String("tx_id", frozen.TransactionID().String()),
		zap.Int("bytes", len(data)),
	)
	return utils.EncodeHandoff(data), nil
}

// SubmitScheduledHandoff 解码传递串，由登记表第一个账户签名并提交，然后等待子交易执行
func SubmitScheduledHandoff(ctx context.Context, env *Env, handoff string, wait time.Duration) (*ScheduleReport, error) {
	ps, err := env.parties(1)
	if err != nil {
		return nil, err
	}
	data, err := utils.DecodeHandoff(handoff)
	if err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid transaction string")
	}
	received, err := tx.Decode(data)
	if err != nil {
		return nil, err
	}
	env.logger().Debug("received scheduled transaction", zap.String("summary", tx.Inspect(received).String()))

	signed, err := received.Sign(ps[0].Wallet)
	if err != nil {
		return nil, err
	}

	svc := schedule.NewService(env.Services)
	res, err := svc.SubmitFrozen(ctx, signed)
	if err != nil {
		return nil, err
	}
	report := &ScheduleReport{
		ScheduleID:             res.ScheduleID,
		ScheduledTransactionID: res.ScheduledTransactionID,
		Created:                res.Receipt,
	}
	if res.ScheduledTransactionID == "" {
		return report, nil
	}

	report.Executed, err = svc.AwaitExecution(ctx, res.ScheduledTransactionID, wait)
	return report, err
}
