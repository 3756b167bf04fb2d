package flows

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/services/token"
	"github.com/weisyn/ledger-flow-go/types"
)

// TokenOptions 代币流程参数
type TokenOptions struct {
	Name          string
	Symbol        string
	Decimals      int32
	InitialSupply int64
	MaxSupply     int64
	// Amount 向每个接收方的转账金额
	Amount int64
	// PausedAmount 暂停期间与恢复后尝试的转账金额
	PausedAmount int64
}

// DefaultTokenOptions 默认代币参数
func DefaultTokenOptions() TokenOptions {
	return TokenOptions{
		Name:          "Barrage GIGA Token v2",
		Symbol:        "BGT",
		Decimals:      2,
		InitialSupply: 35050,
		MaxSupply:     50000,
		Amount:        2525,
		PausedAmount:  135,
	}
}

// TokenReport 代币流程结果
type TokenReport struct {
	TokenID    types.TokenID
	Treasury   types.AccountID
	Recipients []types.AccountID
	// TreasuryAfterTransfers 两笔转账后的金库余额
	TreasuryAfterTransfers int64
	// PausedStatus 暂停期间转账的收据状态
	PausedStatus types.Status
	// Balances 流程结束时各账户的代币余额
	Balances map[types.AccountID]int64
}

// TokenLifecycle 代币完整生命周期
//
// 登记表前四个账户依次为：金库、暂停密钥持有者、两个接收方。
// 创建 → 两个接收方关联 → 各转 Amount → 暂停 → 转账失败 → 恢复 → 转账成功。
func TokenLifecycle(ctx context.Context, env *Env, opts TokenOptions) (*TokenReport, error) {
	ps, err := env.parties(4)
	if err != nil {
		return nil, err
	}
	treasury, pauser, recipients := ps[0], ps[1], ps[2:]
	svc := token.NewService(env.Services)
	log := env.logger().With(zap.String("flow", "token"))

	created, err := svc.CreateToken(ctx, &token.CreateRequest{
		Name:          opts.Name,
		Symbol:        opts.Symbol,
		Decimals:      opts.Decimals,
		InitialSupply: opts.InitialSupply,
		MaxSupply:     opts.MaxSupply,
		Treasury:      treasury.ID,
		PauseKey:      pauser.Wallet.PublicKeyHex(),
	}, treasury.Wallet)
	if err != nil {
		return nil, err
	}
	if created.TokenID == "" {
		return nil, types.NewError(types.CodeNetwork, "token creation still pending").
			WithTransaction(created.Receipt.TransactionID)
	}
	report := &TokenReport{TokenID: created.TokenID, Treasury: treasury.ID}
	log.Info("token created", zap.String("token_id", string(created.TokenID)))

	for _, r := range recipients {
		if _, err := svc.Associate(ctx, r.ID, []types.TokenID{created.TokenID}, r.Wallet); err != nil {
			return report, err
		}
		report.Recipients = append(report.Recipients, r.ID)
	}

	send := func(to types.AccountID, amount int64) (*types.Receipt, error) {
		return svc.Transfer(ctx, &token.TransferRequest{
			From: treasury.ID, To: to, Amount: amount, Token: created.TokenID,
		}, treasury.Wallet)
	}

	for _, r := range recipients {
		if _, err := send(r.ID, opts.Amount); err != nil {
			return report, err
		}
	}
	if report.TreasuryAfterTransfers, err = svc.GetBalance(ctx, treasury.ID, created.TokenID); err != nil {
		return report, err
	}

	if _, err := svc.Pause(ctx, created.TokenID, pauser.ID, pauser.Wallet); err != nil {
		return report, err
	}

	last := recipients[len(recipients)-1].ID
	r, err := send(last, opts.PausedAmount)
	switch {
	case err == nil:
		return report, types.NewError(types.CodeReceiptFailure, "transfer of paused token %s succeeded", created.TokenID).
			WithTransaction(r.TransactionID)
	case !errors.Is(err, types.ErrTokenPaused):
		return report, err
	}
	report.PausedStatus = r.Status
	log.Info("transfer rejected while paused", zap.String("status", string(r.Status)))

	if _, err := svc.Unpause(ctx, created.TokenID, pauser.ID, pauser.Wallet); err != nil {
		return report, err
	}
	if _, err := send(last, opts.PausedAmount); err != nil {
		return report, err
	}

	report.Balances = make(map[types.AccountID]int64)
	for _, id := range append([]types.AccountID{treasury.ID}, report.Recipients...) {
		b, err := svc.GetBalance(ctx, id, created.TokenID)
		if err != nil {
			return report, err
		}
		report.Balances[id] = b
	}
	return report, nil
}
