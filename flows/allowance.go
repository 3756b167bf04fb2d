package flows

import (
	"context"

	"github.com/weisyn/ledger-flow-go/services/allowance"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/utils"
)

// AllowanceReport 额度流程结果
type AllowanceReport struct {
	Owner, Spender, Recipient types.AccountID
	Approved                  *types.Receipt
	Spent                     *types.Receipt
	// Balances 花费前后的原生币余额（owner, spender, recipient）
	Before, After [3]int64
}

// AllowanceSpend 所有者授予额度，花费者代为付款给第三方
//
// 登记表前三个账户依次为所有者、花费者、接收方。
func AllowanceSpend(ctx context.Context, env *Env, amount int64) (*AllowanceReport, error) {
	ps, err := env.parties(3)
	if err != nil {
		return nil, err
	}
	owner, spender, recipient := ps[0], ps[1], ps[2]
	report := &AllowanceReport{Owner: owner.ID, Spender: spender.ID, Recipient: recipient.ID}
	svc := allowance.NewService(env.Services)

	report.Approved, err = svc.ApproveAllowance(ctx, &allowance.ApproveRequest{
		Owner: owner.ID, Spender: spender.ID, Limit: amount,
	}, owner.Wallet)
	if err != nil {
		return report, err
	}
	if err := env.nativeBalances(ctx, &report.Before, owner.ID, spender.ID, recipient.ID); err != nil {
		return report, err
	}

	report.Spent, err = svc.SpendAllowance(ctx, &allowance.SpendRequest{
		Spender: spender.ID, Owner: owner.ID, Recipient: recipient.ID, Amount: amount,
	}, spender.Wallet)
	if err != nil {
		return report, err
	}
	return report, env.nativeBalances(ctx, &report.After, owner.ID, spender.ID, recipient.ID)
}

// nativeBalances 并发查询余额，结果按 ids 顺序写入 out
func (e *Env) nativeBalances(ctx context.Context, out *[3]int64, ids ...types.AccountID) error {
	balances, err := utils.ParallelExecute(ctx, ids, func(ctx context.Context, id types.AccountID) (int64, error) {
		b, err := e.Services.Network.GetAccountBalance(ctx, id)
		if err != nil {
			return 0, err
		}
		return b.Native, nil
	}, len(ids))
	if err != nil {
		return err
	}
	copy(out[:], balances)
	return nil
}
