package flows

import (
	"context"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/registry"
	"github.com/weisyn/ledger-flow-go/services/account"
	"github.com/weisyn/ledger-flow-go/types"
)

// DefaultBootstrapAccounts 登记表为空时创建的账户数
const DefaultBootstrapAccounts = 5

// DefaultFundAmount 每个账户的注资金额
const DefaultFundAmount int64 = 500

// CreateAccount 由运营账户创建一个新账户并登记
func CreateAccount(ctx context.Context, env *Env, initialBalance int64) (*account.CreateResult, error) {
	svc := account.NewService(env.Services, env.Registry)
	return svc.CreateAccount(ctx, &account.CreateRequest{InitialBalance: initialBalance})
}

// BootstrapAccounts 登记表为空时创建 n 个账户；已有账户时不做任何事
func BootstrapAccounts(ctx context.Context, env *Env, n int) ([]registry.Account, error) {
	if n <= 0 {
		n = DefaultBootstrapAccounts
	}
	if env.Registry.Len() > 0 {
		env.logger().Info("registry already populated, skipping bootstrap", zap.Int("accounts", env.Registry.Len()))
		return env.Registry.LoadAll(), nil
	}

	svc := account.NewService(env.Services, env.Registry)
	created := make([]registry.Account, 0, n)
	for i := 0; i < n; i++ {
		res, err := svc.CreateAccount(ctx, &account.CreateRequest{})
		if err != nil {
			return created, err
		}
		if res.Account.ID == "" {
			return created, types.NewError(types.CodeNetwork, "account creation still pending").
				WithTransaction(res.Receipt.TransactionID)
		}
		created = append(created, res.Account)
	}
	return created, nil
}

// FundAccounts 运营账户向登记表中的每个账户转入 amount
func FundAccounts(ctx context.Context, env *Env, amount int64) (*account.FundResult, error) {
	if amount <= 0 {
		amount = DefaultFundAmount
	}
	svc := account.NewService(env.Services, env.Registry)
	return svc.FundAccounts(ctx, &account.FundRequest{Amount: amount})
}
