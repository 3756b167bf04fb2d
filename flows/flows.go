// Package flows 端到端演示流程：每个流程对应一个完整的业务场景，
// 组合各业务服务完成，返回结构化报告供命令行输出。
//
// 多数流程按登记表顺序取用账户（第一个账户作为金库/所有者，依次类推），
// 因此通常先运行 BootstrapAccounts。
package flows

import (
	"fmt"

	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/registry"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// Env 流程运行环境
type Env struct {
	// Services 服务依赖；Operator 用于创建账户、注资与主题流程
	Services services.Config
	Registry *registry.Registry
	Logger   *logging.Logger
}

// Party 参与流程的账户及其签名钱包
type Party struct {
	ID     types.AccountID
	Wallet wallet.Wallet
}

func (e *Env) logger() *logging.Logger {
	return logging.OrGlobal(e.Logger).Named("flows")
}

// parties 按登记顺序取前 n 个账户
func (e *Env) parties(n int) ([]Party, error) {
	accounts := e.Registry.LoadAll()
	if len(accounts) < n {
		return nil, types.NewError(types.CodeInvalidParameters,
			"flow needs %d registered accounts, registry has %d (run the accounts flow first)", n, len(accounts))
	}

	out := make([]Party, 0, n)
	for _, acc := range accounts[:n] {
		w, err := acc.Wallet()
		if err != nil {
			return nil, fmt.Errorf("load registry account: %w", err)
		}
		out = append(out, Party{ID: acc.ID, Wallet: w})
	}
	return out, nil
}
