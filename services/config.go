package services

import (
	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/services/transaction"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// Config 统一的业务服务依赖，供各个具体 Service 共享同一网络、绑定上下文与交易服务。
//
// **说明**：
// - Network 用于只读查询（余额、计划交易信息、主题订阅）
// - Transactions 负责提交与收据解析，所有写操作都经由它完成
// - NetworkContext 显式传递，不依赖任何全局客户端
type Config struct {
	Network        client.Network
	Transactions   transaction.Service
	NetworkContext tx.NetworkContext
	Logger         *logging.Logger

	// Operator 默认付款账户（可选）；调用方未显式提供钱包时使用
	Operator *Operator
}

// Operator 运营账户：默认付款与签名方
type Operator struct {
	ID     types.AccountID
	Wallet wallet.Wallet
}

// WithOperator 返回设置了默认付款账户的副本
func (c Config) WithOperator(id types.AccountID, w wallet.Wallet) Config {
	c.Operator = &Operator{ID: id, Wallet: w}
	return c
}

// Payer 解析付款账户：显式指定优先，其次运营账户
func (c Config) Payer(id types.AccountID) (types.AccountID, error) {
	if id != "" {
		return id, nil
	}
	if c.Operator != nil && c.Operator.ID != "" {
		return c.Operator.ID, nil
	}
	return "", types.NewError(types.CodeInvalidParameters, "no payer given and no operator configured")
}

// Signers 解析签名密钥：显式钱包优先（忽略 nil），否则使用运营账户钱包
func (c Config) Signers(wallets ...wallet.Wallet) []tx.Signer {
	out := make([]tx.Signer, 0, len(wallets))
	for _, w := range wallets {
		if w != nil {
			out = append(out, w)
		}
	}
	if len(out) == 0 && c.Operator != nil && c.Operator.Wallet != nil {
		out = append(out, c.Operator.Wallet)
	}
	return out
}

// NewConfig 基于网络与绑定上下文组装服务依赖
func NewConfig(network client.Network, nc tx.NetworkContext, opts transaction.Options) Config {
	return Config{
		Network:        network,
		Transactions:   transaction.NewService(network, opts),
		NetworkContext: nc,
		Logger:         logging.OrGlobal(opts.Logger),
	}
}

// Sign 绑定草稿并用给定密钥签名
func (c Config) Sign(d tx.Draft, payer types.AccountID, signers ...tx.Signer) (*tx.Signed, error) {
	b, err := tx.Bind(d, payer, c.NetworkContext)
	if err != nil {
		return nil, err
	}
	return b.Sign(signers...)
}
