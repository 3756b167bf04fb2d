package token

import (
	"context"

	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// Service Token 业务服务接口
//
// wallets 参数可选：如果提供则全部用于签名（第一个通常是付款账户），
// 否则使用服务配置中的运营账户钱包。
type Service interface {
	// CreateToken 创建代币，初始供应记入金库账户
	CreateToken(ctx context.Context, req *CreateRequest, wallets ...wallet.Wallet) (*CreateResult, error)

	// Associate 将代币关联到账户（需要该账户签名）
	Associate(ctx context.Context, account types.AccountID, tokens []types.TokenID, wallets ...wallet.Wallet) (*types.Receipt, error)

	// Pause 暂停代币（需要暂停密钥签名）
	Pause(ctx context.Context, token types.TokenID, payer types.AccountID, wallets ...wallet.Wallet) (*types.Receipt, error)

	// Unpause 恢复代币
	Unpause(ctx context.Context, token types.TokenID, payer types.AccountID, wallets ...wallet.Wallet) (*types.Receipt, error)

	// Transfer 单笔转账
	Transfer(ctx context.Context, req *TransferRequest, wallets ...wallet.Wallet) (*types.Receipt, error)

	// BatchTransfer 批量转账（同一笔交易，原子生效）
	BatchTransfer(ctx context.Context, req *BatchTransferRequest, wallets ...wallet.Wallet) (*types.Receipt, error)

	// GetBalance 查询余额（不需要 Wallet）
	GetBalance(ctx context.Context, account types.AccountID, token types.TokenID) (int64, error)
}

// tokenService Token 服务实现
type tokenService struct {
	services.Config
	logger *logging.Logger
}

// NewService 创建 Token 服务
func NewService(cfg services.Config) Service {
	return &tokenService{
		Config: cfg,
		logger: logging.OrGlobal(cfg.Logger).Named("token"),
	}
}

// NewServiceWithWallet 创建带默认运营账户的 Token 服务
func NewServiceWithWallet(cfg services.Config, operator types.AccountID, w wallet.Wallet) Service {
	return NewService(cfg.WithOperator(operator, w))
}

// CreateRequest 代币创建请求
type CreateRequest struct {
	Name     string
	Symbol   string
	Decimals int32
	// InitialSupply 初始供应（最小单位）
	InitialSupply int64
	// MaxSupply 最大供应；0 表示无限供应
	MaxSupply int64
	// Treasury 金库账户；为空时使用运营账户
	Treasury types.AccountID
	// AdminKey/PauseKey 公钥（hex）；为空时对应操作不可用
	AdminKey string
	PauseKey string
}

// CreateResult 代币创建结果
type CreateResult struct {
	TokenID types.TokenID
	Receipt *types.Receipt
}

// TransferRequest 转账请求
type TransferRequest struct {
	From   types.AccountID
	To     types.AccountID
	Amount int64
	// Token 为空表示原生币
	Token types.TokenID
}

// BatchTransferRequest 批量转账请求
type BatchTransferRequest struct {
	From      types.AccountID // 所有转账的发送方
	Transfers []TransferItem
}

// TransferItem 转账项
type TransferItem struct {
	To     types.AccountID
	Amount int64
	Token  types.TokenID
}
