// Package account 账户服务：创建账户、原生币转账与批量注资。
//
// 新账户的密钥对在本地生成，创建成功后追加到账户登记表，
// 之后即可作为付款账户签名。
package account

import (
	"context"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/registry"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/utils"
	"github.com/weisyn/ledger-flow-go/wallet"
)

const (
	// DefaultInitialBalance 新账户默认初始余额
	DefaultInitialBalance int64 = 20

	// DefaultFundConcurrency 批量注资默认并发数
	DefaultFundConcurrency = 5
)

// Service 账户服务接口
type Service interface {
	// CreateAccount 生成密钥对并在网络上创建账户，成功后登记
	CreateAccount(ctx context.Context, req *CreateRequest, wallets ...wallet.Wallet) (*CreateResult, error)

	// Transfer 原生币转账
	Transfer(ctx context.Context, from, to types.AccountID, amount int64, wallets ...wallet.Wallet) (*types.Receipt, error)

	// FundAccounts 向多个账户各转入固定金额（每个账户一笔独立交易）
	FundAccounts(ctx context.Context, req *FundRequest, wallets ...wallet.Wallet) (*FundResult, error)

	// GetBalance 查询账户余额
	GetBalance(ctx context.Context, id types.AccountID) (*types.AccountBalance, error)
}

// CreateRequest 账户创建请求
type CreateRequest struct {
	// Payer 付款账户；为空时使用运营账户
	Payer types.AccountID
	// InitialBalance 初始余额，由付款账户支付；0 使用 DefaultInitialBalance
	InitialBalance int64
}

// CreateResult 账户创建结果
type CreateResult struct {
	Account registry.Account
	Wallet  wallet.Wallet
	Receipt *types.Receipt
}

// FundRequest 批量注资请求
type FundRequest struct {
	From   types.AccountID
	Amount int64
	// Accounts 为空时向登记表中除 From 外的全部账户注资
	Accounts    []types.AccountID
	Concurrency int
}

// FundResult 批量注资结果
type FundResult struct {
	Receipts []*types.Receipt
	Failed   []FundError
}

// FundError 单个账户注资失败
type FundError struct {
	Account types.AccountID
	Err     error
}

type accountService struct {
	services.Config
	registry *registry.Registry
	logger   *logging.Logger
}

// NewService 创建账户服务；reg 为空时使用内存登记表
func NewService(cfg services.Config, reg *registry.Registry) Service {
	if reg == nil {
		reg = registry.NewMemory()
	}
	return &accountService{
		Config:   cfg,
		registry: reg,
		logger:   logging.OrGlobal(cfg.Logger).Named("account"),
	}
}

// CreateAccount 创建账户
//
// 网络确认后才写入登记表；收据为 Pending 时不登记，调用方可稍后查询收据。
func (s *accountService) CreateAccount(ctx context.Context, req *CreateRequest, wallets ...wallet.Wallet) (*CreateResult, error) {
	if req == nil {
		req = &CreateRequest{}
	}
	payer, err := s.Payer(req.Payer)
	if err != nil {
		return nil, err
	}
	balance := req.InitialBalance
	if balance == 0 {
		balance = DefaultInitialBalance
	}

	w, err := wallet.NewWallet()
	if err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "generate key pair")
	}
	d, err := tx.NewAccountCreate(w.PublicKeyHex(), balance)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, payer, s.Signers(wallets...)...)
	if err != nil {
		return nil, err
	}

	r, err := s.Transactions.Execute(ctx, signed)
	if err != nil {
		return &CreateResult{Receipt: r}, err
	}
	if r.Outcome() == types.OutcomePending {
		return &CreateResult{Wallet: w, Receipt: r}, nil
	}

	acc := registry.NewAccount(r.AccountID, w)
	if err := s.registry.Append(acc); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "register account %s", r.AccountID).
			WithTransaction(r.TransactionID)
	}

	s.logger.Info("account created",
		zap.String("account_id", string(r.AccountID)),
		zap.Int64("initial_balance", balance),
		zap.Int("registered", s.registry.Len()),
	)
	return &CreateResult{Account: acc, Wallet: w, Receipt: r}, nil
}

// Transfer 原生币转账
func (s *accountService) Transfer(ctx context.Context, from, to types.AccountID, amount int64, wallets ...wallet.Wallet) (*types.Receipt, error) {
	from, err := s.Payer(from)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, types.NewError(types.CodeInvalidParameters, "amount must be positive")
	}

	d, err := tx.NewTransfer(
		tx.LineItem{Account: from, Amount: -amount},
		tx.LineItem{Account: to, Amount: amount},
	)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, from, s.Signers(wallets...)...)
	if err != nil {
		return nil, err
	}
	return s.Transactions.Execute(ctx, signed)
}

// FundAccounts 批量注资
//
// 单个账户失败不影响其他账户；失败项记录在 FundResult.Failed 中。
func (s *accountService) FundAccounts(ctx context.Context, req *FundRequest, wallets ...wallet.Wallet) (*FundResult, error) {
	if req == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "fund request is nil")
	}
	from, err := s.Payer(req.From)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, types.NewError(types.CodeInvalidParameters, "amount must be positive")
	}

	targets := req.Accounts
	if len(targets) == 0 {
		for _, acc := range s.registry.LoadAll() {
			if acc.ID != from {
				targets = append(targets, acc.ID)
			}
		}
	}
	if len(targets) == 0 {
		return &FundResult{}, nil
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultFundConcurrency
	}

	batch, err := utils.BatchQuery(ctx, targets, func(ctx context.Context, to types.AccountID, _ int) (*types.Receipt, error) {
		return s.Transfer(ctx, from, to, req.Amount, wallets...)
	}, &utils.BatchConfig{
		BatchSize:   len(targets),
		Concurrency: concurrency,
		OnProgress: func(p utils.BatchProgress) {
			s.logger.Debug("funding progress",
				zap.Int("completed", p.Completed),
				zap.Int("total", p.Total),
				zap.Int("failed", p.Failed),
			)
		},
	})

	res := &FundResult{Receipts: batch.Results}
	for _, e := range batch.Errors {
		res.Failed = append(res.Failed, FundError{Account: targets[e.Index], Err: e.Error})
	}

	s.logger.Info("accounts funded",
		zap.String("from", string(from)),
		zap.Int64("amount", req.Amount),
		zap.Int("funded", batch.Success),
		zap.Int("failed", batch.Failed),
	)
	return res, err
}

// GetBalance 查询余额
func (s *accountService) GetBalance(ctx context.Context, id types.AccountID) (*types.AccountBalance, error) {
	if err := id.Validate(); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid account id")
	}
	return s.Network.GetAccountBalance(ctx, id)
}
