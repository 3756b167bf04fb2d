package allowance

import (
	"context"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

// Service 额度授权协调服务
//
// 额度只由网络记录；客户端不缓存、不预校验，超额由网络以 ErrAllowanceExceeded 拒绝。
type Service interface {
	// ApproveAllowance 所有者授予花费者额度（由所有者签名）
	ApproveAllowance(ctx context.Context, req *ApproveRequest, owner tx.Signer) (*types.Receipt, error)

	// SpendAllowance 花费者从所有者额度中转出（由花费者付款并签名）
	SpendAllowance(ctx context.Context, req *SpendRequest, spender tx.Signer) (*types.Receipt, error)
}

// ApproveRequest 授权请求
type ApproveRequest struct {
	Owner   types.AccountID
	Spender types.AccountID
	// Token 为空表示原生币
	Token types.TokenID
	// Limit 额度上限；0 表示撤销授权
	Limit int64
}

// SpendRequest 授权转账请求
type SpendRequest struct {
	Spender   types.AccountID
	Owner     types.AccountID
	Recipient types.AccountID
	Token     types.TokenID
	Amount    int64
}

type allowanceService struct {
	services.Config
	logger *logging.Logger
}

// NewService 创建 Allowance 服务
func NewService(cfg services.Config) Service {
	return &allowanceService{
		Config: cfg,
		logger: logging.OrGlobal(cfg.Logger).Named("allowance"),
	}
}

// ApproveAllowance 授予额度
func (s *allowanceService) ApproveAllowance(ctx context.Context, req *ApproveRequest, owner tx.Signer) (*types.Receipt, error) {
	if req == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "approve request is nil")
	}

	d, err := tx.NewAllowanceApproval(req.Owner, req.Spender, req.Token, req.Limit)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, req.Owner, owner)
	if err != nil {
		return nil, err
	}

	r, err := s.Transactions.Execute(ctx, signed)
	if err != nil {
		return r, err
	}
	s.logger.Info("allowance approved",
		zap.String("owner", string(req.Owner)),
		zap.String("spender", string(req.Spender)),
		zap.String("asset", req.Token.Label()),
		zap.Int64("limit", req.Limit),
	)
	return r, nil
}

// SpendAllowance 使用额度转账
func (s *allowanceService) SpendAllowance(ctx context.Context, req *SpendRequest, spender tx.Signer) (*types.Receipt, error) {
	if req == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "spend request is nil")
	}

	d, err := tx.NewApprovedTransfer(
		tx.LineItem{Account: req.Owner, Token: req.Token, Amount: -req.Amount, Approved: true},
		tx.LineItem{Account: req.Recipient, Token: req.Token, Amount: req.Amount},
	)
	if err != nil {
		return nil, err
	}
	signed, err := s.Sign(d, req.Spender, spender)
	if err != nil {
		return nil, err
	}

	r, err := s.Transactions.Execute(ctx, signed)
	if err != nil {
		return r, err
	}
	s.logger.Info("allowance spent",
		zap.String("spender", string(req.Spender)),
		zap.String("owner", string(req.Owner)),
		zap.String("recipient", string(req.Recipient)),
		zap.Int64("amount", req.Amount),
	)
	return r, nil
}
