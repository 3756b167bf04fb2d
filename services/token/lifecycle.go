package token

import (
	"context"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// CreateToken 创建代币
//
// 金库账户同时是付款账户；有管理密钥时必须由其持有者一同签名。
func (s *tokenService) CreateToken(ctx context.Context, req *CreateRequest, wallets ...wallet.Wallet) (*CreateResult, error) {
	if req == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "create request is nil")
	}
	treasury, err := s.Payer(req.Treasury)
	if err != nil {
		return nil, err
	}

	params := tx.TokenCreateParams{
		Name:          req.Name,
		Symbol:        req.Symbol,
		Decimals:      req.Decimals,
		InitialSupply: req.InitialSupply,
		MaxSupply:     req.MaxSupply,
		Treasury:      treasury,
		AdminKey:      req.AdminKey,
		PauseKey:      req.PauseKey,
	}
	if req.MaxSupply == 0 {
		params.SupplyType = tx.SupplyInfinite
	}

	d, err := tx.NewTokenCreate(params)
	if err != nil {
		return nil, err
	}
	r, err := s.execute(ctx, d, treasury, wallets)
	if err != nil {
		return nil, err
	}
	if r.Outcome() == types.OutcomePending {
		return &CreateResult{Receipt: r}, nil
	}

	s.logger.Info("token created",
		zap.String("token_id", string(r.TokenID)),
		zap.String("symbol", req.Symbol),
		zap.String("supply", types.FormatAmount(req.InitialSupply, uint32(req.Decimals))),
	)
	return &CreateResult{TokenID: r.TokenID, Receipt: r}, nil
}

// Associate 关联代币，付款账户即被关联账户
func (s *tokenService) Associate(ctx context.Context, account types.AccountID, tokens []types.TokenID, wallets ...wallet.Wallet) (*types.Receipt, error) {
	payer, err := s.Payer(account)
	if err != nil {
		return nil, err
	}
	d, err := tx.NewTokenAssociate(payer, tokens...)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, d, payer, wallets)
}

// Pause 暂停代币；暂停期间涉及该代币的转账被网络拒绝
func (s *tokenService) Pause(ctx context.Context, token types.TokenID, payer types.AccountID, wallets ...wallet.Wallet) (*types.Receipt, error) {
	d, err := tx.NewTokenPause(token)
	if err != nil {
		return nil, err
	}
	return s.setPaused(ctx, d, payer, wallets)
}

// Unpause 恢复代币
func (s *tokenService) Unpause(ctx context.Context, token types.TokenID, payer types.AccountID, wallets ...wallet.Wallet) (*types.Receipt, error) {
	d, err := tx.NewTokenUnpause(token)
	if err != nil {
		return nil, err
	}
	return s.setPaused(ctx, d, payer, wallets)
}

func (s *tokenService) setPaused(ctx context.Context, d tx.Draft, payer types.AccountID, wallets []wallet.Wallet) (*types.Receipt, error) {
	payer, err := s.Payer(payer)
	if err != nil {
		return nil, err
	}
	r, err := s.execute(ctx, d, payer, wallets)
	if err != nil {
		return r, err
	}
	s.logger.Info("token pause state changed",
		zap.String("token_id", string(d.TokenID)),
		zap.Bool("paused", d.Kind == tx.KindTokenPause),
	)
	return r, nil
}

// execute 绑定、签名、提交并等待收据
func (s *tokenService) execute(ctx context.Context, d tx.Draft, payer types.AccountID, wallets []wallet.Wallet) (*types.Receipt, error) {
	signed, err := s.Sign(d, payer, s.Signers(wallets...)...)
	if err != nil {
		return nil, err
	}
	return s.Transactions.Execute(ctx, signed)
}
