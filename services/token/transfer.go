package token

import (
	"context"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// Transfer 单笔转账
//
// 发送方同时是付款账户。代币转账要求双方均已关联该代币，且代币未被暂停；
// 这些条件只由网络判定，失败以收据状态返回，不自动重试。
func (s *tokenService) Transfer(ctx context.Context, req *TransferRequest, wallets ...wallet.Wallet) (*types.Receipt, error) {
	if req == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "transfer request is nil")
	}
	return s.BatchTransfer(ctx, &BatchTransferRequest{
		From:      req.From,
		Transfers: []TransferItem{{To: req.To, Amount: req.Amount, Token: req.Token}},
	}, wallets...)
}

// BatchTransfer 批量转账
func (s *tokenService) BatchTransfer(ctx context.Context, req *BatchTransferRequest, wallets ...wallet.Wallet) (*types.Receipt, error) {
	if err := s.validateBatchTransferRequest(req); err != nil {
		return nil, err
	}
	from, err := s.Payer(req.From)
	if err != nil {
		return nil, err
	}

	d, err := tx.NewTransfer(buildLineItems(from, req.Transfers)...)
	if err != nil {
		return nil, err
	}
	r, err := s.execute(ctx, d, from, wallets)
	if err != nil {
		return r, err
	}

	s.logger.Info("transfer executed",
		zap.String("from", string(from)),
		zap.Int("recipients", len(req.Transfers)),
		zap.String("tx_id", r.TransactionID),
	)
	return r, nil
}

// validateBatchTransferRequest 验证批量转账请求
func (s *tokenService) validateBatchTransferRequest(req *BatchTransferRequest) error {
	if req == nil {
		return types.NewError(types.CodeInvalidParameters, "transfer request is nil")
	}
	if len(req.Transfers) == 0 {
		return types.NewError(types.CodeInvalidParameters, "transfers cannot be empty")
	}
	for i, item := range req.Transfers {
		if item.Amount <= 0 {
			return types.NewError(types.CodeInvalidParameters, "transfer %d: amount must be positive", i)
		}
		if item.To == "" {
			return types.NewError(types.CodeInvalidParameters, "transfer %d: recipient is empty", i)
		}
	}
	return nil
}

// buildLineItems 每种资产合并为一条借记，接收方各一条贷记
func buildLineItems(from types.AccountID, items []TransferItem) []tx.LineItem {
	debits := make(map[types.TokenID]int64)
	var order []types.TokenID
	credits := make([]tx.LineItem, 0, len(items))

	for _, item := range items {
		if _, seen := debits[item.Token]; !seen {
			order = append(order, item.Token)
		}
		debits[item.Token] += item.Amount
		credits = append(credits, tx.LineItem{Account: item.To, Token: item.Token, Amount: item.Amount})
	}

	lines := make([]tx.LineItem, 0, len(order)+len(credits))
	for _, token := range order {
		lines = append(lines, tx.LineItem{Account: from, Token: token, Amount: -debits[token]})
	}
	return append(lines, credits...)
}
