package token

import (
	"context"

	"github.com/weisyn/ledger-flow-go/types"
)

// GetBalance 查询余额
//
// token 为空返回原生币余额；未关联的代币余额为 0。
func (s *tokenService) GetBalance(ctx context.Context, account types.AccountID, token types.TokenID) (int64, error) {
	if err := account.Validate(); err != nil {
		return 0, types.WrapError(types.CodeInvalidParameters, err, "invalid account id")
	}
	if err := token.Validate(); err != nil {
		return 0, types.WrapError(types.CodeInvalidParameters, err, "invalid token id")
	}

	b, err := s.Network.GetAccountBalance(ctx, account)
	if err != nil {
		return 0, err
	}
	return b.Token(token), nil
}
