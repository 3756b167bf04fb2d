package allowance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/services/allowance"
	"github.com/weisyn/ledger-flow-go/test/integration"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

func TestAllowance_ApproveAndSpend(t *testing.T) {
	env := integration.NewEnv(t)
	owner, ownerKey := env.Account(1, 100)
	spender, spenderKey := env.Account(2, 0)
	recipient, _ := env.Account(3, 0)
	svc := allowance.NewService(env.Services())
	ctx := env.Context()

	r, err := svc.ApproveAllowance(ctx, &allowance.ApproveRequest{
		Owner: owner, Spender: spender, Limit: 20,
	}, ownerKey)
	require.NoError(t, err)
	integration.VerifySuccess(t, r)
	assert.Equal(t, int64(20), env.Ledger.Allowance(owner, spender, ""))

	spend := &allowance.SpendRequest{Spender: spender, Owner: owner, Recipient: recipient, Amount: 15}
	r, err = svc.SpendAllowance(ctx, spend, spenderKey)
	require.NoError(t, err)
	integration.VerifySuccess(t, r)
	assert.Equal(t, int64(5), env.Ledger.Allowance(owner, spender, ""))

	t.Run("exceeding the remaining limit fails on the network", func(t *testing.T) {
		over := *spend
		over.Amount = 10
		r, err := svc.SpendAllowance(ctx, &over, spenderKey)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrAllowanceExceeded)
		assert.ErrorIs(t, err, types.ErrReceiptFailure)
		require.NotNil(t, r)
		assert.Equal(t, types.StatusAmountExceedsAllowance, r.Status)
		assert.NotEmpty(t, types.TransactionIDOf(err))
	})

	env.VerifyBalance(owner, "", 85)
	env.VerifyBalance(recipient, "", 15)
	env.VerifyBalance(spender, "", 0)
	assert.Equal(t, int64(5), env.Ledger.Allowance(owner, spender, ""))
}

func TestAllowance_WithoutApproval(t *testing.T) {
	env := integration.NewEnv(t)
	owner, _ := env.Account(1, 100)
	spender, spenderKey := env.Account(2, 0)
	svc := allowance.NewService(env.Services())

	_, err := svc.SpendAllowance(env.Context(), &allowance.SpendRequest{
		Spender: spender, Owner: owner, Recipient: spender, Amount: 1,
	}, spenderKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAllowanceExceeded)
	env.VerifyBalance(owner, "", 100)
}

func TestAllowance_Revoke(t *testing.T) {
	env := integration.NewEnv(t)
	owner, ownerKey := env.Account(1, 100)
	spender, spenderKey := env.Account(2, 0)
	svc := allowance.NewService(env.Services())
	ctx := env.Context()

	_, err := svc.ApproveAllowance(ctx, &allowance.ApproveRequest{Owner: owner, Spender: spender, Limit: 50}, ownerKey)
	require.NoError(t, err)
	_, err = svc.ApproveAllowance(ctx, &allowance.ApproveRequest{Owner: owner, Spender: spender, Limit: 0}, ownerKey)
	require.NoError(t, err)
	assert.Zero(t, env.Ledger.Allowance(owner, spender, ""))

	_, err = svc.SpendAllowance(ctx, &allowance.SpendRequest{
		Spender: spender, Owner: owner, Recipient: spender, Amount: 1,
	}, spenderKey)
	assert.ErrorIs(t, err, types.ErrAllowanceExceeded)
}

func TestAllowance_Token(t *testing.T) {
	env := integration.NewEnv(t)
	owner, ownerKey := env.Account(1, 100)
	spender, spenderKey := env.Account(2, 0)
	svc := allowance.NewService(env.Services())

	created := env.Execute(env.Draft(tx.NewTokenCreate(tx.TokenCreateParams{
		Name: "Allowance Token", Symbol: "ALW", InitialSupply: 1000, MaxSupply: 1000, Treasury: owner,
	})), owner, ownerKey)
	integration.VerifySuccess(t, created)
	token := created.TokenID

	integration.VerifySuccess(t, env.Execute(env.Draft(tx.NewTokenAssociate(spender, token)), spender, spenderKey))

	ctx := env.Context()
	_, err := svc.ApproveAllowance(ctx, &allowance.ApproveRequest{
		Owner: owner, Spender: spender, Token: token, Limit: 300,
	}, ownerKey)
	require.NoError(t, err)

	_, err = svc.SpendAllowance(ctx, &allowance.SpendRequest{
		Spender: spender, Owner: owner, Recipient: spender, Token: token, Amount: 300,
	}, spenderKey)
	require.NoError(t, err)

	env.VerifyBalance(owner, token, 700)
	env.VerifyBalance(spender, token, 300)
	assert.Zero(t, env.Ledger.Allowance(owner, spender, token))
}

func TestAllowance_LocalValidation(t *testing.T) {
	env := integration.NewEnv(t)
	owner, ownerKey := env.Account(1, 100)
	spender, spenderKey := env.Account(2, 0)
	svc := allowance.NewService(env.Services())

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"nil approve", func() error {
			_, err := svc.ApproveAllowance(env.Context(), nil, ownerKey)
			return err
		}, types.ErrInvalidParameters},
		{"negative limit", func() error {
			_, err := svc.ApproveAllowance(env.Context(), &allowance.ApproveRequest{Owner: owner, Spender: spender, Limit: -1}, ownerKey)
			return err
		}, types.ErrInvalidParameters},
		{"zero spend", func() error {
			_, err := svc.SpendAllowance(env.Context(), &allowance.SpendRequest{Spender: spender, Owner: owner, Recipient: spender}, spenderKey)
			return err
		}, types.ErrInvalidDraft},
		{"payer not signing", func() error {
			_, err := svc.SpendAllowance(env.Context(), &allowance.SpendRequest{Spender: spender, Owner: owner, Recipient: spender, Amount: 1}, ownerKey)
			return err
		}, types.ErrUnauthorizedSubmission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}
}
