package account_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/registry"
	"github.com/weisyn/ledger-flow-go/services/account"
	"github.com/weisyn/ledger-flow-go/test/integration"
	"github.com/weisyn/ledger-flow-go/types"
)

func TestAccount_Create(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	env := integration.NewEnv(t, integration.WithRegistryFile(path))
	operator, opKey := env.Account(1, 1_000)
	svc := account.NewService(env.Services().WithOperator(operator, opKey), env.Registry)
	ctx := env.Context()

	res, err := svc.CreateAccount(ctx, nil)
	require.NoError(t, err)
	integration.VerifySuccess(t, res.Receipt)
	require.NotEmpty(t, res.Account.ID)
	assert.Equal(t, res.Wallet.PublicKeyHex(), res.Account.PublicKey)

	env.VerifyBalance(res.Account.ID, types.Native, account.DefaultInitialBalance)
	env.VerifyBalance(operator, types.Native, 1_000-account.DefaultInitialBalance)
	assert.Equal(t, 2, env.Registry.Len())

	// 登记文件可被另一个进程读取
	reopened, err := registry.Open(path)
	require.NoError(t, err)
	_, ok := reopened.Get(res.Account.ID)
	assert.True(t, ok)

	// 新账户可以立即作为付款账户
	r, err := svc.Transfer(ctx, res.Account.ID, operator, 5, res.Wallet)
	require.NoError(t, err)
	integration.VerifySuccess(t, r)
	env.VerifyBalance(res.Account.ID, types.Native, account.DefaultInitialBalance-5)
}

func TestAccount_CreateInsufficientBalance(t *testing.T) {
	env := integration.NewEnv(t)
	payer, key := env.Account(1, 10)
	svc := account.NewService(env.Services(), env.Registry)

	_, err := svc.CreateAccount(env.Context(), &account.CreateRequest{Payer: payer, InitialBalance: 50}, key)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrReceiptFailure)
	le, ok := types.IsLedgerError(err)
	require.True(t, ok)
	assert.Equal(t, types.StatusInsufficientBalance, le.Status)
	assert.Equal(t, 1, env.Registry.Len())
}

func TestAccount_FundAccounts(t *testing.T) {
	env := integration.NewEnv(t)
	funder, funderKey := env.Account(1, 5_000)
	var targets []types.AccountID
	for n := 2; n <= 6; n++ {
		id, _ := env.Account(n, 0)
		targets = append(targets, id)
	}
	svc := account.NewService(env.Services(), env.Registry)

	res, err := svc.FundAccounts(env.Context(), &account.FundRequest{From: funder, Amount: 500}, funderKey)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	require.Len(t, res.Receipts, 5)
	for _, r := range res.Receipts {
		integration.VerifySuccess(t, r)
	}

	env.VerifyBalance(funder, types.Native, 2_500)
	for _, id := range targets {
		env.VerifyBalance(id, types.Native, 500)
	}
}

func TestAccount_FundAccountsPartialFailure(t *testing.T) {
	env := integration.NewEnv(t)
	funder, funderKey := env.Account(1, 1_000)
	good, _ := env.Account(2, 0)
	svc := account.NewService(env.Services(), env.Registry)

	missing := types.AccountID(fmt.Sprintf("0.0.%d", 9_999_999))
	res, err := svc.FundAccounts(env.Context(), &account.FundRequest{
		From:     funder,
		Amount:   100,
		Accounts: []types.AccountID{good, missing},
	}, funderKey)
	require.NoError(t, err)
	require.Len(t, res.Receipts, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, missing, res.Failed[0].Account)
	assert.Error(t, res.Failed[0].Err)

	env.VerifyBalance(good, types.Native, 100)
	env.VerifyBalance(funder, types.Native, 900)
}

func TestAccount_InvalidRequests(t *testing.T) {
	env := integration.NewEnv(t)
	svc := account.NewService(env.Services(), nil)
	ctx := env.Context()

	_, err := svc.CreateAccount(ctx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameters, "no payer and no operator")

	_, err = svc.Transfer(ctx, "0.0.1", "0.0.2", 0)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)

	_, err = svc.FundAccounts(ctx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)

	res, err := svc.FundAccounts(ctx, &account.FundRequest{From: "0.0.1", Amount: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Receipts)

	_, err = svc.GetBalance(ctx, "bad")
	assert.ErrorIs(t, err, types.ErrInvalidParameters)
}
