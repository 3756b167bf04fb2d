package transaction_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/config"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/metrics"
	"github.com/weisyn/ledger-flow-go/services/transaction"
	"github.com/weisyn/ledger-flow-go/test/integration"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

type recorder struct {
	metrics.NoOpCollector
	mu       sync.Mutex
	retries  int
	outcomes []string
}

func (r *recorder) RecordRetry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func (r *recorder) RecordReceipt(_ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func fastRetry(n int) *client.RetryConfig {
	return &client.RetryConfig{MaxRetries: n, InitialDelay: 1, MaxDelay: 5, BackoffMultiplier: 2}
}

func newService(env *integration.Env, opts transaction.Options) transaction.Service {
	if opts.Retry == nil {
		opts.Retry = fastRetry(3)
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = integration.PollInterval
	}
	if opts.ReceiptTimeout == 0 {
		opts.ReceiptTimeout = integration.ReceiptTimeout
	}
	opts.Logger = env.Logger
	return transaction.NewService(env.Network, opts)
}

func transfer(env *integration.Env, from, to types.AccountID, amount int64) tx.Draft {
	return env.Draft(tx.NewTransfer(
		tx.LineItem{Account: from, Amount: -amount},
		tx.LineItem{Account: to, Amount: amount},
	))
}

func TestExecute_Success(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []integration.Option
	}{
		{"in-process", nil},
		{"json-rpc over http", []integration.Option{integration.WithHTTPTransport()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := integration.NewEnv(t, tc.opts...)
			alice, aliceKey := env.Account(1, 1000)
			bob, _ := env.Account(2, 0)
			svc := newService(env, transaction.Options{Keys: env.Registry})

			signed := env.Sign(transfer(env, alice, bob, 400), alice, aliceKey)
			r, err := svc.Execute(env.Context(), signed)
			require.NoError(t, err)
			integration.VerifySuccess(t, r)
			assert.Equal(t, signed.TransactionID().String(), r.TransactionID)

			env.VerifyBalance(alice, "", 600)
			env.VerifyBalance(bob, "", 400)
		})
	}
}

func TestSubmit_ZeroSignaturesNeverReachNetwork(t *testing.T) {
	env := integration.NewEnv(t)
	alice, _ := env.Account(1, 1000)
	bob, _ := env.Account(2, 0)
	svc := newService(env, transaction.Options{})

	b, err := tx.Bind(transfer(env, alice, bob, 10), alice, env.NC)
	require.NoError(t, err)
	unsigned := tx.NewSigned(b)

	_, err = svc.Submit(env.Context(), unsigned)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnauthorizedSubmission)
	assert.Equal(t, b.TransactionID().String(), types.TransactionIDOf(err))

	_, err = env.Network.GetReceipt(env.Context(), b.TransactionID().String())
	le, ok := types.IsLedgerError(err)
	require.True(t, ok)
	assert.Equal(t, types.StatusReceiptNotFound, le.Status)
	env.VerifyBalance(alice, "", 1000)
}

func TestSubmit_MissingPayerSignature(t *testing.T) {
	env := integration.NewEnv(t)
	alice, _ := env.Account(1, 1000)
	bob, bobKey := env.Account(2, 0)

	signed := env.Sign(transfer(env, alice, bob, 10), alice, bobKey)

	t.Run("payer key known locally", func(t *testing.T) {
		svc := newService(env, transaction.Options{Keys: env.Registry})
		_, err := svc.Submit(env.Context(), signed)
		assert.ErrorIs(t, err, types.ErrUnauthorizedSubmission)
		assert.NotErrorIs(t, err, types.ErrPrecheck)
	})

	t.Run("rejected by network", func(t *testing.T) {
		svc := newService(env, transaction.Options{})
		_, err := svc.Submit(env.Context(), signed)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrUnauthorizedSubmission)
		le, ok := types.IsLedgerError(err)
		require.True(t, ok)
		assert.Equal(t, types.StatusInvalidSignature, le.Status)
		assert.Equal(t, signed.TransactionID().String(), le.TransactionID)
	})

	env.VerifyBalance(alice, "", 1000)
}

func TestSubmit_RetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name   string
		inject func(env *integration.Env)
	}{
		{"busy", func(env *integration.Env) { env.Ledger.SetBusy(2) }},
		{"transport", func(env *integration.Env) { env.Ledger.FailNextSubmits(2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := integration.NewEnv(t)
			alice, aliceKey := env.Account(1, 1000)
			bob, _ := env.Account(2, 0)
			rec := &recorder{}
			svc := newService(env, transaction.Options{Retry: fastRetry(3), Metrics: rec})

			tt.inject(env)
			r, err := svc.Execute(env.Context(), env.Sign(transfer(env, alice, bob, 5), alice, aliceKey))
			require.NoError(t, err)
			integration.VerifySuccess(t, r)
			assert.Equal(t, 2, rec.retries)
			assert.Equal(t, []string{"success"}, rec.outcomes)
		})
	}
}

func TestSubmit_RetriesExhausted(t *testing.T) {
	env := integration.NewEnv(t)
	alice, aliceKey := env.Account(1, 1000)
	bob, _ := env.Account(2, 0)
	svc := newService(env, transaction.Options{Retry: fastRetry(2)})

	env.Ledger.SetBusy(10)
	signed := env.Sign(transfer(env, alice, bob, 5), alice, aliceKey)
	_, err := svc.Submit(env.Context(), signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.Equal(t, signed.TransactionID().String(), types.TransactionIDOf(err))

	le, _ := types.IsLedgerError(err)
	assert.Equal(t, types.StatusBusy, le.Status)
}

func TestSubmit_PrecheckRejectionNotRetried(t *testing.T) {
	env := integration.NewEnv(t)
	alice, aliceKey := env.Account(1, 1000)
	bob, _ := env.Account(2, 0)
	rec := &recorder{}
	svc := newService(env, transaction.Options{Metrics: rec})

	signed := env.Sign(transfer(env, alice, bob, 5), alice, aliceKey)
	_, err := svc.Submit(env.Context(), signed)
	require.NoError(t, err)

	_, err = svc.Submit(env.Context(), signed)
	assert.ErrorIs(t, err, types.ErrPrecheck)
	le, ok := types.IsLedgerError(err)
	require.True(t, ok)
	assert.Equal(t, types.StatusDuplicateTransaction, le.Status)
	assert.Zero(t, rec.retries)
}

// lossyNetwork 第一次提交实际送达但返回网络错误
type lossyNetwork struct {
	client.Network
	calls int
}

func (n *lossyNetwork) SubmitTransaction(ctx context.Context, data []byte) (*client.SubmitAck, error) {
	n.calls++
	ack, err := n.Network.SubmitTransaction(ctx, data)
	if n.calls == 1 && err == nil {
		return nil, client.NewNetworkError(errors.New("connection reset by peer"))
	}
	return ack, err
}

func TestSubmit_DuplicateAfterLostResponse(t *testing.T) {
	env := integration.NewEnv(t)
	alice, aliceKey := env.Account(1, 1000)
	bob, _ := env.Account(2, 0)

	lossy := &lossyNetwork{Network: env.Network}
	svc := transaction.NewService(lossy, transaction.Options{
		Retry:        fastRetry(2),
		PollInterval: integration.PollInterval,
		Logger:       env.Logger,
	})

	r, err := svc.Execute(env.Context(), env.Sign(transfer(env, alice, bob, 7), alice, aliceKey))
	require.NoError(t, err)
	integration.VerifySuccess(t, r)
	assert.Equal(t, 2, lossy.calls)
	env.VerifyBalance(bob, "", 7)
}

func TestAwaitReceipt_PendingOnTimeout(t *testing.T) {
	env := integration.NewEnv(t, integration.WithSettleDelay(time.Hour))
	alice, aliceKey := env.Account(1, 1000)
	bob, _ := env.Account(2, 0)
	rec := &recorder{}
	svc := newService(env, transaction.Options{Metrics: rec})

	pending, err := svc.Submit(env.Context(), env.Sign(transfer(env, alice, bob, 5), alice, aliceKey))
	require.NoError(t, err)

	r, err := svc.AwaitReceipt(env.Context(), pending, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePending, r.Outcome())
	assert.Equal(t, pending.TransactionID, r.TransactionID)
	assert.Equal(t, []string{"pending"}, rec.outcomes)

	// 共识完成后同一交易可继续解析
	env.Clock.Advance(time.Hour)
	r, err = svc.AwaitReceipt(env.Context(), pending, time.Second)
	require.NoError(t, err)
	integration.VerifySuccess(t, r)
}

func TestAwaitReceipt_Cancelled(t *testing.T) {
	env := integration.NewEnv(t, integration.WithSettleDelay(time.Hour))
	alice, aliceKey := env.Account(1, 1000)
	bob, _ := env.Account(2, 0)
	svc := newService(env, transaction.Options{})

	pending, err := svc.Submit(env.Context(), env.Sign(transfer(env, alice, bob, 5), alice, aliceKey))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	r, err := svc.AwaitReceipt(ctx, pending, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, r)
	assert.Equal(t, types.OutcomePending, r.Outcome())
}

func TestExecute_FailureReceipt(t *testing.T) {
	env := integration.NewEnv(t)
	alice, aliceKey := env.Account(1, 100)
	bob, _ := env.Account(2, 0)
	svc := newService(env, transaction.Options{})

	signed := env.Sign(transfer(env, alice, bob, 500), alice, aliceKey)
	r, err := svc.Execute(env.Context(), signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrReceiptFailure)
	require.NotNil(t, r)
	assert.Equal(t, types.StatusInsufficientBalance, r.Status)
	assert.Equal(t, signed.TransactionID().String(), types.TransactionIDOf(err))

	env.VerifyBalance(alice, "", 100)
	env.VerifyBalance(bob, "", 0)
}

func TestGetReceipt(t *testing.T) {
	env := integration.NewEnv(t)
	alice, aliceKey := env.Account(1, 100)
	bob, _ := env.Account(2, 0)
	svc := newService(env, transaction.Options{})

	r, err := svc.Execute(env.Context(), env.Sign(transfer(env, alice, bob, 1), alice, aliceKey))
	require.NoError(t, err)

	got, err := svc.GetReceipt(env.Context(), r.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = svc.GetReceipt(env.Context(), "not-a-transaction-id")
	assert.ErrorIs(t, err, types.ErrInvalidParameters)
}

// stalledNetwork 收据查询挂起，直到 ctx 结束或 stall 到期
type stalledNetwork struct {
	client.Network
	stall time.Duration
}

func (n *stalledNetwork) GetReceipt(ctx context.Context, txID string) (*types.Receipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(n.stall):
		return types.PendingReceipt(txID), nil
	}
}

func TestAwaitReceipt_StalledNodeBoundedByTimeout(t *testing.T) {
	env := integration.NewEnv(t)
	rec := &recorder{}
	svc := transaction.NewService(&stalledNetwork{Network: env.Network, stall: 3 * time.Second}, transaction.Options{
		PollInterval: integration.PollInterval,
		Metrics:      rec,
		Logger:       env.Logger,
	})

	pending := &transaction.PendingResult{TransactionID: "0.0.1001@1700000000.000000000", Kind: tx.KindTransfer}
	start := time.Now()
	r, err := svc.AwaitReceipt(context.Background(), pending, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, types.OutcomePending, r.Outcome())
	assert.Equal(t, pending.TransactionID, r.TransactionID)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, []string{"pending"}, rec.outcomes)

	t.Run("caller cancellation still reported", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		r, err := svc.AwaitReceipt(ctx, pending, 5*time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, r)
		assert.Equal(t, types.OutcomePending, r.Outcome())
	})
}

func TestSubmit_RetryBoundOverHTTP(t *testing.T) {
	env := integration.NewEnv(t)
	alice, aliceKey := env.Account(1, 1000)
	bob, _ := env.Account(2, 0)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// 与命令行相同的接线：传输层配置来自 config，提交重试来自 SubmitRetries
	cfg := config.Default()
	cfg.Network = "testnet"
	cfg.Endpoint = srv.URL
	cfg.SubmitRetries = 2

	lc, err := client.NewLedgerClient(cfg.ClientConfig(logging.NewClientLogger(env.Logger)))
	require.NoError(t, err)
	defer lc.Close()

	rec := &recorder{}
	svc := transaction.NewService(lc, transaction.Options{
		Retry:   fastRetry(cfg.SubmitRetries),
		Metrics: rec,
		Logger:  env.Logger,
	})

	_, err = svc.Submit(env.Context(), env.Sign(transfer(env, alice, bob, 5), alice, aliceKey))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.Equal(t, int32(cfg.SubmitRetries+1), hits.Load())
	assert.Equal(t, cfg.SubmitRetries, rec.retries)
}
