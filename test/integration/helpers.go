package integration

import (
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/services/transaction"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

// Services 业务服务依赖：快速轮询、短退避，本地登记表用于付款账户签名检查
func (e *Env) Services() services.Config {
	return services.NewConfig(e.Network, e.NC, transaction.Options{
		Keys:           e.Registry,
		Retry:          &client.RetryConfig{MaxRetries: 3, InitialDelay: 1, MaxDelay: 5, BackoffMultiplier: 2},
		ReceiptTimeout: ReceiptTimeout,
		PollInterval:   PollInterval,
		Logger:         e.Logger,
	})
}

// Draft 断言草稿构建成功
func (e *Env) Draft(d tx.Draft, err error) tx.Draft {
	e.t.Helper()
	require.NoError(e.t, err, "构建草稿失败")
	return d
}

// Sign 绑定并签名
func (e *Env) Sign(d tx.Draft, payer types.AccountID, signers ...tx.Signer) *tx.Signed {
	e.t.Helper()
	b, err := tx.Bind(d, payer, e.NC)
	require.NoError(e.t, err, "绑定交易失败")
	s, err := b.Sign(signers...)
	require.NoError(e.t, err, "签名失败")
	return s
}

// Execute 直接提交到账本并等待收据（不经过 transaction 服务）
func (e *Env) Execute(d tx.Draft, payer types.AccountID, signers ...tx.Signer) *types.Receipt {
	e.t.Helper()
	signed := e.Sign(d, payer, signers...)
	data, err := signed.Bytes()
	require.NoError(e.t, err)

	ctx := e.Context()
	ack, err := e.Network.SubmitTransaction(ctx, data)
	require.NoError(e.t, err, "提交交易失败")
	return e.WaitForReceipt(ack.TransactionID)
}

// WaitForReceipt 轮询收据直到终态
func (e *Env) WaitForReceipt(txID string) *types.Receipt {
	e.t.Helper()
	ctx := e.Context()

	var r *types.Receipt
	require.Eventually(e.t, func() bool {
		got, err := e.Network.GetReceipt(ctx, txID)
		if err != nil || got.Outcome() == types.OutcomePending {
			return false
		}
		r = got
		return true
	}, ReceiptTimeout, PollInterval, "交易确认超时: %s", txID)
	return r
}

// VerifySuccess 断言收据成功
func VerifySuccess(t require.TestingT, r *types.Receipt) {
	require.NotNil(t, r, "收据为空")
	assert.NotEmpty(t, r.TransactionID, "交易 ID 为空")
	assert.Equal(t, types.StatusSuccess, r.Status, "交易状态不是 SUCCESS")
}

// VerifyBalance 断言账户某资产余额
func (e *Env) VerifyBalance(id types.AccountID, token types.TokenID, want int64) {
	e.t.Helper()
	assert.Equal(e.t, want, e.Balance(id).Token(token), "余额不匹配: account=%s asset=%s", id, token.Label())
}

// AdvancePastExpiry 推进测试时钟越过给定时长
func (e *Env) AdvancePastExpiry(d time.Duration) {
	e.Clock.Advance(d + time.Second)
}
