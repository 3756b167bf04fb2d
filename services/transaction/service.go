package transaction

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/metrics"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
)

const (
	// DefaultReceiptTimeout 默认收据等待上限
	DefaultReceiptTimeout = 30 * time.Second

	// DefaultPollInterval 收据轮询初始间隔
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultMaxPollInterval 收据轮询间隔上限
	DefaultMaxPollInterval = 2 * time.Second
)

// Service 交易提交与收据解析服务
type Service interface {
	// Submit 提交已签名交易；返回节点受理结果，不等待共识
	Submit(ctx context.Context, signed *tx.Signed) (*PendingResult, error)

	// AwaitReceipt 轮询收据直到终态或超时；超时返回 Pending 收据且 error 为 nil
	AwaitReceipt(ctx context.Context, pending *PendingResult, timeout time.Duration) (*types.Receipt, error)

	// Execute 提交并等待收据；Failure 收据以 LedgerError 返回
	Execute(ctx context.Context, signed *tx.Signed) (*types.Receipt, error)

	// GetReceipt 查询一次收据（不等待）
	GetReceipt(ctx context.Context, txID string) (*types.Receipt, error)
}

// PendingResult 已受理、尚未确认结果的交易
type PendingResult struct {
	TransactionID string
	NodeID        types.AccountID
	Kind          tx.Kind
	SubmittedAt   time.Time
}

// Options 服务选项，零值字段使用默认值
type Options struct {
	// Keys 本地已知公钥；非空时提交前检查付款账户签名
	Keys tx.KeyResolver

	// Retry 提交重试（BUSY 与传输错误）；nil 使用 client.DefaultRetryConfig
	Retry *client.RetryConfig

	ReceiptTimeout  time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	Metrics metrics.Collector
	Logger  *logging.Logger
}

// transactionService Transaction 服务实现
type transactionService struct {
	network client.Network
	keys    tx.KeyResolver
	retry   client.RetryConfig

	receiptTimeout  time.Duration
	pollInterval    time.Duration
	maxPollInterval time.Duration

	metrics metrics.Collector
	logger  *logging.Logger
}

// NewService 创建 Transaction 服务
func NewService(network client.Network, opts Options) Service {
	retry := client.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = opts.Retry
	}

	s := &transactionService{
		network:         network,
		keys:            opts.Keys,
		retry:           *retry,
		receiptTimeout:  opts.ReceiptTimeout,
		pollInterval:    opts.PollInterval,
		maxPollInterval: opts.MaxPollInterval,
		metrics:         metrics.OrNoOp(opts.Metrics),
		logger:          logging.OrGlobal(opts.Logger).Named("transaction"),
	}
	if s.receiptTimeout <= 0 {
		s.receiptTimeout = DefaultReceiptTimeout
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.maxPollInterval < s.pollInterval {
		s.maxPollInterval = DefaultMaxPollInterval
		if s.maxPollInterval < s.pollInterval {
			s.maxPollInterval = s.pollInterval
		}
	}
	if s.retry.Retryable == nil {
		s.retry.Retryable = client.IsRetryable
	}
	return s
}

// Submit 提交已签名交易
//
// 本地校验失败（无签名、缺少付款账户签名）时不发起网络请求。
// 网络以 INVALID_SIGNATURE 拒绝时映射为 ErrUnauthorizedSubmission，其他预检拒绝保留 ErrPrecheck。
// BUSY 与传输错误按退避重试，耗尽后以 ErrNetwork 返回。
func (s *transactionService) Submit(ctx context.Context, signed *tx.Signed) (*PendingResult, error) {
	if signed == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "signed transaction is nil")
	}
	txID := signed.TransactionID().String()

	if err := s.checkSignatures(signed); err != nil {
		return nil, err.WithTransaction(txID)
	}

	data, err := signed.Bytes()
	if err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "serialize transaction").WithTransaction(txID)
	}

	kind := string(signed.Kind())
	logger := s.logger.With(zap.String("tx_id", txID), zap.String("kind", kind))

	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		start := time.Now()
		ack, err := s.network.SubmitTransaction(ctx, data)
		s.metrics.RecordSubmit(kind, err == nil, time.Since(start))

		if err == nil {
			logger.Debug("transaction accepted", zap.String("node", string(ack.NodeID)), zap.Int("attempt", attempt+1))
			return &PendingResult{
				TransactionID: txID,
				NodeID:        ack.NodeID,
				Kind:          signed.Kind(),
				SubmittedAt:   start,
			}, nil
		}

		// 重试前的一次提交可能已被受理，但响应丢失
		if attempt > 0 && statusOf(err) == types.StatusDuplicateTransaction {
			logger.Info("transaction already accepted by earlier attempt", zap.Int("attempt", attempt+1))
			return &PendingResult{TransactionID: txID, Kind: signed.Kind(), SubmittedAt: start}, nil
		}

		if !s.retry.Retryable(err) {
			return nil, classifySubmitError(err, txID)
		}

		lastErr = err
		if attempt == s.retry.MaxRetries {
			break
		}

		delay := client.BackoffDelay(attempt, &s.retry)
		s.metrics.RecordRetry("submit")
		logger.Warn("transient submit failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if s.retry.OnRetry != nil {
			s.retry.OnRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return nil, types.WrapError(types.CodeNetwork, ctx.Err(), "submit cancelled").WithTransaction(txID)
		case <-time.After(delay):
		}
	}

	le := types.WrapError(types.CodeNetwork, lastErr, "submit failed after %d attempts", s.retry.MaxRetries+1)
	le.Status = statusOf(lastErr)
	return nil, le.WithTransaction(txID)
}

// checkSignatures 零签名或缺少本地已知付款账户签名时拒绝提交
func (s *transactionService) checkSignatures(signed *tx.Signed) *types.LedgerError {
	if signed.SignatureCount() == 0 {
		return types.NewError(types.CodeUnauthorizedSubmission, "transaction has no signatures")
	}
	if s.keys == nil {
		return nil
	}
	pub, ok := s.keys.PublicKey(signed.Payer())
	if ok && !signed.HasSignatureFrom(pub) {
		return types.NewError(types.CodeUnauthorizedSubmission, "payer %s has not signed", signed.Payer())
	}
	return nil
}

// classifySubmitError 不可重试的提交错误
func classifySubmitError(err error, txID string) error {
	le, ok := types.IsLedgerError(err)
	if !ok {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.WrapError(types.CodeNetwork, err, "submit interrupted").WithTransaction(txID)
		}
		return types.WrapError(types.CodeNetwork, err, "submit failed").WithTransaction(txID)
	}

	if le.Status == types.StatusInvalidSignature {
		out := types.WrapError(types.CodeUnauthorizedSubmission, le, "network rejected signatures")
		out.Layer = types.LayerNetwork
		out.Status = le.Status
		return out.WithTransaction(txID)
	}
	if le.TransactionID == "" {
		le.TransactionID = txID
	}
	return le
}

// AwaitReceipt 轮询收据，间隔按倍数增长至上限
func (s *transactionService) AwaitReceipt(ctx context.Context, pending *PendingResult, timeout time.Duration) (*types.Receipt, error) {
	if pending == nil {
		return nil, types.NewError(types.CodeInvalidParameters, "pending result is nil")
	}
	if timeout <= 0 {
		timeout = s.receiptTimeout
	}

	txID := pending.TransactionID
	kind := string(pending.Kind)
	start := time.Now()

	// 每次查询都受 timeout 约束，节点无响应时不会拖住轮询
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stillPending := func() (*types.Receipt, error) {
		s.metrics.RecordReceipt(kind, string(types.OutcomePending), time.Since(start))
		if err := ctx.Err(); err != nil {
			return types.PendingReceipt(txID), err
		}
		s.logger.Info("receipt still pending after timeout",
			zap.String("tx_id", txID),
			zap.Duration("timeout", timeout),
		)
		return types.PendingReceipt(txID), nil
	}

	interval := s.pollInterval
	for {
		r, err := s.network.GetReceipt(pollCtx, txID)
		if err != nil && pollCtx.Err() != nil {
			return stillPending()
		}
		switch {
		case err == nil && r.Outcome() != types.OutcomePending:
			s.metrics.RecordReceipt(kind, string(r.Outcome()), time.Since(start))
			return r, nil
		case err != nil && !s.pollable(err):
			le, ok := types.IsLedgerError(err)
			if !ok {
				le = types.WrapError(types.CodeNetwork, err, "get receipt")
			}
			if le.TransactionID == "" {
				le.TransactionID = txID
			}
			return nil, le
		case err != nil:
			s.logger.Debug("receipt lookup failed, polling again", zap.String("tx_id", txID), zap.Error(err))
		}

		select {
		case <-pollCtx.Done():
			return stillPending()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > s.maxPollInterval {
			interval = s.maxPollInterval
		}
	}
}

// pollable 收据查询错误是否应继续轮询
func (s *transactionService) pollable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return statusOf(err) == types.StatusReceiptNotFound || s.retry.Retryable(err)
}

// Execute 提交并等待收据
func (s *transactionService) Execute(ctx context.Context, signed *tx.Signed) (*types.Receipt, error) {
	pending, err := s.Submit(ctx, signed)
	if err != nil {
		return nil, err
	}

	r, err := s.AwaitReceipt(ctx, pending, s.receiptTimeout)
	if err != nil {
		return r, err
	}
	if r.Outcome() == types.OutcomeFailure {
		s.logger.Info("transaction failed",
			zap.String("tx_id", r.TransactionID),
			zap.String("status", string(r.Status)),
		)
		return r, types.NewReceiptError(r)
	}
	return r, nil
}

// GetReceipt 查询一次收据；txID 可带 "?scheduled" 等后缀
func (s *transactionService) GetReceipt(ctx context.Context, txID string) (*types.Receipt, error) {
	base, _, _ := strings.Cut(txID, "?")
	if _, err := tx.ParseTransactionID(base); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid transaction id")
	}
	r, err := s.network.GetReceipt(ctx, txID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func statusOf(err error) types.Status {
	if le, ok := types.IsLedgerError(err); ok {
		return le.Status
	}
	return ""
}
