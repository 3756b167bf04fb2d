package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/types"
)

func newTestHTTPClient(t *testing.T, url string, retry *RetryConfig) Client {
	t.Helper()
	c, err := NewClient(&Config{Endpoint: url, Protocol: ProtocolHTTP, Timeout: 5, Retry: retry})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHTTPClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name         string
		responseBody string
		statusCode   int
		check        func(*testing.T, error)
	}{
		{
			name: "problem details in JSON-RPC error",
			responseBody: `{
				"jsonrpc": "2.0",
				"error": {
					"code": -32000,
					"message": "precheck failed",
					"data": {
						"code": "PRECHECK_FAILED",
						"layer": "ledger-network",
						"userMessage": "交易预检失败",
						"ledgerStatus": "INVALID_SIGNATURE",
						"transactionId": "0.0.1001@1700000000.000000001",
						"traceId": "trace-123",
						"timestamp": "2025-11-23T10:00:00Z"
					}
				},
				"id": 1
			}`,
			statusCode: http.StatusOK,
			check: func(t *testing.T, err error) {
				le, ok := types.IsLedgerError(err)
				require.True(t, ok, "expected LedgerError, got %T", err)
				assert.Equal(t, types.CodePrecheck, le.Code)
				assert.Equal(t, types.StatusInvalidSignature, le.Status)
				assert.Equal(t, "0.0.1001@1700000000.000000001", le.TransactionID)
				assert.ErrorIs(t, err, types.ErrPrecheck)
			},
		},
		{
			name: "allowance status maps to sentinel",
			responseBody: `{
				"jsonrpc": "2.0",
				"error": {
					"code": -32000,
					"message": "receipt failure",
					"data": {
						"code": "RECEIPT_FAILURE",
						"layer": "ledger-network",
						"userMessage": "超出授权额度",
						"ledgerStatus": "AMOUNT_EXCEEDS_ALLOWANCE",
						"traceId": "trace-456"
					}
				},
				"id": 1
			}`,
			statusCode: http.StatusOK,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, types.ErrReceiptFailure)
				assert.ErrorIs(t, err, types.ErrAllowanceExceeded)
			},
		},
		{
			name: "missing problem details in JSON-RPC error",
			responseBody: `{
				"jsonrpc": "2.0",
				"error": {
					"code": -32601,
					"message": "method not found"
				},
				"id": 1
			}`,
			statusCode: http.StatusOK,
			check: func(t *testing.T, err error) {
				_, ok := types.IsLedgerError(err)
				assert.False(t, ok)
				assert.True(t, IsClientError(err, ErrCodeRPCError))
				assert.Contains(t, err.Error(), "method not found")
			},
		},
		{
			name:         "non-200 status",
			responseBody: `not found`,
			statusCode:   http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.True(t, IsClientError(err, ErrCodeInvalidResponse))
				assert.Contains(t, err.Error(), "404")
			},
		},
		{
			name:         "malformed body",
			responseBody: `{"jsonrpc":`,
			statusCode:   http.StatusOK,
			check: func(t *testing.T, err error) {
				assert.True(t, IsClientError(err, ErrCodeInvalidResponse))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			c := newTestHTTPClient(t, server.URL, &RetryConfig{MaxRetries: 0})
			_, err := c.Call(context.Background(), "test_method", []interface{}{})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestHTTPClient_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"ok","id":1}`))
	}))
	defer server.Close()

	var retries atomic.Int32
	c := newTestHTTPClient(t, server.URL, &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1,
		MaxDelay:          5,
		BackoffMultiplier: 2,
		OnRetry:           func(int, error) { retries.Add(1) },
	})

	result, err := c.Call(context.Background(), "test_method", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(result))
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int32(2), retries.Load())
}

func TestHTTPClient_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestHTTPClient(t, server.URL, &RetryConfig{MaxRetries: 2, InitialDelay: 1, BackoffMultiplier: 1})
	_, err := c.Call(context.Background(), "test_method", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.Equal(t, int32(3), hits.Load())
}

func TestNewProblemResponse(t *testing.T) {
	le := types.NewError(types.CodePrecheck, "duplicate").
		WithStatus(types.StatusDuplicateTransaction).
		WithTransaction("0.0.2@1.000000000")

	resp := NewProblemResponse(7, le)
	require.NotNil(t, resp.Error)
	assert.Equal(t, uint64(7), resp.ID)
	assert.Equal(t, RPCServerError, resp.Error.Code)

	err := rpcErrorToError(resp.Error)
	got, ok := types.IsLedgerError(err)
	require.True(t, ok)
	assert.Equal(t, types.CodePrecheck, got.Code)
	assert.Equal(t, types.StatusDuplicateTransaction, got.Status)
	assert.Equal(t, "0.0.2@1.000000000", got.TransactionID)
	assert.Equal(t, le.TraceID, got.TraceID)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"network client error", NewNetworkError(errors.New("dial")), true},
		{"timeout client error", NewTimeoutError(), true},
		{"invalid response", NewInvalidResponseError("bad"), false},
		{"circuit open", &Error{Code: ErrCodeCircuitOpen}, false},
		{"busy status", types.NewError(types.CodePrecheck, "busy").WithStatus(types.StatusBusy), true},
		{"network ledger error", types.NewError(types.CodeNetwork, "unreachable"), true},
		{"precheck rejection", types.NewError(types.CodePrecheck, "bad sig").WithStatus(types.StatusInvalidSignature), false},
		{"receipt failure", types.NewError(types.CodeReceiptFailure, "paused").WithStatus(types.StatusTokenPaused), false},
		{"net timeout", fmt.Errorf("read: %w", timeoutErr{}), true},
		{"connection refused text", errors.New("dial tcp: connection refused"), true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100, MaxDelay: 500, BackoffMultiplier: 2}
	assert.Equal(t, "100ms", BackoffDelay(0, cfg).String())
	assert.Equal(t, "200ms", BackoffDelay(1, cfg).String())
	assert.Equal(t, "400ms", BackoffDelay(2, cfg).String())
	assert.Equal(t, "500ms", BackoffDelay(3, cfg).String())
}

func TestWithRetry(t *testing.T) {
	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		sentinel := types.NewError(types.CodePrecheck, "rejected")
		err := WithRetry(context.Background(), func() error {
			calls++
			return sentinel
		}, &RetryConfig{MaxRetries: 5, InitialDelay: 1})
		assert.Same(t, sentinel, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error {
			return NewNetworkError(errors.New("down"))
		}, &RetryConfig{MaxRetries: 5, InitialDelay: 1000})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return NewTimeoutError()
			}
			return nil
		}, &RetryConfig{MaxRetries: 5, InitialDelay: 1})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
}
