package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    *LedgerError
		target error
		want   bool
	}{
		{"code sentinel", NewError(CodeInvalidDraft, "bad"), ErrInvalidDraft, true},
		{"other code", NewError(CodeInvalidDraft, "bad"), ErrBinding, false},
		{"allowance exceeded status", NewReceiptError(&Receipt{TransactionID: "0.0.5@1.0", Status: StatusAmountExceedsAllowance}), ErrAllowanceExceeded, true},
		{"no allowance status", NewReceiptError(&Receipt{Status: StatusSpenderNoAllowance}), ErrAllowanceExceeded, true},
		{"schedule expired status", NewReceiptError(&Receipt{Status: StatusScheduleExpired}), ErrScheduleExpired, true},
		{"paused token is also receipt failure", NewReceiptError(&Receipt{Status: StatusTokenPaused}), ErrReceiptFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestLedgerError_WrappedChain(t *testing.T) {
	cause := errors.New("connection refused")
	le := WrapError(CodeNetwork, cause, "submit failed").WithTransaction("0.0.1001@1700000000.000000001")
	wrapped := fmt.Errorf("execute: %w", le)

	assert.True(t, errors.Is(wrapped, ErrNetwork))
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, "0.0.1001@1700000000.000000001", TransactionIDOf(wrapped))
	assert.Contains(t, le.Error(), "tx=0.0.1001@1700000000.000000001")
	assert.NotEmpty(t, le.TraceID)
}

func TestReceiptErrorKeepsStatus(t *testing.T) {
	le := NewReceiptError(&Receipt{TransactionID: "0.0.7@2.0", Status: StatusInsufficientBalance})
	assert.Equal(t, StatusInsufficientBalance, le.Status)
	assert.Equal(t, LayerNetwork, le.Layer)

	pd := le.ToProblemDetails()
	assert.Equal(t, "INSUFFICIENT_ACCOUNT_BALANCE", pd.LedgerStatus)
	assert.Equal(t, "0.0.7@2.0", pd.TransactionID)
}

func TestParseProblemDetailsFromRPCError(t *testing.T) {
	valid := map[string]interface{}{
		"code":    -32000.0,
		"message": "Internal error",
		"data": map[string]interface{}{
			"code":          "PRECHECK_FAILED",
			"layer":         LayerNetwork,
			"userMessage":   "交易预检失败",
			"ledgerStatus":  "INVALID_SIGNATURE",
			"transactionId": "0.0.2@1.5",
			"traceId":       "trace-123",
		},
	}

	pd, err := ParseProblemDetailsFromRPCError(valid)
	require.NoError(t, err)
	require.NotNil(t, pd.Status)
	assert.Equal(t, -32000, *pd.Status)
	assert.Equal(t, "Internal error", pd.Detail)

	le := pd.ToError()
	assert.True(t, errors.Is(le, ErrPrecheck))
	assert.Equal(t, StatusInvalidSignature, le.Status)
	assert.Equal(t, "0.0.2@1.5", le.TransactionID)

	_, err = ParseProblemDetailsFromRPCError("not a map")
	assert.Error(t, err)

	_, err = ParseProblemDetailsFromRPCError(map[string]interface{}{
		"data": map[string]interface{}{"code": "X"},
	})
	assert.Error(t, err)
}
