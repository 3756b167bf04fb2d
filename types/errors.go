package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 错误分类哨兵值，配合 errors.Is 使用
var (
	ErrInvalidDraft           = errors.New("invalid draft")
	ErrInvalidParameters      = errors.New("invalid parameters")
	ErrBinding                = errors.New("binding error")
	ErrUnauthorizedSubmission = errors.New("unauthorized submission")
	ErrNetwork                = errors.New("network error")
	ErrPrecheck               = errors.New("precheck rejected")
	ErrReceiptFailure         = errors.New("receipt failure")
	ErrScheduleExpired        = errors.New("schedule expired")
	ErrAllowanceExceeded      = errors.New("allowance exceeded")
	ErrTokenPaused            = errors.New("token paused")
)

// ErrorCode 错误码
type ErrorCode string

const (
	CodeInvalidDraft           ErrorCode = "INVALID_DRAFT"
	CodeInvalidParameters      ErrorCode = "INVALID_PARAMETERS"
	CodeBinding                ErrorCode = "BINDING_ERROR"
	CodeUnauthorizedSubmission ErrorCode = "UNAUTHORIZED_SUBMISSION"
	CodeNetwork                ErrorCode = "NETWORK_ERROR"
	CodePrecheck               ErrorCode = "PRECHECK_FAILED"
	CodeReceiptFailure         ErrorCode = "RECEIPT_FAILURE"
	CodeScheduleExpired        ErrorCode = "SCHEDULE_EXPIRED"
)

// Layer 常量
const (
	LayerClient  = "ledger-flow-go"
	LayerNetwork = "ledger-network"
)

var codeSentinels = map[ErrorCode]error{
	CodeInvalidDraft:           ErrInvalidDraft,
	CodeInvalidParameters:      ErrInvalidParameters,
	CodeBinding:                ErrBinding,
	CodeUnauthorizedSubmission: ErrUnauthorizedSubmission,
	CodeNetwork:                ErrNetwork,
	CodePrecheck:               ErrPrecheck,
	CodeReceiptFailure:         ErrReceiptFailure,
	CodeScheduleExpired:        ErrScheduleExpired,
}

var statusSentinels = map[Status]error{
	StatusAmountExceedsAllowance: ErrAllowanceExceeded,
	StatusSpenderNoAllowance:     ErrAllowanceExceeded,
	StatusScheduleExpired:        ErrScheduleExpired,
	StatusTokenPaused:            ErrTokenPaused,
}

// LedgerError SDK 统一错误类型
//
// 交易绑定之后的所有终态错误都携带 TransactionID，便于与链上记录对账。
type LedgerError struct {
	Code          ErrorCode
	Layer         string
	Message       string
	TransactionID string
	Status        Status // 网络返回的状态码（如有）
	TraceID       string
	Timestamp     string
	Cause         error
}

// NewError 创建 LedgerError
func NewError(code ErrorCode, format string, args ...interface{}) *LedgerError {
	return &LedgerError{
		Code:      code,
		Layer:     LayerClient,
		Message:   fmt.Sprintf(format, args...),
		TraceID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// WrapError 创建带底层原因的 LedgerError
func WrapError(code ErrorCode, cause error, format string, args ...interface{}) *LedgerError {
	e := NewError(code, format, args...)
	e.Cause = cause
	return e
}

// NewReceiptError 根据失败收据创建错误（原样保留网络状态码）
func NewReceiptError(r *Receipt) *LedgerError {
	e := NewError(CodeReceiptFailure, "transaction failed with status %s", r.Status)
	e.Layer = LayerNetwork
	e.TransactionID = r.TransactionID
	e.Status = r.Status
	return e
}

// WithTransaction 附加交易 ID
func (e *LedgerError) WithTransaction(txID string) *LedgerError {
	e.TransactionID = txID
	return e
}

// WithStatus 附加网络状态码
func (e *LedgerError) WithStatus(s Status) *LedgerError {
	e.Status = s
	return e
}

func (e *LedgerError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.TransactionID != "" {
		msg += fmt.Sprintf(" (tx=%s)", e.TransactionID)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Is 将错误码与网络状态码映射到哨兵错误
func (e *LedgerError) Is(target error) bool {
	if s, ok := codeSentinels[e.Code]; ok && s == target {
		return true
	}
	if s, ok := statusSentinels[e.Status]; ok && s == target {
		return true
	}
	return false
}

// IsLedgerError 检查错误链中是否包含 LedgerError
func IsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// TransactionIDOf 提取错误链中的交易 ID（无则返回空串）
func TransactionIDOf(err error) string {
	if le, ok := IsLedgerError(err); ok {
		return le.TransactionID
	}
	return ""
}
