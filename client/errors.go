package client

import (
	"errors"
	"fmt"

	"github.com/weisyn/ledger-flow-go/types"
)

// Error 客户端错误
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client error [%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("client error [%d]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 网络类错误匹配 types.ErrNetwork
func (e *Error) Is(target error) bool {
	if target != types.ErrNetwork {
		return false
	}
	switch e.Code {
	case ErrCodeNetwork, ErrCodeTimeout, ErrCodeClosed:
		return true
	}
	return false
}

// 错误码定义
const (
	ErrCodeNetwork         = 1000 // 网络错误
	ErrCodeTimeout         = 1001 // 超时错误
	ErrCodeInvalidResponse = 1002 // 无效响应
	ErrCodeRPCError        = 1003 // JSON-RPC错误
	ErrCodeNotSupported    = 1004 // 不支持的操作
	ErrCodeClosed          = 1005 // 连接已关闭
	ErrCodeCircuitOpen     = 1006 // 熔断器打开
)

// NewNetworkError 创建网络错误
func NewNetworkError(err error) *Error {
	return &Error{
		Code:    ErrCodeNetwork,
		Message: "network error",
		Err:     err,
	}
}

// NewTimeoutError 创建超时错误
func NewTimeoutError() *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: "request timeout",
	}
}

// NewInvalidResponseError 创建无效响应错误
func NewInvalidResponseError(message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidResponse,
		Message: message,
	}
}

// NewRPCError 创建JSON-RPC错误
func NewRPCError(code int, message string, data interface{}) *Error {
	return &Error{
		Code:    ErrCodeRPCError,
		Message: fmt.Sprintf("RPC error [%d]: %s, data: %v", code, message, data),
	}
}

// NewNotSupportedError 创建不支持的操作错误
func NewNotSupportedError(operation string) *Error {
	return &Error{
		Code:    ErrCodeNotSupported,
		Message: fmt.Sprintf("operation not supported: %s", operation),
	}
}

// NewClosedError 创建连接关闭错误
func NewClosedError() *Error {
	return &Error{
		Code:    ErrCodeClosed,
		Message: "connection closed",
	}
}

// IsClientError 检查错误链中是否包含指定错误码的 Error
func IsClientError(err error, code int) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}
