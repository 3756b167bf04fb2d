package types

import (
	"fmt"
	"time"
)

// ProblemDetails 网络错误详情（基于 RFC7807 扩展）
//
// 节点在 JSON-RPC error.data 中返回该结构；SDK 侧的 LedgerError 也可以渲染为该结构。
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   *int   `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Code          string                 `json:"code"`
	Layer         string                 `json:"layer"`
	UserMessage   string                 `json:"userMessage"`
	LedgerStatus  string                 `json:"ledgerStatus,omitempty"`
	TransactionID string                 `json:"transactionId,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	TraceID       string                 `json:"traceId"`
	Timestamp     string                 `json:"timestamp"`
}

// ToProblemDetails 转换为 Problem Details
func (e *LedgerError) ToProblemDetails() *ProblemDetails {
	return &ProblemDetails{
		Code:          string(e.Code),
		Layer:         e.Layer,
		UserMessage:   e.Message,
		LedgerStatus:  string(e.Status),
		TransactionID: e.TransactionID,
		TraceID:       e.TraceID,
		Timestamp:     e.Timestamp,
	}
}

// ToError 转换为 LedgerError
func (pd *ProblemDetails) ToError() *LedgerError {
	msg := pd.UserMessage
	if pd.Detail != "" {
		msg = fmt.Sprintf("%s: %s", pd.UserMessage, pd.Detail)
	}
	return &LedgerError{
		Code:          ErrorCode(pd.Code),
		Layer:         pd.Layer,
		Message:       msg,
		TransactionID: pd.TransactionID,
		Status:        Status(pd.LedgerStatus),
		TraceID:       pd.TraceID,
		Timestamp:     pd.Timestamp,
	}
}

// ParseProblemDetailsFromRPCError 从 JSON-RPC 错误对象解析 Problem Details
func ParseProblemDetailsFromRPCError(rpcError interface{}) (*ProblemDetails, error) {
	rpcMap, ok := rpcError.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid RPC error format")
	}

	data, ok := rpcMap["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("no data field in RPC error")
	}

	code, _ := data["code"].(string)
	layer, _ := data["layer"].(string)
	userMessage, _ := data["userMessage"].(string)
	traceID, _ := data["traceId"].(string)

	if code == "" || layer == "" || userMessage == "" || traceID == "" {
		return nil, fmt.Errorf("missing required fields in problem details")
	}

	detail, _ := data["detail"].(string)
	if detail == "" {
		if msg, ok := rpcMap["message"].(string); ok {
			detail = msg
		}
	}

	var status *int
	if statusVal, ok := data["status"].(float64); ok {
		s := int(statusVal)
		status = &s
	} else if statusVal, ok := rpcMap["code"].(float64); ok {
		s := int(statusVal)
		status = &s
	}

	details, _ := data["details"].(map[string]interface{})
	ledgerStatus, _ := data["ledgerStatus"].(string)
	txID, _ := data["transactionId"].(string)

	timestamp, _ := data["timestamp"].(string)
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	return &ProblemDetails{
		Code:          code,
		Layer:         layer,
		UserMessage:   userMessage,
		Detail:        detail,
		Status:        status,
		LedgerStatus:  ledgerStatus,
		TransactionID: txID,
		Details:       details,
		TraceID:       traceID,
		Timestamp:     timestamp,
	}, nil
}
