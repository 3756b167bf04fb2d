package client

import (
	"context"
	"encoding/json"
)

// JSON-RPC 方法名
const (
	MethodSendRawTransaction    = "ledger_sendRawTransaction"
	MethodGetTransactionReceipt = "ledger_getTransactionReceipt"
	MethodGetBalance            = "ledger_getBalance"
	MethodGetScheduleInfo       = "ledger_getScheduleInfo"
	MethodSubscribeTopic        = "ledger_subscribeTopic"
	MethodUnsubscribe           = "ledger_unsubscribe"
	MethodSubscription          = "ledger_subscription" // 服务端推送通知
)

// JSON-RPC 标准错误码
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCServerError    = -32000
)

// RPCRequest JSON-RPC 请求
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      uint64          `json:"id"`
}

// NewRPCRequest 编码参数并构建请求
func NewRPCRequest(id uint64, method string, params interface{}) (*RPCRequest, error) {
	req := &RPCRequest{JSONRPC: "2.0", Method: method, ID: id}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// RPCResponse JSON-RPC 响应
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// RPCError JSON-RPC 错误
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCNotification 订阅通知载荷
type RPCNotification struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// RPCHandler 服务端 JSON-RPC 分发接口（HTTP、WebSocket 与 gRPC 共用）
type RPCHandler interface {
	HandleRPC(ctx context.Context, req *RPCRequest) *RPCResponse
}

// NewResultResponse 构建成功响应
func NewResultResponse(id uint64, result interface{}) *RPCResponse {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, RPCServerError, "encode result: "+err.Error(), nil)
	}
	return &RPCResponse{JSONRPC: "2.0", Result: raw, ID: id}
}

// NewErrorResponse 构建错误响应，data 通常为 *types.ProblemDetails
func NewErrorResponse(id uint64, code int, message string, data interface{}) *RPCResponse {
	rpcErr := &RPCError{Code: code, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			rpcErr.Data = raw
		}
	}
	return &RPCResponse{JSONRPC: "2.0", Error: rpcErr, ID: id}
}
