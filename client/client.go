package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client 传输层接口：JSON-RPC 调用与订阅
type Client interface {
	// Call 调用 JSON-RPC 方法，返回原始 result
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// Subscribe 发起订阅，返回通知通道；ctx 取消时退订并关闭通道
	Subscribe(ctx context.Context, method string, params interface{}) (<-chan json.RawMessage, error)

	// Close 关闭连接
	Close() error
}

// NewClient 按协议创建传输客户端
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Protocol {
	case ProtocolHTTP, "":
		return NewHTTPClient(config)
	case ProtocolGRPC:
		return NewGRPCClient(config)
	case ProtocolWebSocket:
		return NewWebSocketClient(config)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", config.Protocol)
	}
}
