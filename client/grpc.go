package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// gRPC 服务定义：单个一元方法承载 JSON-RPC 信封
const (
	GRPCServiceName = "ledgerflow.v1.JSONRPC"
	GRPCCallMethod  = "/" + GRPCServiceName + "/Call"
)

// JSONCodec gRPC 编解码器：以 JSON 代替 protobuf 编码消息
type JSONCodec struct{}

// Marshal 编码
func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal 解码
func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Name 编解码器名称
func (JSONCodec) Name() string {
	return "json"
}

// GRPCServiceDesc 服务端注册描述，实现需满足 RPCHandler
var GRPCServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*RPCHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    grpcCallHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledgerflow/v1/jsonrpc",
}

func grpcCallHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(RPCRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(RPCHandler)
	if interceptor == nil {
		return h.HandleRPC(ctx, req), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GRPCCallMethod}
	return interceptor(ctx, req, info, func(ctx context.Context, r interface{}) (interface{}, error) {
		return h.HandleRPC(ctx, r.(*RPCRequest)), nil
	})
}

// RegisterGRPCHandler 在 gRPC 服务器上注册 JSON-RPC 处理器
//
// 服务器需以 grpc.ForceServerCodec(JSONCodec{}) 创建。
func RegisterGRPCHandler(s *grpc.Server, h RPCHandler) {
	s.RegisterService(&GRPCServiceDesc, h)
}

// grpcClient gRPC 客户端实现
type grpcClient struct {
	conn     *grpc.ClientConn
	endpoint string
	timeout  time.Duration
	logger   Logger
	nextID   atomic.Uint64
}

// NewGRPCClient 创建 gRPC 客户端
func NewGRPCClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// 移除 http:// 或 https:// 前缀
	endpoint := strings.TrimPrefix(strings.TrimPrefix(config.Endpoint, "http://"), "https://")

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	creds := insecure.NewCredentials()
	tlsConfig, err := buildTLSConfig(config.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, endpoint,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})),
	)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial gRPC: %w", err))
	}

	return &grpcClient{
		conn:     conn,
		endpoint: endpoint,
		timeout:  timeout,
		logger:   loggerOf(config),
	}, nil
}

// Call 通过 gRPC 一元调用发送 JSON-RPC 请求
func (c *grpcClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req, err := NewRPCRequest(c.nextID.Add(1), method, params)
	if err != nil {
		return nil, fmt.Errorf("marshal params failed: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var resp RPCResponse
	if err := c.conn.Invoke(ctx, GRPCCallMethod, req, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewNetworkError(fmt.Errorf("gRPC invoke %s: %w", method, err))
	}

	if resp.Error != nil {
		return nil, rpcErrorToError(resp.Error)
	}
	return resp.Result, nil
}

// Subscribe gRPC 传输暂不支持订阅
func (c *grpcClient) Subscribe(ctx context.Context, method string, params interface{}) (<-chan json.RawMessage, error) {
	return nil, NewNotSupportedError("subscribe over gRPC, use WebSocket client instead")
}

// Close 关闭连接
func (c *grpcClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
