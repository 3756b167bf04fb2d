package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// subscriptionBuffer 每个订阅的通知缓冲区大小
const subscriptionBuffer = 256

// websocketClient WebSocket 客户端实现
type websocketClient struct {
	endpoint string
	conn     *websocket.Conn
	logger   Logger
	timeout  time.Duration

	writeMu sync.Mutex // gorilla/websocket 只允许单个并发写者
	closed  int32
	nextID  uint64

	muReq    sync.Mutex
	requests map[uint64]chan *RPCResponse
	subs     map[string]chan json.RawMessage
	pending  map[string][]json.RawMessage // 订阅登记前到达的通知
}

// wsMessage 服务端消息：响应或订阅通知
type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewWebSocketClient 创建 WebSocket 客户端
func NewWebSocketClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := config.Endpoint
	// 将 http:// 或 https:// 转换为 ws:// 或 wss://
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://"):
		endpoint = "ws://" + endpoint
	}

	tlsConfig, err := buildTLSConfig(config.TLS)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsConfig,
	}

	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial websocket: %w", err))
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := &websocketClient{
		endpoint: endpoint,
		conn:     conn,
		logger:   loggerOf(config),
		timeout:  timeout,
		requests: make(map[uint64]chan *RPCResponse),
		subs:     make(map[string]chan json.RawMessage),
		pending:  make(map[string][]json.RawMessage),
	}

	// 启动消息读取循环
	go client.readLoop()

	return client, nil
}

// readLoop 消息读取循环
func (c *websocketClient) readLoop() {
	defer func() {
		atomic.StoreInt32(&c.closed, 1)
		c.muReq.Lock()
		for id, ch := range c.requests {
			close(ch)
			delete(c.requests, id)
		}
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.muReq.Unlock()
	}()

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if atomic.LoadInt32(&c.closed) == 0 {
				c.logger.Warn("websocket read failed", "endpoint", c.endpoint, "error", err)
			}
			return
		}

		if msg.Method == MethodSubscription {
			c.dispatchNotification(msg.Params)
			continue
		}

		c.muReq.Lock()
		ch, exists := c.requests[msg.ID]
		if exists {
			delete(c.requests, msg.ID)
		}
		c.muReq.Unlock()

		if exists {
			ch <- &RPCResponse{JSONRPC: msg.JSONRPC, Result: msg.Result, Error: msg.Error, ID: msg.ID}
		}
	}
}

func (c *websocketClient) dispatchNotification(raw json.RawMessage) {
	var n RPCNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		c.logger.Warn("invalid subscription notification", "error", err)
		return
	}

	c.muReq.Lock()
	defer c.muReq.Unlock()

	ch, ok := c.subs[n.Subscription]
	if !ok {
		c.pending[n.Subscription] = append(c.pending[n.Subscription], n.Result)
		return
	}
	select {
	case ch <- n.Result:
	default:
		c.logger.Warn("subscription buffer full, notification dropped", "subscription", n.Subscription)
	}
}

func (c *websocketClient) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Call 调用 JSON-RPC 方法
func (c *websocketClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, NewClosedError()
	}

	req, err := NewRPCRequest(atomic.AddUint64(&c.nextID, 1), method, params)
	if err != nil {
		return nil, fmt.Errorf("marshal params failed: %w", err)
	}

	// 响应通道带缓冲，readLoop 不会阻塞
	respCh := make(chan *RPCResponse, 1)
	c.muReq.Lock()
	c.requests[req.ID] = respCh
	c.muReq.Unlock()

	forget := func() {
		c.muReq.Lock()
		delete(c.requests, req.ID)
		c.muReq.Unlock()
	}

	if err := c.write(req); err != nil {
		forget()
		return nil, NewNetworkError(fmt.Errorf("write request: %w", err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok || resp == nil {
			return nil, NewClosedError()
		}
		if resp.Error != nil {
			return nil, rpcErrorToError(resp.Error)
		}
		return resp.Result, nil

	case <-ctx.Done():
		forget()
		return nil, ctx.Err()

	case <-timer.C:
		forget()
		return nil, NewTimeoutError()
	}
}

// Subscribe 订阅，服务端返回订阅 ID 后按 ID 路由通知
func (c *websocketClient) Subscribe(ctx context.Context, method string, params interface{}) (<-chan json.RawMessage, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	var subscriptionID string
	if err := json.Unmarshal(result, &subscriptionID); err != nil || subscriptionID == "" {
		return nil, NewInvalidResponseError("missing subscription ID")
	}

	ch := make(chan json.RawMessage, subscriptionBuffer)

	c.muReq.Lock()
	if atomic.LoadInt32(&c.closed) == 1 {
		c.muReq.Unlock()
		close(ch)
		return ch, nil
	}
	for _, n := range c.pending[subscriptionID] {
		select {
		case ch <- n:
		default:
		}
	}
	delete(c.pending, subscriptionID)
	c.subs[subscriptionID] = ch
	c.muReq.Unlock()

	go func() {
		<-ctx.Done()

		c.muReq.Lock()
		sub, ok := c.subs[subscriptionID]
		if ok {
			delete(c.subs, subscriptionID)
			close(sub)
		}
		c.muReq.Unlock()

		if ok && atomic.LoadInt32(&c.closed) == 0 {
			unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := c.Call(unsubCtx, MethodUnsubscribe, []interface{}{subscriptionID}); err != nil {
				c.logger.Debug("unsubscribe failed", "subscription", subscriptionID, "error", err)
			}
		}
	}()

	return ch, nil
}

// Close 关闭连接
func (c *websocketClient) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		return c.conn.Close()
	}
	return nil
}
