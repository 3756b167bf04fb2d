package simnet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/types"
)

// maxRequestBytes 单个 HTTP 请求体上限
const maxRequestBytes = 4 << 20

// Server 将 Network 暴露为 JSON-RPC 服务（HTTP、WebSocket 与 gRPC）
type Server struct {
	network  client.Network
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

var _ client.RPCHandler = (*Server)(nil)

// NewServer 创建服务端
func NewServer(network client.Network, logger *logging.Logger) *Server {
	return &Server{
		network: network,
		logger:  logging.OrGlobal(logger).Named("simnet.server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router HTTP 路由：POST / 为 JSON-RPC，带 Upgrade 头的 GET / 为 WebSocket
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.serveWebSocket).Methods(http.MethodGet).Headers("Upgrade", "websocket")
	r.HandleFunc("/", s.serveHTTP).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// NewGRPCServer 创建已注册 JSON-RPC 服务的 gRPC 服务器
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(client.JSONCodec{}))
	gs := grpc.NewServer(opts...)
	client.RegisterGRPCHandler(gs, s)
	return gs
}

// HandleRPC 分发一元 JSON-RPC 请求
func (s *Server) HandleRPC(ctx context.Context, req *client.RPCRequest) *client.RPCResponse {
	switch req.Method {
	case client.MethodSendRawTransaction:
		var params []string
		if err := decodeParams(req.Params, &params, 1); err != nil {
			return invalidParams(req.ID, err)
		}
		raw, err := hex.DecodeString(params[0])
		if err != nil {
			return invalidParams(req.ID, fmt.Errorf("transaction is not hex: %w", err))
		}
		ack, err := s.network.SubmitTransaction(ctx, raw)
		if err != nil {
			return s.errorResponse(req, err)
		}
		return client.NewResultResponse(req.ID, ack)

	case client.MethodGetTransactionReceipt:
		var params []string
		if err := decodeParams(req.Params, &params, 1); err != nil {
			return invalidParams(req.ID, err)
		}
		receipt, err := s.network.GetReceipt(ctx, params[0])
		if err != nil {
			return s.errorResponse(req, err)
		}
		if receipt.Outcome() == types.OutcomePending {
			return client.NewResultResponse(req.ID, nil)
		}
		return client.NewResultResponse(req.ID, receipt)

	case client.MethodGetBalance:
		var params []types.AccountID
		if err := decodeParams(req.Params, &params, 1); err != nil {
			return invalidParams(req.ID, err)
		}
		balance, err := s.network.GetAccountBalance(ctx, params[0])
		if err != nil {
			return s.errorResponse(req, err)
		}
		return client.NewResultResponse(req.ID, balance)

	case client.MethodGetScheduleInfo:
		var params []types.ScheduleID
		if err := decodeParams(req.Params, &params, 1); err != nil {
			return invalidParams(req.ID, err)
		}
		info, err := s.network.GetScheduleInfo(ctx, params[0])
		if err != nil {
			return s.errorResponse(req, err)
		}
		return client.NewResultResponse(req.ID, info)

	case client.MethodSubscribeTopic, client.MethodUnsubscribe:
		return client.NewErrorResponse(req.ID, client.RPCMethodNotFound, req.Method+" requires a websocket connection", nil)

	default:
		return client.NewErrorResponse(req.ID, client.RPCMethodNotFound, "method not found: "+req.Method, nil)
	}
}

// errorResponse 账本错误以 Problem Details 返回；传输类错误包装为 NETWORK_ERROR
func (s *Server) errorResponse(req *client.RPCRequest, err error) *client.RPCResponse {
	if le, ok := types.IsLedgerError(err); ok {
		return client.NewProblemResponse(req.ID, le)
	}
	if errors.Is(err, types.ErrNetwork) {
		le := types.WrapError(types.CodeNetwork, err, "ledger unavailable")
		le.Layer = types.LayerNetwork
		return client.NewProblemResponse(req.ID, le)
	}
	s.logger.Warn("rpc request failed", zap.String("method", req.Method), zap.Error(err))
	return client.NewErrorResponse(req.ID, client.RPCServerError, err.Error(), nil)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var resp *client.RPCResponse

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		resp = client.NewErrorResponse(0, client.RPCParseError, "read request: "+err.Error(), nil)
	} else {
		var req client.RPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			resp = client.NewErrorResponse(0, client.RPCParseError, "parse request: "+err.Error(), nil)
		} else {
			resp = s.HandleRPC(r.Context(), &req)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

// wsNotification 服务端推送消息
type wsNotification struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  client.RPCNotification `json:"params"`
}

// wsConn 单个 WebSocket 连接：一个读循环，写操作加锁
type wsConn struct {
	server  *Server
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]context.CancelFunc // 只在读循环中访问
}

func (c *wsConn) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{server: s, conn: conn, subs: make(map[string]context.CancelFunc)}
	defer func() {
		cancel()
		_ = conn.Close()
	}()

	for {
		var req client.RPCRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var (
			resp  *client.RPCResponse
			after func()
		)
		switch req.Method {
		case client.MethodSubscribeTopic:
			resp, after = c.subscribe(ctx, &req)
		case client.MethodUnsubscribe:
			resp = c.unsubscribe(&req)
		default:
			resp = s.HandleRPC(ctx, &req)
		}

		if err := c.write(resp); err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
		if after != nil {
			after()
		}
	}
}

// topicSubscription 订阅参数
type topicSubscription struct {
	TopicID   types.TopicID `json:"topicId"`
	StartTime string        `json:"startTime,omitempty"`
}

// subscribe 建立订阅；返回的 after 在订阅响应写出后启动推送，保证客户端先拿到订阅 ID
func (c *wsConn) subscribe(ctx context.Context, req *client.RPCRequest) (*client.RPCResponse, func()) {
	var params []topicSubscription
	if err := decodeParams(req.Params, &params, 1); err != nil {
		return invalidParams(req.ID, err), nil
	}

	var start time.Time
	if params[0].StartTime != "" {
		t, err := time.Parse(time.RFC3339Nano, params[0].StartTime)
		if err != nil {
			return invalidParams(req.ID, fmt.Errorf("invalid startTime: %w", err)), nil
		}
		start = t
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := c.server.network.SubscribeTopic(subCtx, params[0].TopicID, start)
	if err != nil {
		cancel()
		return c.server.errorResponse(req, err), nil
	}

	id := uuid.New().String()
	c.subs[id] = cancel

	forward := func() {
		go func() {
			defer cancel()
			for msg := range messages {
				raw, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				n := wsNotification{
					JSONRPC: "2.0",
					Method:  client.MethodSubscription,
					Params:  client.RPCNotification{Subscription: id, Result: raw},
				}
				if err := c.write(n); err != nil {
					return
				}
			}
		}()
	}

	return client.NewResultResponse(req.ID, id), forward
}

func (c *wsConn) unsubscribe(req *client.RPCRequest) *client.RPCResponse {
	var params []string
	if err := decodeParams(req.Params, &params, 1); err != nil {
		return invalidParams(req.ID, err)
	}
	cancel, ok := c.subs[params[0]]
	if ok {
		cancel()
		delete(c.subs, params[0])
	}
	return client.NewResultResponse(req.ID, ok)
}

func decodeParams(raw json.RawMessage, v interface{}, want int) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	n := 0
	switch p := v.(type) {
	case *[]string:
		n = len(*p)
	case *[]types.AccountID:
		n = len(*p)
	case *[]types.ScheduleID:
		n = len(*p)
	case *[]topicSubscription:
		n = len(*p)
	}
	if n < want {
		return fmt.Errorf("expected at least %d params, got %d", want, n)
	}
	return nil
}

func invalidParams(id uint64, err error) *client.RPCResponse {
	return client.NewErrorResponse(id, client.RPCInvalidParams, err.Error(), nil)
}
