package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weisyn/ledger-flow-go/types"
)

// LedgerClient 基于 JSON-RPC 传输的 Network 实现
//
// 提供类型化封装，上层不直接使用 Call(method, params)。
type LedgerClient struct {
	client Client
	logger Logger
}

var _ Network = (*LedgerClient)(nil)

// NewLedgerClient 按配置创建
func NewLedgerClient(config *Config) (*LedgerClient, error) {
	if config == nil {
		config = DefaultConfig()
	}
	c, err := NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &LedgerClient{client: c, logger: loggerOf(config)}, nil
}

// NewLedgerClientFromClient 基于已有传输客户端创建
func NewLedgerClientFromClient(c Client) *LedgerClient {
	return &LedgerClient{client: c, logger: nopLogger{}}
}

// Transport 底层传输（不推荐上层直接使用）
func (c *LedgerClient) Transport() Client {
	return c.client
}

// SubmitTransaction 提交已签名交易（十六进制编码传输）
func (c *LedgerClient) SubmitTransaction(ctx context.Context, signedTx []byte) (*SubmitAck, error) {
	if len(signedTx) == 0 {
		return nil, types.NewError(types.CodeInvalidParameters, "signed transaction is empty")
	}

	raw, err := c.client.Call(ctx, MethodSendRawTransaction, []interface{}{hex.EncodeToString(signedTx)})
	if err != nil {
		return nil, wrapRPCError(MethodSendRawTransaction, err)
	}

	var ack SubmitAck
	if err := decodeResult(raw, &ack); err != nil {
		return nil, err
	}
	if ack.TransactionID == "" {
		return nil, NewInvalidResponseError("submit response missing transaction id")
	}
	return &ack, nil
}

// GetReceipt 查询交易收据
func (c *LedgerClient) GetReceipt(ctx context.Context, txID string) (*types.Receipt, error) {
	if txID == "" {
		return nil, types.NewError(types.CodeInvalidParameters, "transaction id is required")
	}

	raw, err := c.client.Call(ctx, MethodGetTransactionReceipt, []interface{}{txID})
	if err != nil {
		return nil, wrapRPCError(MethodGetTransactionReceipt, err)
	}

	// 收据尚不存在
	if isNull(raw) {
		return types.PendingReceipt(txID), nil
	}

	var receipt types.Receipt
	if err := decodeResult(raw, &receipt); err != nil {
		return nil, err
	}
	if receipt.TransactionID == "" {
		receipt.TransactionID = txID
	}
	return &receipt, nil
}

// GetAccountBalance 查询账户余额
func (c *LedgerClient) GetAccountBalance(ctx context.Context, accountID types.AccountID) (*types.AccountBalance, error) {
	if err := accountID.Validate(); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid account id")
	}

	raw, err := c.client.Call(ctx, MethodGetBalance, []interface{}{accountID})
	if err != nil {
		return nil, wrapRPCError(MethodGetBalance, err)
	}

	var balance types.AccountBalance
	if err := decodeResult(raw, &balance); err != nil {
		return nil, err
	}
	if balance.Tokens == nil {
		balance.Tokens = make(map[types.TokenID]int64)
	}
	return &balance, nil
}

// GetScheduleInfo 查询计划交易
func (c *LedgerClient) GetScheduleInfo(ctx context.Context, scheduleID types.ScheduleID) (*types.ScheduleInfo, error) {
	if err := scheduleID.Validate(); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid schedule id")
	}

	raw, err := c.client.Call(ctx, MethodGetScheduleInfo, []interface{}{scheduleID})
	if err != nil {
		return nil, wrapRPCError(MethodGetScheduleInfo, err)
	}

	var info types.ScheduleInfo
	if err := decodeResult(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// topicSubscribeParams 主题订阅参数
type topicSubscribeParams struct {
	TopicID   types.TopicID `json:"topicId"`
	StartTime string        `json:"startTime,omitempty"`
}

// SubscribeTopic 订阅主题消息（需要 WebSocket 传输）
func (c *LedgerClient) SubscribeTopic(ctx context.Context, topicID types.TopicID, start time.Time) (<-chan *types.TopicMessage, error) {
	if err := topicID.Validate(); err != nil {
		return nil, types.WrapError(types.CodeInvalidParameters, err, "invalid topic id")
	}

	params := topicSubscribeParams{TopicID: topicID}
	if !start.IsZero() {
		params.StartTime = start.UTC().Format(time.RFC3339Nano)
	}

	notifications, err := c.client.Subscribe(ctx, MethodSubscribeTopic, []interface{}{params})
	if err != nil {
		return nil, wrapRPCError(MethodSubscribeTopic, err)
	}

	out := make(chan *types.TopicMessage, subscriptionBuffer)
	go func() {
		defer close(out)
		for raw := range notifications {
			var msg types.TopicMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				c.logger.Warn("invalid topic message", "topic", topicID, "error", err)
				continue
			}
			select {
			case out <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close 关闭连接
func (c *LedgerClient) Close() error {
	return c.client.Close()
}

// wrapRPCError 为传输错误附加方法名；LedgerError 原样返回以保留网络状态码
func wrapRPCError(method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.IsLedgerError(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", method, err)
}

func decodeResult(raw json.RawMessage, v interface{}) error {
	if isNull(raw) {
		return NewInvalidResponseError("empty result")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Code: ErrCodeInvalidResponse, Message: "decode result failed", Err: err}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
