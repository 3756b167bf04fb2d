package client

import (
	"context"
	"time"

	"github.com/weisyn/ledger-flow-go/types"
)

// Network 账本网络协作者接口
//
// 提交只代表节点受理（通过预检），交易结果只能通过收据获得。
type Network interface {
	// SubmitTransaction 提交已签名交易的规范字节
	SubmitTransaction(ctx context.Context, signedTx []byte) (*SubmitAck, error)

	// GetReceipt 查询收据；尚未达成共识时返回 Pending 收据（Status=UNKNOWN）
	GetReceipt(ctx context.Context, txID string) (*types.Receipt, error)

	// GetAccountBalance 查询账户余额
	GetAccountBalance(ctx context.Context, accountID types.AccountID) (*types.AccountBalance, error)

	// GetScheduleInfo 查询计划交易
	GetScheduleInfo(ctx context.Context, scheduleID types.ScheduleID) (*types.ScheduleInfo, error)

	// SubscribeTopic 订阅主题消息（从 start 起，含历史消息）；ctx 取消时关闭通道
	SubscribeTopic(ctx context.Context, topicID types.TopicID, start time.Time) (<-chan *types.TopicMessage, error)

	// Close 释放连接
	Close() error
}

// SubmitAck 节点受理回执
type SubmitAck struct {
	TransactionID string          `json:"transactionId"`
	NodeID        types.AccountID `json:"nodeId"`
	Status        types.Status    `json:"status"`
}
