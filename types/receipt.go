package types

import "time"

// Status 网络返回的交易状态码
type Status string

const (
	StatusSuccess                  Status = "SUCCESS"
	StatusUnknown                  Status = "UNKNOWN" // 尚未达成共识
	StatusBusy                     Status = "BUSY"
	StatusInvalidSignature         Status = "INVALID_SIGNATURE"
	StatusInsufficientBalance      Status = "INSUFFICIENT_ACCOUNT_BALANCE"
	StatusInsufficientTokenBalance Status = "INSUFFICIENT_TOKEN_BALANCE"
	StatusInvalidAccountID         Status = "INVALID_ACCOUNT_ID"
	StatusInvalidTokenID           Status = "INVALID_TOKEN_ID"
	StatusInvalidScheduleID        Status = "INVALID_SCHEDULE_ID"
	StatusInvalidTopicID           Status = "INVALID_TOPIC_ID"
	StatusTokenPaused              Status = "TOKEN_IS_PAUSED"
	StatusTokenNotAssociated       Status = "TOKEN_NOT_ASSOCIATED_TO_ACCOUNT"
	StatusTokenAlreadyAssociated   Status = "TOKEN_ALREADY_ASSOCIATED_TO_ACCOUNT"
	StatusTokenHasNoPauseKey       Status = "TOKEN_HAS_NO_PAUSE_KEY"
	StatusAmountExceedsAllowance   Status = "AMOUNT_EXCEEDS_ALLOWANCE"
	StatusSpenderNoAllowance       Status = "SPENDER_DOES_NOT_HAVE_ALLOWANCE"
	StatusScheduleExpired          Status = "SCHEDULE_ALREADY_EXPIRED"
	StatusScheduleExecuted         Status = "SCHEDULE_ALREADY_EXECUTED"
	StatusScheduleDeleted          Status = "SCHEDULE_ALREADY_DELETED"
	StatusScheduleIsImmutable      Status = "SCHEDULE_IS_IMMUTABLE"
	StatusDuplicateTransaction     Status = "DUPLICATE_TRANSACTION"
	StatusTransactionExpired       Status = "TRANSACTION_EXPIRED"
	StatusInvalidNodeAccount       Status = "INVALID_NODE_ACCOUNT"
	StatusInsufficientTxFee        Status = "INSUFFICIENT_TX_FEE"
	StatusInvalidTransaction       Status = "INVALID_TRANSACTION_BODY"
	StatusPayerAccountNotFound     Status = "PAYER_ACCOUNT_NOT_FOUND"
	StatusReceiptNotFound          Status = "RECEIPT_NOT_FOUND"
)

// Outcome 收据结果分类
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailure Outcome = "failure"
)

// OutcomeOf 将网络状态码归类为 Success / Pending / Failure
func OutcomeOf(s Status) Outcome {
	switch s {
	case StatusSuccess:
		return OutcomeSuccess
	case StatusUnknown, "":
		return OutcomePending
	default:
		return OutcomeFailure
	}
}

// Receipt 交易收据（仅由网络产生，客户端只读）
type Receipt struct {
	TransactionID string `json:"transactionId"`
	Status        Status `json:"status"`

	// 派生实体（按交易类型填充）
	AccountID  AccountID  `json:"accountId,omitempty"`
	TokenID    TokenID    `json:"tokenId,omitempty"`
	ScheduleID ScheduleID `json:"scheduleId,omitempty"`
	TopicID    TopicID    `json:"topicId,omitempty"`

	// ScheduledTransactionID 计划交易中子交易的交易 ID（子交易执行后可查询其收据）
	ScheduledTransactionID string `json:"scheduledTransactionId,omitempty"`

	// TopicSequence 主题消息序号
	TopicSequence uint64 `json:"topicSequence,omitempty"`
}

// Outcome 返回收据结果分类
func (r *Receipt) Outcome() Outcome {
	if r == nil {
		return OutcomePending
	}
	return OutcomeOf(r.Status)
}

// PendingReceipt 构造一个 Pending 收据
func PendingReceipt(txID string) *Receipt {
	return &Receipt{TransactionID: txID, Status: StatusUnknown}
}

// AccountBalance 账户余额
type AccountBalance struct {
	AccountID AccountID         `json:"accountId"`
	Native    int64             `json:"native"`
	Tokens    map[TokenID]int64 `json:"tokens"`
}

// Token 返回指定代币余额（未关联时为 0）
func (b *AccountBalance) Token(id TokenID) int64 {
	if b == nil {
		return 0
	}
	if id.IsNative() {
		return b.Native
	}
	return b.Tokens[id]
}

// ScheduleState 计划交易状态
type ScheduleState string

const (
	ScheduleCreated  ScheduleState = "created"
	ScheduleExecuted ScheduleState = "executed"
	ScheduleExpired  ScheduleState = "expired"
	ScheduleDeleted  ScheduleState = "deleted"
)

// ScheduleInfo 计划交易信息
type ScheduleInfo struct {
	ScheduleID             ScheduleID    `json:"scheduleId"`
	State                  ScheduleState `json:"state"`
	Memo                   string        `json:"memo,omitempty"`
	AdminKey               string        `json:"adminKey,omitempty"` // 压缩公钥 hex
	Creator                AccountID     `json:"creator"`
	Expiry                 time.Time     `json:"expiry"`
	Signatories            []string      `json:"signatories"` // 已收集签名的公钥 hex（有序）
	ScheduledTransactionID string        `json:"scheduledTransactionId"`
	ExecutedAt             *time.Time    `json:"executedAt,omitempty"`
	ExecutionStatus        Status        `json:"executionStatus,omitempty"`
}

// TopicMessage 主题消息
type TopicMessage struct {
	TopicID            TopicID   `json:"topicId"`
	SequenceNumber     uint64    `json:"sequenceNumber"`
	ConsensusTimestamp time.Time `json:"consensusTimestamp"`
	Contents           []byte    `json:"contents"`
}
