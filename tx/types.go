// Package tx 实现交易生命周期的本地阶段：草稿构建、冻结绑定、签名收集与规范序列化。
//
// 各阶段类型只能单向转换：Draft → *Bound → *Signed。Bound 与 Signed 创建后不可变，
// 追加签名返回新的 Signed（写时复制），因此可以在多个 goroutine 间安全共享。
package tx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/weisyn/ledger-flow-go/types"
)

// Kind 交易类型
type Kind string

const (
	KindTransfer           Kind = "transfer"
	KindApprovedTransfer   Kind = "approved_transfer"
	KindAllowanceApproval  Kind = "allowance_approval"
	KindTokenCreate        Kind = "token_create"
	KindTokenAssociate     Kind = "token_associate"
	KindTokenPause         Kind = "token_pause"
	KindTokenUnpause       Kind = "token_unpause"
	KindScheduleCreate     Kind = "schedule_create"
	KindScheduleSign       Kind = "schedule_sign"
	KindScheduleDelete     Kind = "schedule_delete"
	KindAccountCreate      Kind = "account_create"
	KindTopicCreate        Kind = "topic_create"
	KindTopicMessageSubmit Kind = "topic_message_submit"
)

// IsTransferFamily 是否为需要满足零和约束的转账类交易
func (k Kind) IsTransferFamily() bool {
	return k == KindTransfer || k == KindApprovedTransfer
}

// LineItem 转账明细行：负数为借记，正数为贷记
type LineItem struct {
	Account  types.AccountID `json:"account"`
	Token    types.TokenID   `json:"token,omitempty"`
	Amount   int64           `json:"amount"`
	Approved bool            `json:"approved,omitempty"` // 借记来自授权额度
}

// SupplyType 代币供应类型
type SupplyType string

const (
	SupplyFinite   SupplyType = "finite"
	SupplyInfinite SupplyType = "infinite"
)

// TokenCreateParams 代币创建参数
type TokenCreateParams struct {
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	Decimals      int32           `json:"decimals"`
	InitialSupply int64           `json:"initialSupply"`
	MaxSupply     int64           `json:"maxSupply"`
	SupplyType    SupplyType      `json:"supplyType"`
	Treasury      types.AccountID `json:"treasury"`
	AdminKey      string          `json:"adminKey,omitempty"`
	SupplyKey     string          `json:"supplyKey,omitempty"`
	PauseKey      string          `json:"pauseKey,omitempty"`
}

// AssociateParams 代币关联参数
type AssociateParams struct {
	Account types.AccountID `json:"account"`
	Tokens  []types.TokenID `json:"tokens"`
}

// AllowanceParams 额度授权参数
type AllowanceParams struct {
	Owner   types.AccountID `json:"owner"`
	Spender types.AccountID `json:"spender"`
	Token   types.TokenID   `json:"token,omitempty"`
	Limit   int64           `json:"limit"`
}

// AccountCreateParams 账户创建参数
type AccountCreateParams struct {
	PublicKey      string `json:"publicKey"`
	InitialBalance int64  `json:"initialBalance"`
}

// ScheduleCreateParams 计划交易参数
//
// Scheduled 为嵌入的子交易草稿；子交易未设置付款账户时由网络使用计划交易的付款账户。
type ScheduleCreateParams struct {
	Scheduled     *Draft `json:"scheduled"`
	Memo          string `json:"memo,omitempty"`
	AdminKey      string `json:"adminKey,omitempty"`
	ExpirySeconds int64  `json:"expirySeconds,omitempty"`
}

// TopicCreateParams 主题创建参数
type TopicCreateParams struct {
	Memo      string `json:"memo,omitempty"`
	AdminKey  string `json:"adminKey,omitempty"`
	SubmitKey string `json:"submitKey,omitempty"`
}

// TopicMessageParams 主题消息参数
type TopicMessageParams struct {
	TopicID types.TopicID `json:"topicId"`
	Message []byte        `json:"message"`
}

// Draft 交易草稿（未绑定网络上下文）
//
// 仅与 Kind 对应的参数字段有值，其余保持零值，序列化时省略。
type Draft struct {
	Kind  Kind            `json:"kind"`
	Payer types.AccountID `json:"payer,omitempty"`
	Memo  string          `json:"memo,omitempty"`

	Transfers   []LineItem            `json:"transfers,omitempty"`
	TokenCreate *TokenCreateParams    `json:"tokenCreate,omitempty"`
	Associate   *AssociateParams      `json:"associate,omitempty"`
	TokenID     types.TokenID         `json:"tokenId,omitempty"`
	Allowance   *AllowanceParams      `json:"allowance,omitempty"`
	Account     *AccountCreateParams  `json:"accountCreate,omitempty"`
	Schedule    *ScheduleCreateParams `json:"scheduleCreate,omitempty"`
	ScheduleID  types.ScheduleID      `json:"scheduleId,omitempty"`
	Topic       *TopicCreateParams    `json:"topicCreate,omitempty"`
	Message     *TopicMessageParams   `json:"topicMessage,omitempty"`
}

// Clone 深拷贝草稿
func (d Draft) Clone() Draft {
	out := d
	if d.Transfers != nil {
		out.Transfers = append([]LineItem(nil), d.Transfers...)
	}
	if d.TokenCreate != nil {
		p := *d.TokenCreate
		out.TokenCreate = &p
	}
	if d.Associate != nil {
		p := *d.Associate
		p.Tokens = append([]types.TokenID(nil), d.Associate.Tokens...)
		out.Associate = &p
	}
	if d.Allowance != nil {
		p := *d.Allowance
		out.Allowance = &p
	}
	if d.Account != nil {
		p := *d.Account
		out.Account = &p
	}
	if d.Schedule != nil {
		p := *d.Schedule
		if d.Schedule.Scheduled != nil {
			child := d.Schedule.Scheduled.Clone()
			p.Scheduled = &child
		}
		out.Schedule = &p
	}
	if d.Topic != nil {
		p := *d.Topic
		out.Topic = &p
	}
	if d.Message != nil {
		p := *d.Message
		p.Message = append([]byte(nil), d.Message.Message...)
		out.Message = &p
	}
	return out
}

// TransactionID 交易标识：付款账户 + 有效期起点
type TransactionID struct {
	Payer      types.AccountID
	ValidStart time.Time
}

// String 返回 payer@seconds.nanos 形式
func (id TransactionID) String() string {
	if id.Payer == "" {
		return ""
	}
	return fmt.Sprintf("%s@%d.%09d", id.Payer, id.ValidStart.Unix(), id.ValidStart.Nanosecond())
}

// IsZero 是否未绑定
func (id TransactionID) IsZero() bool {
	return id.Payer == "" && id.ValidStart.IsZero()
}

// MarshalText 文本编码
func (id TransactionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 文本解码
func (id *TransactionID) UnmarshalText(text []byte) error {
	parsed, err := ParseTransactionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseTransactionID 解析 payer@seconds.nanos
func ParseTransactionID(s string) (TransactionID, error) {
	payer, ts, ok := strings.Cut(s, "@")
	if !ok {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q: missing '@'", s)
	}
	if err := types.AccountID(payer).Validate(); err != nil {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}

	secStr, nanoStr, ok := strings.Cut(ts, ".")
	if !ok || len(nanoStr) != 9 {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q: expected seconds.nanos", s)
	}
	secs, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}
	nanos, err := strconv.ParseInt(nanoStr, 10, 64)
	if err != nil {
		return TransactionID{}, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}

	return TransactionID{
		Payer:      types.AccountID(payer),
		ValidStart: time.Unix(secs, nanos).UTC(),
	}, nil
}

// Signer 签名能力（wallet.Wallet 满足该接口）
type Signer interface {
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
}

// KeyResolver 按账户查找本地已知公钥（registry.Registry 满足该接口）
type KeyResolver interface {
	PublicKey(id types.AccountID) ([]byte, bool)
}
