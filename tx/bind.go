package tx

import (
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	"github.com/weisyn/ledger-flow-go/types"
)

const (
	// DefaultValidDuration 默认交易有效期
	DefaultValidDuration = 120 * time.Second

	// MaxValidDuration 网络接受的最长有效期
	MaxValidDuration = 180 * time.Second

	// DefaultMaxFee 默认最高手续费（最小单位）
	DefaultMaxFee int64 = 200_000_000
)

// NetworkContext 绑定交易所需的网络上下文，显式传递而非全局单例
type NetworkContext struct {
	Name           string
	NodeAccountIDs []types.AccountID
	MaxFee         int64
	ValidDuration  time.Duration
	Clock          func() time.Time

	// Keys 本地已知公钥；RequireLocalSigner 为 true 时付款账户必须可解析
	Keys               KeyResolver
	RequireLocalSigner bool
}

func (nc NetworkContext) withDefaults() NetworkContext {
	if nc.ValidDuration == 0 {
		nc.ValidDuration = DefaultValidDuration
	}
	if nc.MaxFee == 0 {
		nc.MaxFee = DefaultMaxFee
	}
	if nc.Clock == nil {
		nc.Clock = time.Now
	}
	return nc
}

// Body 冻结后的交易体，签名覆盖其规范字节
type Body struct {
	TransactionID        TransactionID     `json:"transactionId"`
	Network              string            `json:"network,omitempty"`
	NodeAccountIDs       []types.AccountID `json:"nodeAccountIds"`
	MaxFee               int64             `json:"maxFee"`
	ValidDurationSeconds int64             `json:"validDurationSeconds"`
	Draft                Draft             `json:"draft"`
}

func (b Body) clone() Body {
	out := b
	out.NodeAccountIDs = append([]types.AccountID(nil), b.NodeAccountIDs...)
	out.Draft = b.Draft.Clone()
	return out
}

// ValidUntil 有效期终点
func (b Body) ValidUntil() time.Time {
	return b.TransactionID.ValidStart.Add(time.Duration(b.ValidDurationSeconds) * time.Second)
}

// Bound 已冻结的交易：交易体不可再修改
type Bound struct {
	body      Body
	bodyBytes []byte
}

// maxValidStartLag 时钟回拨超过该幅度时不再顺延（例如切换到另一个时钟源）
const maxValidStartLag = time.Second

// validStarts 保证同一进程内的有效期起点严格递增，避免同一时钟读数产生重复交易 ID
var validStarts struct {
	sync.Mutex
	last time.Time
}

func nextValidStart(now time.Time) time.Time {
	validStarts.Lock()
	defer validStarts.Unlock()

	now = now.UTC()
	if !now.After(validStarts.last) && validStarts.last.Sub(now) < maxValidStartLag {
		now = validStarts.last.Add(time.Nanosecond)
	}
	validStarts.last = now
	return now
}

// Bind 将草稿与付款账户和网络上下文绑定，生成不可变的交易体
func Bind(d Draft, payer types.AccountID, nc NetworkContext) (*Bound, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := payer.Validate(); err != nil {
		return nil, types.WrapError(types.CodeBinding, err, "invalid payer")
	}
	if d.Payer != "" && d.Payer != payer {
		return nil, types.NewError(types.CodeBinding, "draft payer %s conflicts with %s", d.Payer, payer)
	}

	nc = nc.withDefaults()
	if len(nc.NodeAccountIDs) == 0 {
		return nil, types.NewError(types.CodeBinding, "network context has no node accounts")
	}
	for _, node := range nc.NodeAccountIDs {
		if err := node.Validate(); err != nil {
			return nil, types.WrapError(types.CodeBinding, err, "invalid node account")
		}
	}
	if nc.ValidDuration < time.Second || nc.ValidDuration > MaxValidDuration {
		return nil, types.NewError(types.CodeBinding, "valid duration %s out of range", nc.ValidDuration)
	}
	if nc.MaxFee < 0 {
		return nil, types.NewError(types.CodeBinding, "negative max fee")
	}
	if nc.RequireLocalSigner {
		if nc.Keys == nil {
			return nil, types.NewError(types.CodeBinding, "no key resolver configured")
		}
		if _, ok := nc.Keys.PublicKey(payer); !ok {
			return nil, types.NewError(types.CodeBinding, "no local key for payer %s", payer)
		}
	}

	draft := d.Clone()
	draft.Payer = payer

	body := Body{
		TransactionID: TransactionID{
			Payer:      payer,
			ValidStart: nextValidStart(nc.Clock()),
		},
		Network:              nc.Name,
		NodeAccountIDs:       append([]types.AccountID(nil), nc.NodeAccountIDs...),
		MaxFee:               nc.MaxFee,
		ValidDurationSeconds: int64(nc.ValidDuration / time.Second),
		Draft:                draft,
	}

	return newBound(body)
}

func newBound(body Body) (*Bound, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.WrapError(types.CodeBinding, err, "encode transaction body")
	}
	return &Bound{body: body, bodyBytes: data}, nil
}

// TransactionID 交易 ID
func (b *Bound) TransactionID() TransactionID {
	return b.body.TransactionID
}

// Payer 付款账户
func (b *Bound) Payer() types.AccountID {
	return b.body.TransactionID.Payer
}

// Kind 交易类型
func (b *Bound) Kind() Kind {
	return b.body.Draft.Kind
}

// Draft 返回草稿副本
func (b *Bound) Draft() Draft {
	return b.body.Draft.Clone()
}

// Body 返回交易体副本
func (b *Bound) Body() Body {
	return b.body.clone()
}

// BodyBytes 规范交易体字节（签名原文）
func (b *Bound) BodyBytes() []byte {
	return append([]byte(nil), b.bodyBytes...)
}

// Hash 交易体摘要
func (b *Bound) Hash() [32]byte {
	return sha256.Sum256(b.bodyBytes)
}

// Sign 以给定签名者签名，返回首个 Signed
func (b *Bound) Sign(signers ...Signer) (*Signed, error) {
	return NewSigned(b).Sign(signers...)
}
