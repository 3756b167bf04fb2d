package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// SignaturePair 公钥与签名（均为十六进制）
type SignaturePair struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// Signed 携带签名集合的交易
//
// 签名集合以压缩公钥为键：同一密钥重复签名会覆盖旧值。由于签名是确定性的，
// 签名的先后顺序与重复次数都不影响最终字节。
type Signed struct {
	bound *Bound
	sigs  map[string][]byte
}

// NewSigned 创建零签名的 Signed（可以序列化，但不能提交）
func NewSigned(b *Bound) *Signed {
	return &Signed{bound: b, sigs: make(map[string][]byte)}
}

func (s *Signed) copyOnWrite() *Signed {
	sigs := make(map[string][]byte, len(s.sigs)+1)
	for k, v := range s.sigs {
		sigs[k] = v
	}
	return &Signed{bound: s.bound, sigs: sigs}
}

// Sign 追加签名，返回新的 Signed
func (s *Signed) Sign(signers ...Signer) (*Signed, error) {
	out := s.copyOnWrite()
	for _, signer := range signers {
		sig, err := signer.Sign(s.bound.bodyBytes)
		if err != nil {
			return nil, fmt.Errorf("sign transaction %s: %w", s.bound.TransactionID(), err)
		}
		out.sigs[hex.EncodeToString(signer.PublicKey())] = sig
	}
	return out, nil
}

// AddSignature 加入外部产生的签名（例如离线签名），签名必须能通过校验
func (s *Signed) AddSignature(publicKey, signature []byte) (*Signed, error) {
	pub, err := wallet.ParsePublicKeyHex(hex.EncodeToString(publicKey))
	if err != nil {
		return nil, types.WrapError(types.CodeUnauthorizedSubmission, err, "invalid signer key").
			WithTransaction(s.TransactionID().String())
	}
	if !wallet.Verify(pub, s.bound.bodyBytes, signature) {
		return nil, types.NewError(types.CodeUnauthorizedSubmission, "signature does not match transaction body").
			WithTransaction(s.TransactionID().String())
	}

	out := s.copyOnWrite()
	out.sigs[hex.EncodeToString(pub)] = append([]byte(nil), signature...)
	return out, nil
}

// Bound 返回底层已冻结交易
func (s *Signed) Bound() *Bound {
	return s.bound
}

// TransactionID 交易 ID
func (s *Signed) TransactionID() TransactionID {
	return s.bound.TransactionID()
}

// Payer 付款账户
func (s *Signed) Payer() types.AccountID {
	return s.bound.Payer()
}

// Kind 交易类型
func (s *Signed) Kind() Kind {
	return s.bound.Kind()
}

// Draft 草稿副本
func (s *Signed) Draft() Draft {
	return s.bound.Draft()
}

// Body 交易体副本
func (s *Signed) Body() Body {
	return s.bound.Body()
}

// BodyBytes 规范交易体字节
func (s *Signed) BodyBytes() []byte {
	return s.bound.BodyBytes()
}

// SignatureCount 签名数量
func (s *Signed) SignatureCount() int {
	return len(s.sigs)
}

// HasSignatureFrom 是否包含指定公钥的签名
func (s *Signed) HasSignatureFrom(publicKey []byte) bool {
	_, ok := s.sigs[hex.EncodeToString(publicKey)]
	return ok
}

// Signatures 按公钥排序的签名列表
func (s *Signed) Signatures() []SignaturePair {
	keys := make([]string, 0, len(s.sigs))
	for k := range s.sigs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]SignaturePair, 0, len(keys))
	for _, k := range keys {
		out = append(out, SignaturePair{PublicKey: k, Signature: hex.EncodeToString(s.sigs[k])})
	}
	return out
}

// Signers 已签名的公钥（十六进制，有序）
func (s *Signed) Signers() []string {
	pairs := s.Signatures()
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.PublicKey
	}
	return out
}

// Verify 校验所有签名都覆盖当前交易体
func (s *Signed) Verify() error {
	for _, pair := range s.Signatures() {
		pub, err := hex.DecodeString(pair.PublicKey)
		if err != nil {
			return fmt.Errorf("decode signer key: %w", err)
		}
		if !wallet.Verify(pub, s.bound.bodyBytes, s.sigs[pair.PublicKey]) {
			return types.NewError(types.CodeUnauthorizedSubmission, "invalid signature from %s", pair.PublicKey).
				WithTransaction(s.TransactionID().String())
		}
	}
	return nil
}

// Equal 两笔交易的规范字节是否一致
func (s *Signed) Equal(other *Signed) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, errA := s.Bytes()
	b, errB := other.Bytes()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}
