package tx

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// envelope 传输格式：交易体原样保留，签名按公钥排序
type envelope struct {
	Body       json.RawMessage `json:"body"`
	Signatures []SignaturePair `json:"signatures"`
}

// Bytes 规范序列化
//
// 交易体字节即签名原文；相同的交易体与签名集合总是得到相同的字节。
func (s *Signed) Bytes() ([]byte, error) {
	env := envelope{
		Body:       json.RawMessage(s.bound.bodyBytes),
		Signatures: s.Signatures(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, types.WrapError(types.CodeInvalidDraft, err, "encode transaction").
			WithTransaction(s.TransactionID().String())
	}
	return data, nil
}

// Decode 反序列化已冻结（可能已部分签名）的交易
//
// 输入必须与 Bytes() 的输出逐字节一致，所有签名必须覆盖交易体；否则拒绝，
// 防止接收方在不一致的字节上继续签名。
func Decode(data []byte) (*Signed, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, types.WrapError(types.CodeInvalidDraft, err, "decode transaction")
	}
	if len(env.Body) == 0 {
		return nil, types.NewError(types.CodeInvalidDraft, "transaction has no body")
	}

	var body Body
	bodyDec := json.NewDecoder(bytes.NewReader(env.Body))
	bodyDec.DisallowUnknownFields()
	if err := bodyDec.Decode(&body); err != nil {
		return nil, types.WrapError(types.CodeInvalidDraft, err, "decode transaction body")
	}

	bound, err := newBound(body)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(bound.bodyBytes, env.Body) {
		return nil, types.NewError(types.CodeInvalidDraft, "transaction body is not canonically encoded")
	}
	if body.TransactionID.Payer == "" {
		return nil, types.NewError(types.CodeInvalidDraft, "transaction is not bound")
	}
	if err := body.Draft.Validate(); err != nil {
		return nil, err
	}

	signed := NewSigned(bound)
	for _, pair := range env.Signatures {
		pub, err := wallet.ParsePublicKeyHex(pair.PublicKey)
		if err != nil {
			return nil, types.WrapError(types.CodeInvalidDraft, err, "decode signer key")
		}
		sig, err := hex.DecodeString(pair.Signature)
		if err != nil {
			return nil, types.WrapError(types.CodeInvalidDraft, err, "decode signature")
		}
		key := hex.EncodeToString(pub)
		if key != pair.PublicKey {
			return nil, types.NewError(types.CodeInvalidDraft, "signer key %s is not canonical", pair.PublicKey)
		}
		if _, dup := signed.sigs[key]; dup {
			return nil, types.NewError(types.CodeInvalidDraft, "duplicate signature for %s", key)
		}
		if !wallet.Verify(pub, bound.bodyBytes, sig) {
			return nil, types.NewError(types.CodeUnauthorizedSubmission, "invalid signature from %s", key).
				WithTransaction(body.TransactionID.String())
		}
		signed.sigs[key] = sig
	}

	// 信封同样必须是规范编码：签名 hex 大小写、空白与 null 都会改变字节
	canonical, err := signed.Bytes()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canonical, data) {
		return nil, types.NewError(types.CodeInvalidDraft, "transaction envelope is not canonically encoded")
	}
	return signed, nil
}

// DecodeHex 解码十六进制传输形式
func DecodeHex(s string) (*Signed, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, types.WrapError(types.CodeInvalidDraft, err, "decode hex transaction")
	}
	return Decode(data)
}

// Hex 十六进制传输形式
func (s *Signed) Hex() (string, error) {
	data, err := s.Bytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}
