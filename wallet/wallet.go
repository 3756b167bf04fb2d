package wallet

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength 签名长度（r || s）
const SignatureLength = 64

// Wallet 签名能力接口
type Wallet interface {
	// PublicKey 压缩公钥（33 字节）
	PublicKey() []byte

	// PublicKeyHex 压缩公钥的十六进制表示，用作签名集合的键
	PublicKeyHex() string

	// Sign 对消息签名：sha256(msg) 后做确定性 secp256k1 签名
	Sign(msg []byte) ([]byte, error)

	// SignHash 对 32 字节哈希签名
	SignHash(hash []byte) ([]byte, error)

	// PrivateKey 获取私钥（谨慎使用）
	PrivateKey() *ecdsa.PrivateKey

	// PrivateKeyHex 私钥的十六进制表示（用于账户登记文件）
	PrivateKeyHex() string
}

// SimpleWallet 基于内存私钥的钱包实现
type SimpleWallet struct {
	privateKey *ecdsa.PrivateKey
	publicKey  []byte
}

// NewWallet 生成新的 secp256k1 密钥
func NewWallet() (Wallet, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return newSimpleWallet(privateKey), nil
}

// NewWalletFromPrivateKey 从十六进制私钥创建钱包（可带 0x 前缀）
func NewWalletFromPrivateKey(privateKeyHex string) (Wallet, error) {
	privateKeyBytes, err := hex.DecodeString(hexRemovePrefix(strings.TrimSpace(privateKeyHex)))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	if len(privateKeyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key length: expected 32 bytes, got %d", len(privateKeyBytes))
	}

	privateKey, err := ethcrypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 private key failed: %w", err)
	}

	return newSimpleWallet(privateKey), nil
}

func newSimpleWallet(privateKey *ecdsa.PrivateKey) *SimpleWallet {
	return &SimpleWallet{
		privateKey: privateKey,
		publicKey:  ethcrypto.CompressPubkey(&privateKey.PublicKey),
	}
}

// PublicKey 压缩公钥
func (w *SimpleWallet) PublicKey() []byte {
	out := make([]byte, len(w.publicKey))
	copy(out, w.publicKey)
	return out
}

// PublicKeyHex 压缩公钥十六进制
func (w *SimpleWallet) PublicKeyHex() string {
	return hex.EncodeToString(w.publicKey)
}

// Sign 签名消息
func (w *SimpleWallet) Sign(msg []byte) ([]byte, error) {
	hash := sha256.Sum256(msg)
	return w.SignHash(hash[:])
}

// SignHash 签名哈希值
//
// go-ethereum 的 Sign 使用 RFC6979 确定性 nonce，同一密钥对同一哈希的签名恒定，
// 这是签名集合幂等与顺序无关的前提。
func (w *SimpleWallet) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("invalid hash length: expected 32 bytes, got %d", len(hash))
	}

	sig, err := ethcrypto.Sign(hash, w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 sign: %w", err)
	}

	// 去掉恢复位 V
	return sig[:SignatureLength], nil
}

// PrivateKey 获取私钥
func (w *SimpleWallet) PrivateKey() *ecdsa.PrivateKey {
	return w.privateKey
}

// PrivateKeyHex 私钥十六进制
func (w *SimpleWallet) PrivateKeyHex() string {
	return hex.EncodeToString(ethcrypto.FromECDSA(w.privateKey))
}

// Verify 校验签名：pubKey 为压缩或非压缩公钥，sig 为 r || s
func Verify(pubKey, msg, sig []byte) bool {
	if len(sig) != SignatureLength {
		return false
	}
	hash := sha256.Sum256(msg)
	return ethcrypto.VerifySignature(pubKey, hash[:], sig)
}

// ParsePublicKeyHex 解析并校验十六进制公钥，返回压缩形式
func ParsePublicKeyHex(pubHex string) ([]byte, error) {
	raw, err := hex.DecodeString(hexRemovePrefix(strings.TrimSpace(pubHex)))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}

	switch len(raw) {
	case 33:
		if _, err := ethcrypto.DecompressPubkey(raw); err != nil {
			return nil, fmt.Errorf("invalid compressed public key: %w", err)
		}
		return raw, nil
	case 65:
		pub, err := ethcrypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid public key: %w", err)
		}
		return ethcrypto.CompressPubkey(pub), nil
	default:
		return nil, fmt.Errorf("invalid public key length: %d", len(raw))
	}
}

// hexRemovePrefix 移除十六进制字符串的0x前缀
func hexRemovePrefix(hexStr string) string {
	if len(hexStr) >= 2 && hexStr[:2] == "0x" {
		return hexStr[2:]
	}
	return hexStr
}
