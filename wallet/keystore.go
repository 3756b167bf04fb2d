package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations PBKDF2 默认迭代次数
const DefaultKDFIterations = 262144

// Keystore 加密私钥文件结构
type Keystore struct {
	Version   int    `json:"version"`
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	PublicKey string `json:"publicKey"`
	Crypto    Crypto `json:"crypto"`
}

// Crypto 加密信息
type Crypto struct {
	Cipher       string       `json:"cipher"`
	CipherText   string       `json:"ciphertext"`
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

// CipherParams 加密参数
type CipherParams struct {
	IV string `json:"iv"`
}

// KDFParams PBKDF2 参数
type KDFParams struct {
	C     int    `json:"c"`
	DKLen int    `json:"dklen"`
	PRF   string `json:"prf"`
	Salt  string `json:"salt"`
}

// KeystoreManager 操作员私钥的加密存储
type KeystoreManager struct {
	keystoreDir string
	iterations  int
}

// NewKeystoreManager 创建Keystore管理器
func NewKeystoreManager(keystoreDir string) (*KeystoreManager, error) {
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}

	return &KeystoreManager{
		keystoreDir: keystoreDir,
		iterations:  DefaultKDFIterations,
	}, nil
}

// WithIterations 设置 KDF 迭代次数（测试环境可以调低）
func (km *KeystoreManager) WithIterations(n int) *KeystoreManager {
	if n > 0 {
		km.iterations = n
	}
	return km
}

// Path 返回账户对应的 keystore 文件路径
func (km *KeystoreManager) Path(accountID string) string {
	return filepath.Join(km.keystoreDir, fmt.Sprintf("%s.json", accountID))
}

// Save 加密保存钱包私钥
func (km *KeystoreManager) Save(accountID string, w Wallet, password string) (string, error) {
	salt := make([]byte, 32)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), salt, km.iterations, 32, sha256.New)

	privateKey, err := hex.DecodeString(w.PrivateKeyHex())
	if err != nil {
		return "", fmt.Errorf("encode private key: %w", err)
	}

	ciphertext, err := encryptAES(derived[:16], privateKey, iv)
	if err != nil {
		return "", fmt.Errorf("encrypt private key: %w", err)
	}

	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	ks := &Keystore{
		Version:   1,
		ID:        hex.EncodeToString(id),
		AccountID: accountID,
		PublicKey: w.PublicKeyHex(),
		Crypto: Crypto{
			Cipher:       "aes-128-ctr",
			CipherText:   hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{IV: hex.EncodeToString(iv)},
			KDF:          "pbkdf2",
			KDFParams: KDFParams{
				C:     km.iterations,
				DKLen: 32,
				PRF:   "hmac-sha256",
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(computeMAC(derived[16:], ciphertext)),
		},
	}

	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode keystore: %w", err)
	}

	path := km.Path(accountID)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write keystore file: %w", err)
	}

	return path, nil
}

// Load 解密加载钱包
func (km *KeystoreManager) Load(accountID string, password string) (Wallet, error) {
	return LoadKeystoreFile(km.Path(accountID), password)
}

// LoadKeystoreFile 从指定路径解密加载钱包
func LoadKeystoreFile(path string, password string) (Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}

	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}

	if ks.Crypto.KDF != "pbkdf2" || ks.Crypto.KDFParams.C <= 0 {
		return nil, fmt.Errorf("unsupported kdf %q", ks.Crypto.KDF)
	}

	salt, err := hex.DecodeString(ks.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	iv, err := hex.DecodeString(ks.Crypto.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(ks.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	mac, err := hex.DecodeString(ks.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("decode mac: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), salt, ks.Crypto.KDFParams.C, 32, sha256.New)
	if !hmac.Equal(computeMAC(derived[16:], ciphertext), mac) {
		return nil, fmt.Errorf("invalid password")
	}

	privateKey, err := decryptAES(derived[:16], ciphertext, iv)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key: %w", err)
	}

	w, err := NewWalletFromPrivateKey(hex.EncodeToString(privateKey))
	if err != nil {
		return nil, err
	}
	if ks.PublicKey != "" && ks.PublicKey != w.PublicKeyHex() {
		return nil, fmt.Errorf("keystore public key mismatch")
	}
	return w, nil
}

// encryptAES AES-CTR 加密
func encryptAES(key, plaintext, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	stream := cipher.NewCTR(block, iv)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	return ciphertext, nil
}

// decryptAES AES-CTR 解密
func decryptAES(key, ciphertext, iv []byte) ([]byte, error) {
	return encryptAES(key, ciphertext, iv)
}

// computeMAC HMAC-SHA256(macKey, ciphertext)
func computeMAC(macKey, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write(ciphertext)
	return h.Sum(nil)
}
