// Package registry 维护账户标识到密钥对的映射（本地签名能力的来源）。
//
// 登记文件为扁平 JSON：{"accounts":[{"id","privateKey","publicKey"}]}。
// 文件不存在视为空登记表；追加写入在写锁内完成"读取-合并-写临时文件-重命名"，
// 避免并发写入丢失更新。读操作只持有读锁，互不阻塞。
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// ErrDuplicateAccount 账户已登记
var ErrDuplicateAccount = errors.New("account already registered")

// Account 账户记录（创建后不可变）
type Account struct {
	ID         types.AccountID `json:"id"`
	PrivateKey string          `json:"privateKey"`
	PublicKey  string          `json:"publicKey"`
}

// NewAccount 由钱包构建账户记录
func NewAccount(id types.AccountID, w wallet.Wallet) Account {
	return Account{
		ID:         id,
		PrivateKey: w.PrivateKeyHex(),
		PublicKey:  w.PublicKeyHex(),
	}
}

// Wallet 返回账户的签名钱包
func (a Account) Wallet() (wallet.Wallet, error) {
	w, err := wallet.NewWalletFromPrivateKey(a.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", a.ID, err)
	}
	return w, nil
}

// Validate 校验记录完整性与密钥一致性
func (a Account) Validate() error {
	if err := a.ID.Validate(); err != nil {
		return err
	}
	w, err := a.Wallet()
	if err != nil {
		return err
	}
	if a.PublicKey != "" && a.PublicKey != w.PublicKeyHex() {
		return fmt.Errorf("account %s: public key does not match private key", a.ID)
	}
	return nil
}

type fileFormat struct {
	Accounts []Account `json:"accounts"`
}

// Registry 账户登记表
type Registry struct {
	mu       sync.RWMutex
	path     string // 为空表示纯内存
	accounts []Account
	index    map[types.AccountID]int
}

// NewMemory 创建不落盘的登记表
func NewMemory() *Registry {
	return &Registry{index: make(map[types.AccountID]int)}
}

// Open 打开（或按需创建）文件登记表
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, index: make(map[types.AccountID]int)}

	accounts, err := readFile(path)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		r.add(acc)
	}
	return r, nil
}

// Path 登记文件路径
func (r *Registry) Path() string {
	return r.path
}

// LoadAll 返回全部账户（按登记顺序的副本）
func (r *Registry) LoadAll() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// Len 已登记账户数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// Get 查找账户
func (r *Registry) Get(id types.AccountID) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Account{}, false
	}
	return r.accounts[i], true
}

// Wallet 返回账户钱包
func (r *Registry) Wallet(id types.AccountID) (wallet.Wallet, error) {
	acc, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("account %s not found in registry", id)
	}
	return acc.Wallet()
}

// PublicKey 返回账户压缩公钥
func (r *Registry) PublicKey(id types.AccountID) ([]byte, bool) {
	acc, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	pub, err := wallet.ParsePublicKeyHex(acc.PublicKey)
	if err != nil {
		return nil, false
	}
	return pub, true
}

// Append 追加账户并持久化
func (r *Registry) Append(acc Account) error {
	if err := acc.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 合并其他写入者已落盘的记录
	if r.path != "" {
		onDisk, err := readFile(r.path)
		if err != nil {
			return err
		}
		for _, existing := range onDisk {
			if _, ok := r.index[existing.ID]; !ok {
				r.add(existing)
			}
		}
	}

	if _, ok := r.index[acc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, acc.ID)
	}
	r.add(acc)

	if r.path == "" {
		return nil
	}
	if err := writeFile(r.path, r.accounts); err != nil {
		// 回滚内存状态，保持与文件一致
		delete(r.index, acc.ID)
		r.accounts = r.accounts[:len(r.accounts)-1]
		return err
	}
	return nil
}

func (r *Registry) add(acc Account) {
	r.index[acc.ID] = len(r.accounts)
	r.accounts = append(r.accounts, acc)
}

func readFile(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}
	return f.Accounts, nil
}

func writeFile(path string, accounts []Account) error {
	data, err := json.MarshalIndent(fileFormat{Accounts: accounts}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}
