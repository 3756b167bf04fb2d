// Package integration 测试环境：进程内模拟账本、可控时钟与账户登记表
//
// 默认直接调用 simnet.Ledger；WithHTTPTransport 时经由 JSON-RPC 服务与 client.LedgerClient，
// 覆盖完整的传输路径。
package integration

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/network/simnet"
	"github.com/weisyn/ledger-flow-go/registry"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

const (
	// DefaultTimeout 测试中单个操作的超时
	DefaultTimeout = 10 * time.Second
	// ReceiptTimeout 测试中收据等待上限
	ReceiptTimeout = 5 * time.Second
	// PollInterval 测试中收据轮询间隔
	PollInterval = 5 * time.Millisecond
)

// Clock 可手动推进的测试时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock 以当前时间为起点
func NewClock() *Clock {
	return &Clock{now: time.Now().UTC()}
}

// Now 当前时间
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 推进时钟
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env 测试环境
type Env struct {
	t *testing.T

	Clock    *Clock
	Ledger   *simnet.Ledger
	Network  client.Network
	Registry *registry.Registry
	Logger   *logging.Logger

	// NC 绑定上下文，使用测试时钟与登记表公钥
	NC tx.NetworkContext
}

// Option 环境选项
type Option func(*envOptions)

type envOptions struct {
	ledger       simnet.Config
	http         bool
	registryPath string
}

// WithHTTPTransport 经由 HTTP JSON-RPC 访问账本
func WithHTTPTransport() Option {
	return func(o *envOptions) { o.http = true }
}

// WithSettleDelay 设置共识延迟（按测试时钟计算）
func WithSettleDelay(d time.Duration) Option {
	return func(o *envOptions) { o.ledger.SettleDelay = d }
}

// WithRegistryFile 使用文件登记表
func WithRegistryFile(path string) Option {
	return func(o *envOptions) { o.registryPath = path }
}

// NewEnv 创建测试环境，测试结束时自动关闭
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	clock := NewClock()
	logger := logging.NewNoOpLogger()

	o.ledger.Clock = clock.Now
	o.ledger.Logger = logger
	ledger := simnet.New(o.ledger)
	t.Cleanup(func() { _ = ledger.Close() })

	var network client.Network = ledger
	if o.http {
		srv := httptest.NewServer(simnet.NewServer(ledger, logger).Router())
		t.Cleanup(srv.Close)

		lc, err := client.NewLedgerClient(&client.Config{
			Endpoint: srv.URL,
			Protocol: client.ProtocolHTTP,
			Timeout:  int(DefaultTimeout / time.Second),
			Retry:    &client.RetryConfig{MaxRetries: 0},
		})
		require.NoError(t, err, "创建客户端失败")
		t.Cleanup(func() { _ = lc.Close() })
		network = lc
	}

	reg := registry.NewMemory()
	if o.registryPath != "" {
		var err error
		reg, err = registry.Open(o.registryPath)
		require.NoError(t, err, "打开登记表失败")
	}

	return &Env{
		t:        t,
		Clock:    clock,
		Ledger:   ledger,
		Network:  network,
		Registry: reg,
		Logger:   logger,
		NC:       ledger.NetworkContext(reg),
	}
}

// TestWallet 返回固定私钥的钱包（n 取 1..255，相同 n 得到相同密钥）
func TestWallet(t *testing.T, n int) wallet.Wallet {
	t.Helper()
	w, err := wallet.NewWalletFromPrivateKey(strings.Repeat(fmt.Sprintf("%02x", n), 32))
	require.NoError(t, err, "从私钥创建测试钱包失败")
	return w
}

// Account 在创世状态中创建账户并登记，返回账户 ID 与钱包
func (e *Env) Account(n int, balance int64) (types.AccountID, wallet.Wallet) {
	e.t.Helper()
	w := TestWallet(e.t, n)
	id, err := e.Ledger.Genesis(w.PublicKey(), balance)
	require.NoError(e.t, err, "创建创世账户失败")
	require.NoError(e.t, e.Registry.Append(registry.NewAccount(id, w)), "登记账户失败")
	return id, w
}

// Balance 查询账户余额
func (e *Env) Balance(id types.AccountID) *types.AccountBalance {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	b, err := e.Network.GetAccountBalance(ctx, id)
	require.NoError(e.t, err, "查询余额失败")
	return b
}

// Context 带默认超时的 ctx
func (e *Env) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	e.t.Cleanup(cancel)
	return ctx
}
