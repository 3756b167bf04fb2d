// Package config 运行配置：默认值、TOML 配置文件与环境变量三层覆盖
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/tx"
	"github.com/weisyn/ledger-flow-go/types"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// NetworkSimnet 使用进程内模拟账本，无需 Endpoint
const NetworkSimnet = "simnet"

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

// Config 运行配置
type Config struct {
	// Network 网络名称；simnet 表示进程内模拟账本
	Network string
	// Endpoint 节点 JSON-RPC 端点
	Endpoint string
	// Protocol 传输协议（http / grpc / websocket）
	Protocol client.Protocol
	// NodeAccountIDs 提交节点账户
	NodeAccountIDs []types.AccountID

	// OperatorID 付款（运营）账户
	OperatorID types.AccountID
	// OperatorKey 运营账户私钥（hex），与 OperatorKeystore 二选一
	OperatorKey string
	// OperatorKeystore 运营账户 keystore 文件路径
	OperatorKeystore string
	KeystorePassword string

	// RegistryPath 账户登记文件
	RegistryPath string

	MaxFee         int64
	ValidDuration  time.Duration
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	SubmitRetries  int

	// RequestTimeout 单次传输请求超时
	RequestTimeout time.Duration

	// MetricsAddr 非空时在该地址暴露 /metrics
	MetricsAddr string

	Log logging.Config
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Network:        NetworkSimnet,
		Protocol:       client.ProtocolHTTP,
		RegistryPath:   "accounts.json",
		MaxFee:         tx.DefaultMaxFee,
		ValidDuration:  tx.DefaultValidDuration,
		ReceiptTimeout: 30 * time.Second,
		PollInterval:   250 * time.Millisecond,
		SubmitRetries:  3,
		RequestTimeout: 10 * time.Second,
		Log:            logging.DefaultConfig(),
	}
}

// fileConfig TOML 文件结构；时长以字符串书写（如 "30s"）
type fileConfig struct {
	Network        string         `toml:"network"`
	Endpoint       string         `toml:"endpoint"`
	Protocol       string         `toml:"protocol"`
	NodeAccountIDs []string       `toml:"node_account_ids"`
	Operator       operatorFile   `toml:"operator"`
	RegistryPath   string         `toml:"registry_path"`
	MaxFee         int64          `toml:"max_fee"`
	ValidDuration  string         `toml:"valid_duration"`
	ReceiptTimeout string         `toml:"receipt_timeout"`
	PollInterval   string         `toml:"poll_interval"`
	SubmitRetries  *int           `toml:"submit_retries"`
	RequestTimeout string         `toml:"request_timeout"`
	MetricsAddr    string         `toml:"metrics_addr"`
	Log            logging.Config `toml:"log"`
}

type operatorFile struct {
	ID               string `toml:"id"`
	Key              string `toml:"key"`
	Keystore         string `toml:"keystore"`
	KeystorePassword string `toml:"keystore_password"`
}

// Load 默认值 → 配置文件（path 为空时跳过）→ 环境变量，最后校验
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 读取 TOML 配置文件，覆盖文件中出现的字段
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var fc fileConfig
	if err := toml.NewDecoder(f).Decode(&fc); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return c.merge(fc)
}

func (c *Config) merge(fc fileConfig) error {
	setString(&c.Network, fc.Network)
	setString(&c.Endpoint, fc.Endpoint)
	if fc.Protocol != "" {
		c.Protocol = client.Protocol(fc.Protocol)
	}
	if len(fc.NodeAccountIDs) > 0 {
		c.NodeAccountIDs = toAccountIDs(fc.NodeAccountIDs)
	}
	if fc.Operator.ID != "" {
		c.OperatorID = types.AccountID(fc.Operator.ID)
	}
	setString(&c.OperatorKey, fc.Operator.Key)
	setString(&c.OperatorKeystore, fc.Operator.Keystore)
	setString(&c.KeystorePassword, fc.Operator.KeystorePassword)
	setString(&c.RegistryPath, fc.RegistryPath)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	if fc.MaxFee != 0 {
		c.MaxFee = fc.MaxFee
	}
	if fc.SubmitRetries != nil {
		c.SubmitRetries = *fc.SubmitRetries
	}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"valid_duration", fc.ValidDuration, &c.ValidDuration},
		{"receipt_timeout", fc.ReceiptTimeout, &c.ReceiptTimeout},
		{"poll_interval", fc.PollInterval, &c.PollInterval},
		{"request_timeout", fc.RequestTimeout, &c.RequestTimeout},
	} {
		if err := setDuration(d.dst, d.raw); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}

	mergeLog(&c.Log, fc.Log)
	return nil
}

func mergeLog(dst *logging.Config, src logging.Config) {
	setString(&dst.Level, src.Level)
	setString(&dst.Format, src.Format)
	if len(src.OutputPaths) > 0 {
		dst.OutputPaths = src.OutputPaths
	}
	if len(src.ErrorOutputPaths) > 0 {
		dst.ErrorOutputPaths = src.ErrorOutputPaths
	}
	dst.Development = dst.Development || src.Development
	dst.EnableCaller = dst.EnableCaller || src.EnableCaller
	dst.EnableStacktrace = dst.EnableStacktrace || src.EnableStacktrace
}

// ApplyEnv 用 LEDGER_* 环境变量覆盖配置
//
// 兼容旧变量：MY_ACCOUNT_ID / MY_PRIVATE_KEY 在 LEDGER_OPERATOR_ID / LEDGER_OPERATOR_KEY 未设置时生效。
// 日志相关变量（LOG_LEVEL、LOG_FORMAT、LOG_DEV）交由 logging.ConfigFromEnv 处理。
func (c *Config) ApplyEnv() error {
	setString(&c.Network, os.Getenv("LEDGER_NETWORK"))
	setString(&c.Endpoint, os.Getenv("LEDGER_ENDPOINT"))
	if p := os.Getenv("LEDGER_PROTOCOL"); p != "" {
		c.Protocol = client.Protocol(p)
	}
	if nodes := os.Getenv("LEDGER_NODE_ACCOUNT_IDS"); nodes != "" {
		c.NodeAccountIDs = toAccountIDs(strings.Split(nodes, ","))
	}

	if id := firstEnv("LEDGER_OPERATOR_ID", "MY_ACCOUNT_ID"); id != "" {
		c.OperatorID = types.AccountID(id)
	}
	setString(&c.OperatorKey, firstEnv("LEDGER_OPERATOR_KEY", "MY_PRIVATE_KEY"))
	setString(&c.OperatorKeystore, os.Getenv("LEDGER_OPERATOR_KEYSTORE"))
	setString(&c.KeystorePassword, os.Getenv("LEDGER_KEYSTORE_PASSWORD"))
	setString(&c.RegistryPath, os.Getenv("LEDGER_REGISTRY_PATH"))
	setString(&c.MetricsAddr, os.Getenv("LEDGER_METRICS_ADDR"))

	if v := os.Getenv("LEDGER_MAX_FEE"); v != "" {
		fee, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("LEDGER_MAX_FEE: %w", err)
		}
		c.MaxFee = fee
	}
	if v := os.Getenv("LEDGER_SUBMIT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEDGER_SUBMIT_RETRIES: %w", err)
		}
		c.SubmitRetries = n
	}

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"LEDGER_VALID_DURATION", &c.ValidDuration},
		{"LEDGER_RECEIPT_TIMEOUT", &c.ReceiptTimeout},
		{"LEDGER_POLL_INTERVAL", &c.PollInterval},
		{"LEDGER_REQUEST_TIMEOUT", &c.RequestTimeout},
	} {
		if err := setDuration(d.dst, os.Getenv(d.name)); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}

	c.Log = logging.ConfigFromEnv(c.Log)
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var problems []string

	if c.Network == "" {
		problems = append(problems, "network is required")
	}
	if !c.IsSimnet() && c.Endpoint == "" {
		problems = append(problems, "endpoint is required unless network is simnet")
	}
	switch c.Protocol {
	case client.ProtocolHTTP, client.ProtocolGRPC, client.ProtocolWebSocket:
	default:
		problems = append(problems, fmt.Sprintf("unsupported protocol %q", c.Protocol))
	}
	for _, id := range c.NodeAccountIDs {
		if err := id.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("node account: %v", err))
		}
	}
	if c.OperatorID != "" {
		if err := c.OperatorID.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("operator id: %v", err))
		}
	}
	if c.OperatorKey != "" && c.OperatorKeystore != "" {
		problems = append(problems, "operator key and operator keystore are mutually exclusive")
	}
	if c.MaxFee <= 0 {
		problems = append(problems, "max fee must be positive")
	}
	if c.ValidDuration <= 0 || c.ValidDuration > tx.MaxValidDuration {
		problems = append(problems, fmt.Sprintf("valid duration must be in (0, %s]", tx.MaxValidDuration))
	}
	if c.ReceiptTimeout <= 0 {
		problems = append(problems, "receipt timeout must be positive")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	if c.SubmitRetries < 0 {
		problems = append(problems, "submit retries must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// IsSimnet 是否使用进程内模拟账本
func (c *Config) IsSimnet() bool {
	return c.Network == NetworkSimnet
}

// HasOperator 是否配置了运营账户及其密钥
func (c *Config) HasOperator() bool {
	return c.OperatorID != "" && (c.OperatorKey != "" || c.OperatorKeystore != "")
}

// OperatorWallet 加载运营账户钱包（私钥或 keystore）
func (c *Config) OperatorWallet() (wallet.Wallet, error) {
	switch {
	case c.OperatorKey != "":
		w, err := wallet.NewWalletFromPrivateKey(c.OperatorKey)
		if err != nil {
			return nil, fmt.Errorf("operator key: %w", err)
		}
		return w, nil
	case c.OperatorKeystore != "":
		w, err := wallet.LoadKeystoreFile(c.OperatorKeystore, c.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("operator keystore: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w: operator key not configured", ErrInvalidConfig)
	}
}

// ClientConfig 传输层配置
//
// 传输层不重试：提交重试次数由交易服务按 SubmitRetries 统一控制，
// 两层都重试会把尝试次数放大为 (N+1)²。
func (c *Config) ClientConfig(logger client.Logger) *client.Config {
	retry := client.DefaultRetryConfig()
	retry.MaxRetries = 0

	return &client.Config{
		Endpoint: c.Endpoint,
		Protocol: c.Protocol,
		Timeout:  int(c.RequestTimeout / time.Second),
		Logger:   logger,
		Retry:    retry,
	}
}

// NetworkContext 绑定交易所需的网络上下文
func (c *Config) NetworkContext(keys tx.KeyResolver) tx.NetworkContext {
	return tx.NetworkContext{
		Name:           c.Network,
		NodeAccountIDs: append([]types.AccountID(nil), c.NodeAccountIDs...),
		MaxFee:         c.MaxFee,
		ValidDuration:  c.ValidDuration,
		Keys:           keys,
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func toAccountIDs(raw []string) []types.AccountID {
	out := make([]types.AccountID, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, types.AccountID(s))
		}
	}
	return out
}
