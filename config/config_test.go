package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/types"
)

const sampleTOML = `
network = "testnet"
endpoint = "http://127.0.0.1:50211"
protocol = "grpc"
node_account_ids = ["0.0.3", "0.0.4"]
registry_path = "/tmp/accounts.json"
max_fee = 500
valid_duration = "90s"
receipt_timeout = "45s"
poll_interval = "100ms"
submit_retries = 0
metrics_addr = ":9102"

[operator]
id = "0.0.1001"
key = "0101010101010101010101010101010101010101010101010101010101010101"

[log]
level = "debug"
format = "console"
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsSimnet())
	assert.False(t, cfg.HasOperator())
}

func TestLoadFile(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.LoadFile(writeFile(t, sampleTOML)))

	assert.Equal(t, "testnet", cfg.Network)
	assert.Equal(t, client.ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, []types.AccountID{"0.0.3", "0.0.4"}, cfg.NodeAccountIDs)
	assert.Equal(t, types.AccountID("0.0.1001"), cfg.OperatorID)
	assert.Equal(t, int64(500), cfg.MaxFee)
	assert.Equal(t, 90*time.Second, cfg.ValidDuration)
	assert.Equal(t, 45*time.Second, cfg.ReceiptTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 0, cfg.SubmitRetries)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 文件未出现的字段保留默认值
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)

	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.HasOperator())

	w, err := cfg.OperatorWallet()
	require.NoError(t, err)
	assert.Len(t, w.PublicKey(), 33)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		err := Default().LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		err := Default().LoadFile(writeFile(t, `poll_interval = "soon"`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "poll_interval")
	})

	t.Run("malformed toml", func(t *testing.T) {
		err := Default().LoadFile(writeFile(t, `network = `))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("ledger variables", func(t *testing.T) {
		t.Setenv("LEDGER_NETWORK", "mainnet")
		t.Setenv("LEDGER_ENDPOINT", "ws://node:8080")
		t.Setenv("LEDGER_PROTOCOL", "websocket")
		t.Setenv("LEDGER_NODE_ACCOUNT_IDS", "0.0.3, 0.0.5")
		t.Setenv("LEDGER_OPERATOR_ID", "0.0.2002")
		t.Setenv("MY_ACCOUNT_ID", "0.0.9999")
		t.Setenv("LEDGER_MAX_FEE", "1234")
		t.Setenv("LEDGER_RECEIPT_TIMEOUT", "2m")
		t.Setenv("LOG_LEVEL", "warn")

		cfg := Default()
		require.NoError(t, cfg.ApplyEnv())

		assert.Equal(t, "mainnet", cfg.Network)
		assert.Equal(t, client.ProtocolWebSocket, cfg.Protocol)
		assert.Equal(t, []types.AccountID{"0.0.3", "0.0.5"}, cfg.NodeAccountIDs)
		assert.Equal(t, types.AccountID("0.0.2002"), cfg.OperatorID)
		assert.Equal(t, int64(1234), cfg.MaxFee)
		assert.Equal(t, 2*time.Minute, cfg.ReceiptTimeout)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("legacy fallbacks", func(t *testing.T) {
		t.Setenv("MY_ACCOUNT_ID", "0.0.1002")
		t.Setenv("MY_PRIVATE_KEY", "0202020202020202020202020202020202020202020202020202020202020202")

		cfg := Default()
		require.NoError(t, cfg.ApplyEnv())
		assert.Equal(t, types.AccountID("0.0.1002"), cfg.OperatorID)
		assert.True(t, cfg.HasOperator())
	})

	t.Run("bad number", func(t *testing.T) {
		t.Setenv("LEDGER_SUBMIT_RETRIES", "many")
		assert.Error(t, Default().ApplyEnv())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"remote without endpoint", func(c *Config) { c.Network = "testnet" }, "endpoint is required"},
		{"unknown protocol", func(c *Config) { c.Protocol = "carrier-pigeon" }, "unsupported protocol"},
		{"bad operator id", func(c *Config) { c.OperatorID = "nope" }, "operator id"},
		{"key and keystore", func(c *Config) {
			c.OperatorKey = "01"
			c.OperatorKeystore = "k.json"
		}, "mutually exclusive"},
		{"valid duration too long", func(c *Config) { c.ValidDuration = time.Hour }, "valid duration"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "poll interval"},
		{"negative retries", func(c *Config) { c.SubmitRetries = -1 }, "submit retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("LEDGER_ENDPOINT", "http://override:1")

	cfg, err := Load(writeFile(t, sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, "http://override:1", cfg.Endpoint)

	cc := cfg.ClientConfig(nil)
	assert.Equal(t, "http://override:1", cc.Endpoint)
	assert.Equal(t, client.ProtocolGRPC, cc.Protocol)
	assert.Equal(t, 10, cc.Timeout)
	assert.Equal(t, 0, cc.Retry.MaxRetries)

	nc := cfg.NetworkContext(nil)
	assert.Equal(t, "testnet", nc.Name)
	assert.Equal(t, int64(500), nc.MaxFee)
	assert.Equal(t, 90*time.Second, nc.ValidDuration)
}

func TestOperatorWallet_NotConfigured(t *testing.T) {
	_, err := Default().OperatorWallet()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
