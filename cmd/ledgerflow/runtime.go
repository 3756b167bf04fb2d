package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/client"
	"github.com/weisyn/ledger-flow-go/config"
	"github.com/weisyn/ledger-flow-go/flows"
	"github.com/weisyn/ledger-flow-go/logging"
	"github.com/weisyn/ledger-flow-go/metrics"
	promcollector "github.com/weisyn/ledger-flow-go/metrics/prometheus"
	"github.com/weisyn/ledger-flow-go/network/simnet"
	"github.com/weisyn/ledger-flow-go/registry"
	"github.com/weisyn/ledger-flow-go/services"
	"github.com/weisyn/ledger-flow-go/services/transaction"
	"github.com/weisyn/ledger-flow-go/wallet"
)

// runtime 一次命令执行所需的全部依赖
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	network  client.Network
	registry *registry.Registry
	env      *flows.Env
	closers  []func() error
}

// loadConfig 配置优先级：命令行 > 环境变量 > 配置文件 > 默认值
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.GlobalString(configFile.Name))
	if err != nil {
		return nil, err
	}

	for flag, dst := range map[string]*string{
		network.Name:      &cfg.Network,
		endpoint.Name:     &cfg.Endpoint,
		registryPath.Name: &cfg.RegistryPath,
		logLevel.Name:     &cfg.Log.Level,
		metricsAddr.Name:  &cfg.MetricsAddr,
	} {
		if v := c.GlobalString(flag); v != "" {
			*dst = v
		}
	}
	if v := c.GlobalString(protocol.Name); v != "" {
		cfg.Protocol = client.Protocol(v)
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	logging.SetGlobal(logger)
	return logger, nil
}

// newRuntime 组装网络、登记表与服务依赖
//
// simnet 模式下在进程内创建账本，并以运营密钥（未配置时随机生成）创建创世账户。
func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	collector, err := rt.startMetrics()
	if err != nil {
		return nil, err
	}

	// 进程内账本每次都是新的，持久化登记表中的账户在其中不存在
	reg := registry.NewMemory()
	if !cfg.IsSimnet() {
		if reg, err = registry.Open(cfg.RegistryPath); err != nil {
			return nil, err
		}
	}
	rt.registry = reg

	var (
		nc         = cfg.NetworkContext(reg)
		operatorID = cfg.OperatorID
		operator   wallet.Wallet
	)

	if cfg.IsSimnet() {
		ledger := simnet.New(simnet.Config{Name: cfg.Network, Logger: logger})
		runCtx, stop := context.WithCancel(context.Background())
		go ledger.Run(runCtx, 0)
		rt.closers = append(rt.closers, ledger.Close, func() error { stop(); return nil })

		operator, err = simnetOperator(cfg)
		if err != nil {
			return nil, err
		}
		operatorID, err = ledger.Genesis(operator.PublicKey(), c.GlobalInt64(genesisBalance.Name))
		if err != nil {
			return nil, err
		}
		logger.Info("simnet operator ready", zap.String("operator", string(operatorID)))

		nc = ledger.NetworkContext(reg)
		nc.MaxFee = cfg.MaxFee
		nc.ValidDuration = cfg.ValidDuration
		rt.network = ledger
	} else {
		lc, err := client.NewLedgerClient(cfg.ClientConfig(logging.NewClientLogger(logger)))
		if err != nil {
			return nil, err
		}
		rn := client.NewResilientNetwork(lc, client.DefaultResilientConfig(), collector, logger)
		rt.closers = append(rt.closers, rn.Close)
		rt.network = rn

		if cfg.HasOperator() {
			if operator, err = cfg.OperatorWallet(); err != nil {
				return nil, err
			}
		}
	}

	retry := client.DefaultRetryConfig()
	retry.MaxRetries = cfg.SubmitRetries
	svc := services.NewConfig(rt.network, nc, transaction.Options{
		Keys:           reg,
		Retry:          retry,
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.PollInterval,
		Metrics:        collector,
		Logger:         logger,
	})
	if operator != nil && operatorID != "" {
		svc = svc.WithOperator(operatorID, operator)
	}

	rt.env = &flows.Env{Services: svc, Registry: reg, Logger: logger}
	return rt, nil
}

func simnetOperator(cfg *config.Config) (wallet.Wallet, error) {
	if cfg.OperatorKey != "" || cfg.OperatorKeystore != "" {
		return cfg.OperatorWallet()
	}
	return wallet.NewWallet()
}

// startMetrics 配置了 MetricsAddr 时注册 Prometheus 采集器并启动 /metrics
func (rt *runtime) startMetrics() (metrics.Collector, error) {
	if rt.cfg.MetricsAddr == "" {
		return metrics.NoOpCollector{}, nil
	}

	reg := prometheus.NewRegistry()
	collector := promcollector.NewCollector("ledgerflow")
	if err := collector.Register(reg); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: rt.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	rt.logger.Info("metrics exposed", zap.String("addr", rt.cfg.MetricsAddr))
	return collector, nil
}

// ensureAccounts simnet 下登记表总是空的，先创建流程需要的账户
func (rt *runtime) ensureAccounts(ctx context.Context, n int) error {
	if !rt.cfg.IsSimnet() {
		return nil
	}
	_, err := flows.BootstrapAccounts(ctx, rt.env, n)
	return err
}

// requireOperator 需要运营账户的流程在开始前检查
func (rt *runtime) requireOperator() error {
	if rt.env.Services.Operator == nil {
		return fmt.Errorf("%w: this command needs an operator account (LEDGER_OPERATOR_ID and LEDGER_OPERATOR_KEY)", config.ErrInvalidConfig)
	}
	return nil
}

// context 带整体超时的 ctx：收据等待上限加上余量
func (rt *runtime) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*rt.cfg.ReceiptTimeout+rt.cfg.RequestTimeout)
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}
