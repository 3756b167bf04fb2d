package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/weisyn/ledger-flow-go/network/simnet"
)

// runServe 启动独立的模拟账本，其他进程可通过 http/ws/grpc 连接
func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ledger := simnet.New(simnet.Config{Name: cfg.Network, Logger: logger})
	defer func() { _ = ledger.Close() }()

	operator, err := simnetOperator(cfg)
	if err != nil {
		return err
	}
	operatorID, err := ledger.Genesis(operator.PublicKey(), c.GlobalInt64(genesisBalance.Name))
	if err != nil {
		return err
	}

	fmt.Printf("Operator account: %s\n", operatorID)
	// 随机生成的运营密钥只打印这一次，客户端通过 LEDGER_OPERATOR_KEY 使用
	if cfg.OperatorKey == "" && cfg.OperatorKeystore == "" {
		fmt.Printf("Operator key: %s\n", operator.PrivateKeyHex())
	} else {
		fmt.Printf("Operator public key: %s\n", operator.PublicKeyHex())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go ledger.Run(ctx, c.Duration(settleInterval.Name))

	srv := simnet.NewServer(ledger, logger)
	httpSrv := &http.Server{
		Addr:              c.String(listen.Name),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", c.String(grpcListen.Name))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcSrv := srv.NewGRPCServer()

	errCh := make(chan error, 2)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	logger.Info("simnet serving",
		zap.String("http", httpSrv.Addr),
		zap.String("grpc", lis.Addr().String()),
		zap.String("operator", string(operatorID)),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}
