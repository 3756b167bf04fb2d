package main

import (
	"time"

	"github.com/urfave/cli"
)

var (
	configFile = cli.StringFlag{
		Name:   "config",
		Usage:  "Path to a TOML configuration file",
		EnvVar: "LEDGER_CONFIG",
	}
	network = cli.StringFlag{
		Name:  "network",
		Usage: "Network name; \"simnet\" runs an in-process simulated ledger",
	}
	endpoint = cli.StringFlag{
		Name:  "endpoint",
		Usage: "Ledger endpoint URL (ignored for simnet)",
	}
	protocol = cli.StringFlag{
		Name:  "protocol",
		Usage: "Transport protocol: http, grpc or websocket",
	}
	registryPath = cli.StringFlag{
		Name:  "registry",
		Usage: "Path of the account registry file",
	}
	logLevel = cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}
	metricsAddr = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Expose Prometheus metrics on this address (e.g. :9102)",
	}
	genesisBalance = cli.Int64Flag{
		Name:  "genesis-balance",
		Usage: "Initial operator balance on simnet",
		Value: 1_000_000,
	}

	amount = cli.Int64Flag{
		Name:  "amount",
		Usage: "Amount in smallest units",
	}
	count = cli.IntFlag{
		Name:  "count",
		Usage: "Number of accounts to create when the registry is empty",
		Value: 5,
	}
	message = cli.StringFlag{
		Name:  "message",
		Usage: "Topic message (defaults to the current time)",
	}
	wait = cli.DurationFlag{
		Name:  "wait",
		Usage: "How long to wait for execution or topic messages",
		Value: 10 * time.Second,
	}
	listen = cli.StringFlag{
		Name:  "listen",
		Usage: "HTTP/WebSocket listen address for the simnet server",
		Value: "127.0.0.1:50211",
	}
	grpcListen = cli.StringFlag{
		Name:  "grpc-listen",
		Usage: "gRPC listen address for the simnet server (empty disables gRPC)",
		Value: "127.0.0.1:50212",
	}
	settleInterval = cli.DurationFlag{
		Name:  "settle-interval",
		Usage: "How often the simnet server settles pending transactions",
		Value: 100 * time.Millisecond,
	}
)

var globalFlags = []cli.Flag{configFile, network, endpoint, protocol, registryPath, logLevel, metricsAddr, genesisBalance}
