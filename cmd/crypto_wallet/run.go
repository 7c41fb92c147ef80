package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_wallet/internal/app/provider"
	"crypto_wallet/internal/app/service"
	"crypto_wallet/internal/infrastructure/configloader"
	"crypto_wallet/internal/infrastructure/sensorsink"
	"crypto_wallet/internal/pkg/logger"
	"crypto_wallet/internal/pkg/metrics"

	"github.com/google/subcommands"
	"go.uber.org/zap"
)

const catalogCheckTimeout = 30 * time.Second

type runCmd struct {
	configPath string
	report     bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "track the configured wallets until interrupted" }
func (*runCmd) Usage() string {
	return `crypto_wallet run [-config <path>] [-report]

  Refreshes the value of every configured wallet on its own interval.
  SIGHUP reloads the configuration file, SIGUSR1 prints the current
  sensor board as JSON followed by the Prometheus metrics, SIGINT and
  SIGTERM stop the process. When metrics.textfile is set the metrics are
  also rewritten to that file periodically.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", configloader.PathFromEnv(), "Path to the YAML configuration file (CONFIG_PATH).")
	f.BoolVar(&c.report, "report", false, "Print the sensor board and metrics on exit.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := configloader.Load(c.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	zapLogger, err := newZapLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer zapLogger.Sync()

	client := newCoinGeckoClient(cfg, zapLogger)
	registry := provider.NewTokenRegistry(client, logger.NewSlogAdapter())
	board := sensorsink.NewBoard()
	sink := sensorsink.Multi{board, sensorsink.NewLogSink(zapLogger)}
	m := metrics.New()
	manager := service.NewWalletManager(client, sink, logger.NewSlogAdapter(), m)

	if err := c.apply(ctx, cfg, manager, registry); err != nil {
		zapLogger.Error("Failed to apply configuration", zap.Error(err))
		return subcommands.ExitFailure
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- manager.Run(runCtx) }()
	zapLogger.Info("Wallet tracking started", zap.Strings("wallets", manager.Wallets()))

	control := make(chan os.Signal, 1)
	signal.Notify(control, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(control)

	var textfile <-chan time.Time
	if cfg.Metrics.Textfile != "" {
		ticker := time.NewTicker(cfg.MetricsWriteInterval())
		defer ticker.Stop()
		textfile = ticker.C
		writeTextfile(m, cfg.Metrics.Textfile, zapLogger)
	}

	for {
		select {
		case sig := <-control:
			switch sig {
			case syscall.SIGHUP:
				c.reload(runCtx, manager, registry, zapLogger)
			case syscall.SIGUSR1:
				writeReport(board, m, zapLogger)
			}
		case <-textfile:
			writeTextfile(m, cfg.Metrics.Textfile, zapLogger)
		case err := <-done:
			zapLogger.Info("Wallet tracking stopped")
			if cfg.Metrics.Textfile != "" {
				writeTextfile(m, cfg.Metrics.Textfile, zapLogger)
			}
			if c.report {
				writeReport(board, m, zapLogger)
			}
			if err != nil {
				zapLogger.Error("Wallet manager failed", zap.Error(err))
				return subcommands.ExitFailure
			}
			return subcommands.ExitSuccess
		}
	}
}

func writeReport(board *sensorsink.Board, m *metrics.Metrics, zapLogger *zap.Logger) {
	if err := board.WriteReport(os.Stdout); err != nil {
		zapLogger.Error("Failed to write sensor board", zap.Error(err))
	}
	if err := m.WriteText(os.Stdout); err != nil {
		zapLogger.Error("Failed to write metrics", zap.Error(err))
	}
}

func writeTextfile(m *metrics.Metrics, path string, zapLogger *zap.Logger) {
	if err := m.WriteTextfile(path); err != nil {
		zapLogger.Error("Failed to write metrics textfile", zap.String("path", path), zap.Error(err))
	}
}

// reload keeps the running configuration when the new file is unreadable or invalid.
func (c *runCmd) reload(ctx context.Context, manager *service.WalletManager, registry *provider.TokenRegistry, zapLogger *zap.Logger) {
	zapLogger.Info("Reloading configuration", zap.String("path", c.configPath))
	cfg, err := configloader.Load(c.configPath)
	if err != nil {
		zapLogger.Error("Failed to reload configuration, keeping the current one", zap.Error(err))
		return
	}
	if err := c.apply(ctx, cfg, manager, registry); err != nil {
		zapLogger.Error("Rejected reloaded configuration, keeping the current one", zap.Error(err))
		return
	}
	zapLogger.Info("Configuration reloaded", zap.Strings("wallets", manager.Wallets()))
}

func (c *runCmd) apply(ctx context.Context, cfg *configloader.Config, manager *service.WalletManager, registry *provider.TokenRegistry) error {
	wallets, err := cfg.ToWalletConfigs()
	if err != nil {
		return err
	}

	if cfg.Catalog.Enabled {
		checkCtx, cancel := context.WithTimeout(ctx, catalogCheckTimeout)
		unknown, err := configloader.UnknownTokens(checkCtx, registry, wallets)
		cancel()
		if err != nil {
			logger.Warn("Token catalog unavailable, skipping token id validation", "error", err)
		}
		for wallet, tokens := range unknown {
			logger.Warn("Configured tokens are unknown upstream and will stay at zero", "wallet", wallet, "tokens", tokens)
		}
	}

	return manager.Apply(wallets)
}
