package main

import (
	"fmt"
	"log/slog"

	"crypto_wallet/internal/infrastructure/configloader"
	"crypto_wallet/internal/infrastructure/httpclient"
	"crypto_wallet/internal/pkg/logger"

	slogzap "github.com/samber/slog-zap/v2"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newZapLogger builds the process logger and routes the global slog logger through it.
func newZapLogger(level string) (*zap.Logger, error) {
	slogLevel, ok := logger.ParseLevel(level)

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel(slogLevel))
	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	handler := slogzap.Option{
		Level:  slogLevel,
		Logger: zapLogger,
	}.NewZapHandler()
	logger.SetLogger(slog.New(handler))

	if logrusLevel, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(logrusLevel)
	}
	if !ok {
		zapLogger.Warn("Invalid log level in config, defaulting to info", zap.String("level", level))
	}
	return zapLogger, nil
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level <= slog.LevelInfo:
		return zapcore.InfoLevel
	case level <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func newCoinGeckoClient(cfg *configloader.Config, zapLogger *zap.Logger) *httpclient.CoinGeckoClient {
	return httpclient.NewCoinGeckoClient(cfg.CoinGecko.BaseURL, cfg.CoinGecko.APIKey, cfg.RequestTimeout(), zapLogger)
}
