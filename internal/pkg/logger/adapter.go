package logger

import (
	"log/slog"

	"crypto_wallet/internal/app/port"
)

// slogAdapter реализует интерфейс port.Logger поверх slog.
// Without bound attributes it writes through the package-level functions,
// so it follows later changes of the global logger.
type slogAdapter struct {
	bound *slog.Logger
}

// NewSlogAdapter создает новый экземпляр slogAdapter.
func NewSlogAdapter() port.Logger {
	return &slogAdapter{}
}

// NewNopLogger returns a port.Logger that discards everything.
func NewNopLogger() port.Logger {
	return &slogAdapter{bound: slog.New(discardHandler{})}
}

func (a *slogAdapter) Info(msg string, args ...any) {
	if a.bound != nil {
		a.bound.Info(msg, args...)
		return
	}
	Info(msg, args...)
}

func (a *slogAdapter) Debug(msg string, args ...any) {
	if a.bound != nil {
		a.bound.Debug(msg, args...)
		return
	}
	Debug(msg, args...)
}

func (a *slogAdapter) Warn(msg string, args ...any) {
	if a.bound != nil {
		a.bound.Warn(msg, args...)
		return
	}
	Warn(msg, args...)
}

func (a *slogAdapter) Error(msg string, args ...any) {
	if a.bound != nil {
		a.bound.Error(msg, args...)
		return
	}
	Error(msg, args...)
}

// With returns an adapter bound to a child of the current global logger.
func (a *slogAdapter) With(args ...any) port.Logger {
	if a.bound != nil {
		return &slogAdapter{bound: a.bound.With(args...)}
	}
	ensureInitialized()
	return &slogAdapter{bound: globalLogger.With(args...)}
}
