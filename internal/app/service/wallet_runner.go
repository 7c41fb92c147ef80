package service

import (
	"context"
	"time"

	"crypto_wallet/internal/app/port"

	"github.com/pkg/errors"
)

// tickSlack is added to every wait so the limiter has fully refilled when the
// timer fires.
const tickSlack = time.Second

// refresher is the part of WalletReconciler driven by WalletRunner.
type refresher interface {
	Name() string
	Tick(ctx context.Context) (bool, error)
	Kicks() <-chan struct{}
	Interval() time.Duration
}

// WalletRunner drives the periodic refresh of one wallet.
type WalletRunner struct {
	wallet refresher
	logger port.Logger
	after  func(time.Duration) <-chan time.Time
}

// NewWalletRunner creates a runner for wallet.
func NewWalletRunner(wallet *WalletReconciler, logger port.Logger) *WalletRunner {
	return newWalletRunner(wallet, logger, time.After)
}

func newWalletRunner(wallet refresher, logger port.Logger, after func(time.Duration) <-chan time.Time) *WalletRunner {
	return &WalletRunner{
		wallet: wallet,
		logger: logger.With("wallet", wallet.Name()),
		after:  after,
	}
}

// Run refreshes immediately and then once per interval until ctx is cancelled.
// A kick from the wallet triggers an extra tick without waiting for the timer.
func (w *WalletRunner) Run(ctx context.Context) error {
	w.logger.Info("Starting wallet refresh loop", "interval", w.wallet.Interval())
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Wallet refresh loop stopped")
			return nil
		case <-w.wallet.Kicks():
			w.tick(ctx)
		case <-w.after(w.wallet.Interval() + tickSlack):
			w.tick(ctx)
		}
	}
}

func (w *WalletRunner) tick(ctx context.Context) {
	ran, err := w.wallet.Tick(ctx)
	switch {
	case errors.Is(err, ErrWalletClosed):
		return
	case err != nil && ran && ctx.Err() == nil:
		// already reported by the reconciler
		w.logger.Debug("Refresh finished with error", "error", err)
	case !ran:
		w.logger.Debug("Refresh throttled")
	}
}
