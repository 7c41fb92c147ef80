package service

import (
	"context"
	"sort"
	"sync"

	"crypto_wallet/internal/app/port"
	"crypto_wallet/internal/domain/entity"
	"crypto_wallet/internal/pkg/metrics"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type managedWallet struct {
	reconciler *WalletReconciler
	cancel     context.CancelFunc
}

// WalletManager keeps one independent reconciler per configured wallet.
// Wallets share the fetcher, the sink and the metrics and nothing else.
type WalletManager struct {
	fetcher port.PriceFetcher
	sink    port.SensorSink
	logger  port.Logger
	metrics *metrics.Metrics
	opts    []Option

	mu      sync.Mutex
	wallets map[string]*managedWallet
	group   *errgroup.Group
	runCtx  context.Context
}

// NewWalletManager creates a manager without wallets. opts are passed to every
// reconciler it creates.
func NewWalletManager(fetcher port.PriceFetcher, sink port.SensorSink, logger port.Logger, m *metrics.Metrics, opts ...Option) *WalletManager {
	if m != nil {
		opts = append([]Option{WithMetrics(m)}, opts...)
	}
	return &WalletManager{
		fetcher: fetcher,
		sink:    sink,
		logger:  logger,
		metrics: m,
		opts:    opts,
		wallets: make(map[string]*managedWallet),
	}
}

// Apply reconciles the manager with a complete set of wallet snapshots.
// The whole set is validated first; nothing changes when any snapshot is invalid.
// Wallets missing from configs are closed and their sensors withdrawn.
func (m *WalletManager) Apply(configs []entity.WalletConfig) error {
	seen := make(map[string]struct{}, len(configs))
	for i := range configs {
		if configs[i].Name == "" {
			configs[i].Name = entity.DefaultWalletName
		}
		name := configs[i].Name
		if _, dup := seen[name]; dup {
			return errors.Wrapf(entity.ErrInvalidConfiguration, "duplicate wallet %q", name)
		}
		seen[name] = struct{}{}
		if err := configs[i].Validate(); err != nil {
			return errors.Wrapf(err, "wallet %q", name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, w := range m.wallets {
		if _, ok := seen[name]; ok {
			continue
		}
		if w.cancel != nil {
			w.cancel()
		}
		w.reconciler.Close()
		delete(m.wallets, name)
		m.logger.Info("Wallet removed", "wallet", name)
	}

	for _, cfg := range configs {
		w, ok := m.wallets[cfg.Name]
		if !ok {
			w = &managedWallet{
				reconciler: NewWalletReconciler(cfg.Name, m.fetcher, m.sink, m.logger, m.opts...),
			}
			m.wallets[cfg.Name] = w
			m.logger.Info("Wallet added", "wallet", cfg.Name, "tokens", len(cfg.Tokens))
		}
		if _, err := w.reconciler.Reconcile(cfg); err != nil {
			return err
		}
		if !ok && m.group != nil {
			m.startLocked(w)
		}
	}
	return nil
}

// Run drives every wallet until ctx is cancelled. Wallets added by a later Apply
// start running immediately.
func (m *WalletManager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	m.mu.Lock()
	if m.group != nil {
		m.mu.Unlock()
		return errors.New("wallet manager is already running")
	}
	m.group = g
	m.runCtx = gctx
	for _, name := range m.namesLocked() {
		m.startLocked(m.wallets[name])
	}
	m.mu.Unlock()

	// keeps the group alive while no wallet is configured
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()

	m.mu.Lock()
	m.group = nil
	m.runCtx = nil
	for _, w := range m.wallets {
		w.cancel = nil
	}
	m.mu.Unlock()
	return err
}

func (m *WalletManager) startLocked(w *managedWallet) {
	ctx, cancel := context.WithCancel(m.runCtx)
	w.cancel = cancel
	runner := NewWalletRunner(w.reconciler, m.logger)
	m.group.Go(func() error {
		return runner.Run(ctx)
	})
}

// Wallet returns the reconciler of the named wallet.
func (m *WalletManager) Wallet(name string) (*WalletReconciler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[name]
	if !ok {
		return nil, false
	}
	return w.reconciler, true
}

// Wallets returns the sorted names of the managed wallets.
func (m *WalletManager) Wallets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.namesLocked()
}

func (m *WalletManager) namesLocked() []string {
	names := make([]string, 0, len(m.wallets))
	for name := range m.wallets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close withdraws the sensors of every wallet.
func (m *WalletManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, w := range m.wallets {
		if w.cancel != nil {
			w.cancel()
		}
		w.reconciler.Close()
		delete(m.wallets, name)
	}
}
