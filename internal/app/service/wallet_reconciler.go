package service

import (
	"context"
	"sync"
	"time"

	"crypto_wallet/internal/app/port"
	"crypto_wallet/internal/domain/entity"
	"crypto_wallet/internal/pkg/metrics"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrWalletClosed is returned by operations on a closed reconciler.
var ErrWalletClosed = errors.New("wallet reconciler is closed")

// ReconcileResult describes the membership changes made by one Reconcile call.
type ReconcileResult struct {
	Added           []string
	Removed         []string
	Updated         []string
	CurrencyChanged bool
}

// Changed reports whether the call changed anything observable.
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Updated) > 0 || r.CurrencyChanged
}

// Option configures a WalletReconciler.
type Option func(*WalletReconciler)

// WithMetrics records refresh outcomes and values on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *WalletReconciler) { r.metrics = m }
}

// WithClock replaces time.Now for the throttle and fetch timing.
func WithClock(now func() time.Time) Option {
	return func(r *WalletReconciler) { r.now = now }
}

// WalletReconciler owns the token records and the aggregate record of one wallet.
// Reconcile and the apply step of Refresh are mutually exclusive; the price fetch
// itself runs without holding the lock.
type WalletReconciler struct {
	name    string
	fetcher port.PriceFetcher
	sink    port.SensorSink
	logger  port.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	throttle *ScheduledRefresh
	kick     chan struct{}

	mu         sync.Mutex
	configured bool
	closed     bool
	order      []string
	records    map[string]*entity.TokenRecord
	wallet     entity.WalletRecord
	currency   string
	credential string
	interval   time.Duration
	// currencyEpoch changes on every base currency switch; fetches started
	// under an older epoch are discarded.
	currencyEpoch uint64
	forcePending  bool
	generation    uint64
}

// NewWalletReconciler creates a reconciler with no tracked tokens.
// Call Reconcile with the first configuration snapshot before refreshing.
func NewWalletReconciler(name string, fetcher port.PriceFetcher, sink port.SensorSink, logger port.Logger, opts ...Option) *WalletReconciler {
	if name == "" {
		name = entity.DefaultWalletName
	}
	r := &WalletReconciler{
		name:     name,
		fetcher:  fetcher,
		sink:     sink,
		logger:   logger.With("wallet", name),
		now:      time.Now,
		kick:     make(chan struct{}, 1),
		records:  make(map[string]*entity.TokenRecord),
		interval: entity.DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wallet = entity.WalletRecord{Name: name, Currency: entity.DefaultCurrency}
	r.currency = entity.DefaultCurrency
	r.throttle = NewScheduledRefresh(r.interval, r.Refresh, r.now)
	return r
}

// Name returns the wallet name.
func (r *WalletReconciler) Name() string { return r.name }

// Kicks delivers a signal whenever a refresh should run before the next regular tick.
func (r *WalletReconciler) Kicks() <-chan struct{} { return r.kick }

// Interval returns the configured refresh interval.
func (r *WalletReconciler) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Reconcile brings the tracked token set in line with cfg. Invalid snapshots are
// rejected without touching any state. It never performs network I/O.
func (r *WalletReconciler) Reconcile(cfg entity.WalletConfig) (ReconcileResult, error) {
	if err := cfg.Validate(); err != nil {
		return ReconcileResult{}, errors.Wrapf(err, "reconcile wallet %q", r.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ReconcileResult{}, ErrWalletClosed
	}

	first := !r.configured
	currency := cfg.Currency()
	var result ReconcileResult

	desired := make(map[string]struct{}, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		desired[token] = struct{}{}
	}

	// kept: amounts change in place, values follow the last known price
	for _, token := range r.order {
		if _, ok := desired[token]; !ok {
			continue
		}
		if r.records[token].SetAmount(cfg.AmountFor(token)) {
			result.Updated = append(result.Updated, token)
		}
	}

	for _, token := range r.order {
		if _, ok := desired[token]; ok {
			continue
		}
		rec := r.records[token]
		rec.State = entity.TokenRemoved
		delete(r.records, token)
		r.metrics.ForgetToken(r.name, token, rec.Currency)
		result.Removed = append(result.Removed, token)
	}

	for _, token := range cfg.Tokens {
		if _, ok := r.records[token]; ok {
			continue
		}
		r.records[token] = entity.NewTokenRecord(token, cfg.AmountFor(token), currency)
		result.Added = append(result.Added, token)
	}

	r.order = append(r.order[:0:0], cfg.Tokens...)
	r.credential = cfg.Credential()

	if first {
		r.currency = currency
		r.wallet.Currency = currency
	} else if currency != r.currency {
		r.logger.Info("Base currency changed, forcing refresh", "from", r.currency, "to", currency)
		r.currency = currency
		r.currencyEpoch++
		r.forcePending = true
		result.CurrencyChanged = true
	}

	intervalChanged := false
	if interval := cfg.Interval(); interval != r.interval {
		r.logger.Debug("Updating refresh interval", "from", r.interval, "to", interval)
		r.interval = interval
		r.throttle.UpdateInterval(interval)
		intervalChanged = !first
	}
	r.configured = true

	if r.metrics != nil {
		r.metrics.TrackedTokens.WithLabelValues(r.name).Set(float64(len(r.records)))
	}

	if first {
		r.sink.SensorAdded(totalSnapshot(r.wallet))
	}
	// the runner rearms its timer on every kick
	if intervalChanged {
		r.requestKick()
	}
	if !first && !result.Changed() {
		return result, nil
	}

	r.logger.Debug("Reconciled wallet configuration",
		"added", result.Added,
		"removed", result.Removed,
		"updated", result.Updated,
		"currency", currency)

	for _, token := range result.Removed {
		r.sink.SensorRemoved(r.name, SensorID(r.name, token))
	}
	for _, token := range result.Added {
		r.sink.SensorAdded(tokenSnapshot(r.name, r.records[token]))
	}
	if len(result.Added) > 0 || len(result.Removed) > 0 || len(result.Updated) > 0 {
		for _, token := range result.Updated {
			r.sink.SensorUpdated(tokenSnapshot(r.name, r.records[token]))
		}
		r.recomputeTotalLocked()
		r.sink.SensorUpdated(totalSnapshot(r.wallet))
	}

	if r.forcePending {
		r.requestKick()
	}
	return result, nil
}

// recomputeTotalLocked sums the current records without changing the generation.
// Right after a currency switch the records keep the currency of their values;
// newly added ones are zero, so the sum stays in the wallet's value currency.
func (r *WalletReconciler) recomputeTotalLocked() {
	total := decimal.Zero
	for _, token := range r.order {
		total = total.Add(r.records[token].LastValue)
	}
	r.wallet.LastTotalValue = total
}

func (r *WalletReconciler) requestKick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Tick refreshes through the throttle. A pending currency change bypasses it once.
func (r *WalletReconciler) Tick(ctx context.Context) (bool, error) {
	r.mu.Lock()
	force := r.forcePending
	r.mu.Unlock()

	if force {
		return true, r.throttle.Force(ctx)
	}
	return r.throttle.Tick(ctx)
}

// Refresh fetches prices for the tracked tokens and applies them as one generation.
// A failed fetch leaves every record untouched and is reported to the sink.
func (r *WalletReconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrWalletClosed
	}
	tokens := append([]string(nil), r.order...)
	currency := r.currency
	credential := r.credential
	epoch := r.currencyEpoch
	timeout := r.interval

	if len(tokens) == 0 {
		r.generation++
		r.wallet = entity.WalletRecord{Name: r.name, Currency: currency, LastTotalValue: decimal.Zero, Generation: r.generation}
		r.forcePending = false
		r.observeLocked(metrics.OutcomeSkipped)
		r.sink.SensorUpdated(totalSnapshot(r.wallet))
		r.mu.Unlock()
		r.logger.Debug("No tracked tokens, skipping price fetch")
		return nil
	}
	r.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	started := r.now()
	table, err := r.fetcher.FetchPrices(fetchCtx, tokens, currency, credential)
	cancel()
	if r.metrics != nil {
		r.metrics.RefreshDuration.WithLabelValues(r.name).Observe(r.now().Sub(started).Seconds())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrWalletClosed
	}
	if err != nil {
		if ctx.Err() != nil {
			r.logger.Debug("Price fetch abandoned", "error", err)
			return errors.Wrap(ctx.Err(), "price fetch abandoned")
		}
		r.observeLocked(metrics.OutcomeFailure)
		if r.metrics != nil {
			r.metrics.FetchErrorsTotal.WithLabelValues(r.name, entity.FetchErrorKindOf(err).String()).Inc()
		}
		r.logger.Error("Failed to update Crypto Wallet total value", "error", err)
		r.sink.RefreshFailed(r.name, err)
		return errors.Wrapf(err, "refresh wallet %q", r.name)
	}

	if epoch != r.currencyEpoch {
		r.observeLocked(metrics.OutcomeDiscarded)
		r.logger.Info("Discarding prices fetched in a previous base currency", "currency", currency)
		return nil
	}

	r.applyLocked(table, currency)
	return nil
}

// applyLocked commits one fetch generation and publishes it.
func (r *WalletReconciler) applyLocked(table entity.PriceTable, currency string) {
	r.generation++
	gen := r.generation
	previousCurrency := r.wallet.Currency

	total := decimal.Zero
	missing := 0
	for _, token := range r.order {
		rec := r.records[token]
		entry, ok := table[token]
		switch {
		case ok:
			rec.ApplyPrice(entry, currency, gen)
		case rec.Currency != currency:
			// last known values are in another currency and cannot be carried over
			rec.Reset(currency, gen)
			missing++
		default:
			rec.Retain(gen)
			missing++
		}
		total = total.Add(rec.LastValue)
	}
	r.wallet = entity.WalletRecord{Name: r.name, Currency: currency, LastTotalValue: total, Generation: gen}
	r.forcePending = false

	r.observeLocked(metrics.OutcomeSuccess)
	if r.metrics != nil {
		if previousCurrency != currency {
			r.metrics.ForgetWalletValue(r.name, previousCurrency)
		}
		r.metrics.WalletValue.WithLabelValues(r.name, currency).Set(total.InexactFloat64())
	}

	r.logger.Info("Updated Crypto Wallet total value",
		"total", total.StringFixed(2),
		"currency", currency,
		"generation", gen,
		"missing_tokens", missing)

	for _, token := range r.order {
		rec := r.records[token]
		if r.metrics != nil {
			if previousCurrency != currency {
				r.metrics.ForgetToken(r.name, token, previousCurrency)
			}
			r.metrics.TokenValue.WithLabelValues(r.name, token, currency).Set(rec.LastValue.InexactFloat64())
		}
		r.sink.SensorUpdated(tokenSnapshot(r.name, rec))
	}
	r.sink.SensorUpdated(totalSnapshot(r.wallet))
}

func (r *WalletReconciler) observeLocked(outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RefreshTotal.WithLabelValues(r.name, outcome).Inc()
}

// Close withdraws every sensor of the wallet. Later operations return ErrWalletClosed;
// an in-flight fetch completes without applying.
func (r *WalletReconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, token := range r.order {
		rec := r.records[token]
		rec.State = entity.TokenRemoved
		r.metrics.ForgetToken(r.name, token, rec.Currency)
		r.sink.SensorRemoved(r.name, SensorID(r.name, token))
	}
	r.records = make(map[string]*entity.TokenRecord)
	r.order = nil
	r.metrics.ForgetWalletValue(r.name, r.wallet.Currency)
	if r.metrics != nil {
		r.metrics.TrackedTokens.DeleteLabelValues(r.name)
	}
	r.sink.SensorRemoved(r.name, SensorID(r.name, totalSuffix))
	r.logger.Info("Wallet closed")
}

// TrackedTokens returns the tracked token ids in configuration order.
func (r *WalletReconciler) TrackedTokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// TokenRecord returns a copy of the record of token.
func (r *WalletReconciler) TokenRecord(token string) (entity.TokenRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[token]
	if !ok {
		return entity.TokenRecord{}, false
	}
	return *rec, true
}

// WalletRecord returns a copy of the aggregate record.
func (r *WalletReconciler) WalletRecord() entity.WalletRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wallet
}

// Snapshot returns the total sensor followed by the token sensors in configuration order.
func (r *WalletReconciler) Snapshot() []entity.SensorSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.SensorSnapshot, 0, len(r.order)+1)
	out = append(out, totalSnapshot(r.wallet))
	for _, token := range r.order {
		out = append(out, tokenSnapshot(r.name, r.records[token]))
	}
	return out
}
