package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"crypto_wallet/internal/domain/entity"
	"crypto_wallet/internal/pkg/logger"
	"crypto_wallet/internal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T, fetcher *fakeFetcher, opts ...Option) (*WalletReconciler, *recordingSink, *fakeClock) {
	t.Helper()
	sink := &recordingSink{}
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	r := NewWalletReconciler(entity.DefaultWalletName, fetcher, sink, logger.NewNopLogger(), opts...)
	return r, sink, clock
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestReconcile_CreatesRecordsAtZero(t *testing.T) {
	r, sink, _ := newTestReconciler(t, &fakeFetcher{})

	result, err := r.Reconcile(walletConfig("usd", "btc", "eth"))
	require.NoError(t, err)
	assert.Equal(t, []string{"btc", "eth"}, result.Added)
	assert.Equal(t, []string{"btc", "eth"}, r.TrackedTokens())

	rec, ok := r.TokenRecord("btc")
	require.True(t, ok)
	assert.True(t, rec.LastValue.IsZero())
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(1)), "amount defaults to 1")
	assert.Equal(t, entity.TokenActive, rec.State)

	added := sink.ofKind("added")
	ids := make([]string, 0, len(added))
	for _, e := range added {
		ids = append(ids, e.SensorID)
	}
	assert.ElementsMatch(t, []string{"crypto_wallet_total", "crypto_wallet_btc", "crypto_wallet_eth"}, ids)
}

func TestReconcile_Idempotent(t *testing.T) {
	r, sink, _ := newTestReconciler(t, &fakeFetcher{})
	cfg := walletConfig("usd", "btc", "eth")
	cfg.TokenAmounts["btc"] = dec("0.5")

	_, err := r.Reconcile(cfg)
	require.NoError(t, err)
	sink.reset()

	result, err := r.Reconcile(cfg)
	require.NoError(t, err)
	assert.False(t, result.Changed())
	assert.Empty(t, sink.lifecycleEvents())
	assert.Empty(t, sink.ofKind("updated"))
}

func TestReconcile_MembershipMatchesConfiguration(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeFetcher{})
	snapshots := [][]string{
		{"btc", "eth"},
		{"eth", "sol", "ada"},
		{},
		{"ada"},
		{"btc", "ada", "eth", "sol"},
	}
	for _, tokens := range snapshots {
		_, err := r.Reconcile(walletConfig("usd", tokens...))
		require.NoError(t, err)
		assert.Equal(t, sorted(tokens), sorted(r.TrackedTokens()))
		for _, token := range tokens {
			_, ok := r.TokenRecord(token)
			assert.True(t, ok, token)
		}
	}
}

func TestReconcile_RemovalNotifiesOnlyRemovedToken(t *testing.T) {
	fetcher := &fakeFetcher{}
	r, sink, _ := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("usd", "btc", "eth", "sol"))
	require.NoError(t, err)
	sink.reset()

	result, err := r.Reconcile(walletConfig("usd", "btc", "sol"))
	require.NoError(t, err)
	assert.Equal(t, []string{"eth"}, result.Removed)

	removed := sink.ofKind("removed")
	require.Len(t, removed, 1)
	assert.Equal(t, "crypto_wallet_eth", removed[0].SensorID)
	assert.Empty(t, sink.ofKind("added"))
	for _, e := range sink.ofKind("updated") {
		assert.NotEqual(t, "crypto_wallet_btc", e.SensorID)
		assert.NotEqual(t, "crypto_wallet_sol", e.SensorID)
	}

	_, ok := r.TokenRecord("eth")
	assert.False(t, ok)
}

func TestReconcile_RejectsInvalidConfiguration(t *testing.T) {
	r, sink, _ := newTestReconciler(t, &fakeFetcher{})
	_, err := r.Reconcile(walletConfig("usd", "btc"))
	require.NoError(t, err)
	sink.reset()

	cfg := walletConfig("usd", "eth")
	cfg.TokenAmounts["eth"] = dec("-1")
	_, err = r.Reconcile(cfg)
	require.ErrorIs(t, err, entity.ErrInvalidConfiguration)

	_, err = r.Reconcile(walletConfig("chf", "eth"))
	require.ErrorIs(t, err, entity.ErrInvalidConfiguration)

	cfg = walletConfig("usd", "eth")
	cfg.RefreshInterval = 10 * time.Second
	_, err = r.Reconcile(cfg)
	require.ErrorIs(t, err, entity.ErrInvalidConfiguration)

	assert.Equal(t, []string{"btc"}, r.TrackedTokens())
	assert.Empty(t, sink.events)
}

func TestRefresh_ValueCorrectness(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.push(entity.PriceTable{"btc": price("50000")}, nil)
	r, sink, _ := newTestReconciler(t, fetcher)

	cfg := walletConfig("usd", "btc")
	cfg.TokenAmounts["btc"] = dec("0.5")
	cfg.APICredential = "secret"
	_, err := r.Reconcile(cfg)
	require.NoError(t, err)

	ran, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	call := fetcher.lastCall()
	assert.Equal(t, []string{"btc"}, call.Tokens)
	assert.Equal(t, "usd", call.Currency)
	assert.Equal(t, "secret", call.Credential)

	rec, _ := r.TokenRecord("btc")
	assert.True(t, rec.LastValue.Equal(dec("25000")))
	assert.True(t, rec.LastPrice.Equal(dec("50000")))
	wallet := r.WalletRecord()
	assert.True(t, wallet.LastTotalValue.Equal(dec("25000")))
	assert.Equal(t, rec.Generation, wallet.Generation)

	updates := sink.ofKind("updated")
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1].Snapshot
	assert.Equal(t, "crypto_wallet_total", last.ID)
	assert.Equal(t, "$", last.Unit)
	assert.Equal(t, "25000 $", last.Attributes[entity.AttrTotalValue])

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Crypto Wallet btc", snap[1].Name)
	assert.Equal(t, "50000 $", snap[1].Attributes[entity.AttrTokenPrice])
	assert.Equal(t, "0.5", snap[1].Attributes[entity.AttrTokenAmount])
	assert.NotContains(t, snap[1].Attributes, entity.AttrMarketCap)
}

func TestRefresh_PartialFetchRetainsMissingTokens(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.push(entity.PriceTable{"btc": price("100"), "eth": price("10")}, nil)
	fetcher.push(entity.PriceTable{"btc": price("200")}, nil)
	r, _, _ := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("usd", "btc", "eth"))
	require.NoError(t, err)

	require.NoError(t, r.Refresh(context.Background()))
	require.NoError(t, r.Refresh(context.Background()))

	eth, _ := r.TokenRecord("eth")
	assert.True(t, eth.LastValue.Equal(dec("10")), "eth keeps its last value")
	btc, _ := r.TokenRecord("btc")
	assert.True(t, btc.LastValue.Equal(dec("200")))
	assert.True(t, r.WalletRecord().LastTotalValue.Equal(dec("210")))
	assert.Equal(t, btc.Generation, eth.Generation)
}

func TestRefresh_FailureRetainsState(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.push(entity.PriceTable{"btc": price("123.456789"), "eth": price("7")}, nil)
	fetchErr := &entity.FetchError{Kind: entity.UpstreamError, StatusCode: 503, Err: errors.New("unavailable")}
	fetcher.push(nil, fetchErr)
	m := metrics.New()
	r, sink, _ := newTestReconciler(t, fetcher, WithMetrics(m))

	cfg := walletConfig("usd", "btc", "eth")
	cfg.TokenAmounts["btc"] = dec("3")
	_, err := r.Reconcile(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Refresh(context.Background()))

	btcBefore, _ := r.TokenRecord("btc")
	ethBefore, _ := r.TokenRecord("eth")
	walletBefore := r.WalletRecord()
	sink.reset()

	err = r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)

	btcAfter, _ := r.TokenRecord("btc")
	ethAfter, _ := r.TokenRecord("eth")
	assert.Equal(t, btcBefore, btcAfter)
	assert.Equal(t, ethBefore, ethAfter)
	assert.Equal(t, walletBefore, r.WalletRecord())

	failed := sink.ofKind("failed")
	require.Len(t, failed, 1)
	assert.Empty(t, sink.ofKind("updated"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues(entity.DefaultWalletName, metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrorsTotal.WithLabelValues(entity.DefaultWalletName, "upstream")))
	assert.InDelta(t, 377.370367, testutil.ToFloat64(m.WalletValue.WithLabelValues(entity.DefaultWalletName, "usd")), 1e-6)
}

func TestRefresh_EmptyWalletSkipsFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	r, sink, _ := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("eur"))
	require.NoError(t, err)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Zero(t, fetcher.callCount())
	assert.True(t, r.WalletRecord().LastTotalValue.IsZero())
	assert.Equal(t, "eur", r.WalletRecord().Currency)

	updates := sink.ofKind("updated")
	require.Len(t, updates, 1)
	assert.Equal(t, "€", updates[0].Snapshot.Unit)
}

func TestRefresh_ThrottledTicks(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.push(entity.PriceTable{"btc": price("1")}, nil)
	r, _, clock := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("usd", "btc"))
	require.NoError(t, err)

	_, _ = r.Tick(context.Background())
	clock.Advance(time.Second)
	_, _ = r.Tick(context.Background())
	assert.Equal(t, 1, fetcher.callCount())

	clock.Advance(61 * time.Second)
	_, _ = r.Tick(context.Background())
	assert.Equal(t, 2, fetcher.callCount())
}

func TestReconcile_AmountChangeRecomputesWithoutFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.push(entity.PriceTable{"btc": price("100"), "eth": price("10")}, nil)
	r, sink, _ := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("usd", "btc", "eth"))
	require.NoError(t, err)
	require.NoError(t, r.Refresh(context.Background()))
	sink.reset()

	cfg := walletConfig("usd", "btc", "eth")
	cfg.TokenAmounts["btc"] = dec("2.5")
	result, err := r.Reconcile(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"btc"}, result.Updated)
	assert.Equal(t, 1, fetcher.callCount())

	btc, _ := r.TokenRecord("btc")
	assert.True(t, btc.LastValue.Equal(dec("250")))
	assert.True(t, r.WalletRecord().LastTotalValue.Equal(dec("260")))
	assert.Empty(t, sink.lifecycleEvents())
}

func TestReconcile_CurrencyChangeForcesRefresh(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.push(entity.PriceTable{"btc": price("50000"), "eth": price("2000")}, nil)
	fetcher.push(entity.PriceTable{"btc": price("45000")}, nil)
	r, sink, clock := newTestReconciler(t, fetcher)

	_, err := r.Reconcile(walletConfig("usd", "btc", "eth"))
	require.NoError(t, err)
	ran, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	clock.Advance(5 * time.Second)
	result, err := r.Reconcile(walletConfig("eur", "btc", "eth"))
	require.NoError(t, err)
	assert.True(t, result.CurrencyChanged)

	select {
	case <-r.Kicks():
	default:
		t.Fatal("currency change must request an immediate refresh")
	}

	// until new prices arrive values stay labelled with the currency they are in
	for _, s := range r.Snapshot() {
		assert.Equal(t, "$", s.Unit, s.ID)
	}
	sink.reset()

	ran, err = r.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran, "throttle must be bypassed")
	assert.Equal(t, "eur", fetcher.lastCall().Currency)

	btc, _ := r.TokenRecord("btc")
	assert.Equal(t, "eur", btc.Currency)
	assert.True(t, btc.LastValue.Equal(dec("45000")))
	eth, _ := r.TokenRecord("eth")
	assert.Equal(t, "eur", eth.Currency)
	assert.True(t, eth.LastValue.IsZero(), "usd values are not carried into eur")
	assert.True(t, r.WalletRecord().LastTotalValue.Equal(dec("45000")))

	for _, e := range sink.ofKind("updated") {
		assert.Equal(t, "€", e.Snapshot.Unit, e.SensorID)
	}

	// the bypass is one-shot
	clock.Advance(time.Second)
	ran, _ = r.Tick(context.Background())
	assert.False(t, ran)
}

func TestRefresh_DiscardsFetchFromPreviousCurrency(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	fetcher.push(entity.PriceTable{"btc": price("50000")}, nil)
	r, _, _ := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("usd", "btc"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()
	<-fetcher.entered

	// reconcile must not wait for the in-flight fetch
	_, err = r.Reconcile(walletConfig("eur", "btc"))
	require.NoError(t, err)

	fetcher.gate <- struct{}{}
	require.NoError(t, <-done)

	btc, _ := r.TokenRecord("btc")
	assert.True(t, btc.LastValue.IsZero())
	assert.Zero(t, r.WalletRecord().Generation)

	// the forced refresh is still pending
	fetcher.mu.Lock()
	fetcher.gate = nil
	fetcher.entered = nil
	fetcher.mu.Unlock()
	ran, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, "eur", fetcher.lastCall().Currency)
}

func TestRefresh_AbandonedFetchDoesNotApply(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	fetcher.push(entity.PriceTable{"btc": price("1")}, nil)
	r, sink, _ := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("usd", "btc"))
	require.NoError(t, err)
	sink.reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Refresh(ctx) }()
	<-fetcher.entered
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, r.WalletRecord().Generation)
	assert.Empty(t, sink.ofKind("failed"))
	assert.Empty(t, sink.ofKind("updated"))
}

func TestClose_WithdrawsSensors(t *testing.T) {
	r, sink, _ := newTestReconciler(t, &fakeFetcher{})
	_, err := r.Reconcile(walletConfig("usd", "btc", "eth"))
	require.NoError(t, err)
	sink.reset()

	r.Close()
	r.Close()

	removed := sink.ofKind("removed")
	ids := make([]string, 0, len(removed))
	for _, e := range removed {
		ids = append(ids, e.SensorID)
	}
	assert.ElementsMatch(t, []string{"crypto_wallet_btc", "crypto_wallet_eth", "crypto_wallet_total"}, ids)

	_, err = r.Reconcile(walletConfig("usd", "btc"))
	assert.ErrorIs(t, err, ErrWalletClosed)
	assert.ErrorIs(t, r.Refresh(context.Background()), ErrWalletClosed)
}

func TestRefresh_FailureAfterCloseIsNotReported(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	fetcher.push(nil, &entity.FetchError{Kind: entity.NetworkError, Err: errors.New("down")})
	m := metrics.New()
	r, sink, _ := newTestReconciler(t, fetcher, WithMetrics(m))
	_, err := r.Reconcile(walletConfig("usd", "btc"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()
	<-fetcher.entered
	r.Close()
	sink.reset()

	fetcher.gate <- struct{}{}
	require.ErrorIs(t, <-done, ErrWalletClosed)
	assert.Empty(t, sink.events)
	assert.Equal(t, 0, testutil.CollectAndCount(m.FetchErrorsTotal))
}

func TestReconcile_IntervalChangeRequestsKick(t *testing.T) {
	fetcher := &fakeFetcher{}
	r, _, _ := newTestReconciler(t, fetcher)
	_, err := r.Reconcile(walletConfig("usd", "btc"))
	require.NoError(t, err)
	select {
	case <-r.Kicks():
		t.Fatal("first configuration must not kick")
	default:
	}

	cfg := walletConfig("usd", "btc")
	cfg.RefreshInterval = 120 * time.Second
	result, err := r.Reconcile(cfg)
	require.NoError(t, err)
	assert.False(t, result.Changed())
	assert.Equal(t, 120*time.Second, r.Interval())

	select {
	case <-r.Kicks():
	default:
		t.Fatal("interval change must wake the runner")
	}
	assert.Zero(t, fetcher.callCount())
}

func TestSensorID_NamedWallet(t *testing.T) {
	assert.Equal(t, "crypto_wallet_btc", SensorID(entity.DefaultWalletName, "btc"))
	assert.Equal(t, "crypto_wallet_cold_btc", SensorID("cold", "btc"))
	assert.Equal(t, "Crypto Wallet cold Total", sensorName("cold", "Total"))
}
