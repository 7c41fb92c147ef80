package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "crypto_wallet"

// Refresh outcomes used as the "outcome" label of RefreshTotal.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
	OutcomeSkipped   = "skipped"
)

// Metrics groups the collectors updated by wallet reconcilers.
// Collectors live on their own registry; exposing them is up to the host.
type Metrics struct {
	Registry *prometheus.Registry

	RefreshTotal     *prometheus.CounterVec
	FetchErrorsTotal *prometheus.CounterVec
	RefreshDuration  *prometheus.HistogramVec
	WalletValue      *prometheus.GaugeVec
	TokenValue       *prometheus.GaugeVec
	TrackedTokens    *prometheus.GaugeVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Price refresh executions by wallet and outcome.",
		}, []string{"wallet", "outcome"}),
		FetchErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed price fetches by wallet and error kind.",
		}, []string{"wallet", "kind"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of price fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"wallet"}),
		WalletValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_value",
			Help:      "Last total wallet value in the wallet's base currency.",
		}, []string{"wallet", "currency"}),
		TokenValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_value",
			Help:      "Last value of a tracked token in the wallet's base currency.",
		}, []string{"wallet", "token", "currency"}),
		TrackedTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_tokens",
			Help:      "Number of tokens tracked by a wallet.",
		}, []string{"wallet"}),
	}
	m.Registry.MustRegister(
		m.RefreshTotal,
		m.FetchErrorsTotal,
		m.RefreshDuration,
		m.WalletValue,
		m.TokenValue,
		m.TrackedTokens,
	)
	return m
}

// ForgetToken drops the value series of a token that is no longer tracked.
func (m *Metrics) ForgetToken(wallet, token, currency string) {
	if m == nil {
		return
	}
	m.TokenValue.DeleteLabelValues(wallet, token, currency)
}

// ForgetWalletValue drops the total value series of a wallet for a currency.
func (m *Metrics) ForgetWalletValue(wallet, currency string) {
	if m == nil {
		return
	}
	m.WalletValue.DeleteLabelValues(wallet, currency)
}

// WriteText writes every collected family in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", family.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile replaces path with the current exposition, for a textfile collector.
// The file is written next to path and renamed, so readers never see a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.WriteText(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace metrics file %s: %w", path, err)
	}
	return nil
}
