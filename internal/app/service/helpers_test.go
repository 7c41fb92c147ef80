package service

import (
	"context"
	"sync"
	"time"

	"crypto_wallet/internal/domain/entity"

	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fetchCall struct {
	Tokens     []string
	Currency   string
	Credential string
}

// fakeFetcher returns queued responses in order; the last one repeats.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     []fetchCall
	responses []fakeResponse
	// gate, when set, blocks each fetch until a value is received.
	gate    chan struct{}
	entered chan struct{}
}

type fakeResponse struct {
	table entity.PriceTable
	err   error
}

func (f *fakeFetcher) push(table entity.PriceTable, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{table: table, err: err})
}

func (f *fakeFetcher) FetchPrices(ctx context.Context, tokens []string, currency string, credential string) (entity.PriceTable, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Tokens: append([]string(nil), tokens...), Currency: currency, Credential: credential})
	var resp fakeResponse
	if len(f.responses) > 0 {
		resp = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &entity.FetchError{Kind: entity.NetworkError, Err: ctx.Err()}
		}
	}
	return resp.table, resp.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) lastCall() fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type sinkEvent struct {
	Kind     string
	SensorID string
	Snapshot entity.SensorSnapshot
	Err      error
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) SensorAdded(snapshot entity.SensorSnapshot) {
	s.add(sinkEvent{Kind: "added", SensorID: snapshot.ID, Snapshot: snapshot})
}

func (s *recordingSink) SensorUpdated(snapshot entity.SensorSnapshot) {
	s.add(sinkEvent{Kind: "updated", SensorID: snapshot.ID, Snapshot: snapshot})
}

func (s *recordingSink) SensorRemoved(wallet string, sensorID string) {
	s.add(sinkEvent{Kind: "removed", SensorID: sensorID})
}

func (s *recordingSink) RefreshFailed(wallet string, err error) {
	s.add(sinkEvent{Kind: "failed", Err: err})
}

func (s *recordingSink) add(e sinkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *recordingSink) ofKind(kind string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) lifecycleEvents() []sinkEvent {
	return append(s.ofKind("added"), s.ofKind("removed")...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func price(p string) entity.PriceEntry {
	return entity.PriceEntry{Price: dec(p)}
}

func walletConfig(currency string, tokens ...string) entity.WalletConfig {
	return entity.WalletConfig{
		Name:            entity.DefaultWalletName,
		Tokens:          tokens,
		TokenAmounts:    map[string]decimal.Decimal{},
		BaseCurrency:    currency,
		RefreshInterval: 60 * time.Second,
	}
}
