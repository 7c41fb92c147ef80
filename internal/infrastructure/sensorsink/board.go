package sensorsink

import (
	"io"
	"sort"
	"sync"
	"time"

	"crypto_wallet/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RefreshFailure is the last failed refresh of a wallet.
type RefreshFailure struct {
	Wallet string    `json:"wallet"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// Report is the JSON view of the board.
type Report struct {
	Data struct {
		Sensors []entity.SensorSnapshot `json:"sensors"`
	} `json:"data"`
	RefreshErrors []RefreshFailure `json:"refresh_errors,omitempty"`
	StatusMessage string           `json:"status_message"`
}

// Board keeps the latest snapshot of every published sensor in memory.
type Board struct {
	now func() time.Time

	mu       sync.RWMutex
	sensors  map[string]entity.SensorSnapshot
	failures map[string]RefreshFailure
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		now:      time.Now,
		sensors:  make(map[string]entity.SensorSnapshot),
		failures: make(map[string]RefreshFailure),
	}
}

// SensorAdded stores the initial snapshot of a sensor.
func (b *Board) SensorAdded(snapshot entity.SensorSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sensors[snapshot.ID] = snapshot
}

// SensorUpdated stores snapshot. A successful total update clears the wallet's failure.
func (b *Board) SensorUpdated(snapshot entity.SensorSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sensors[snapshot.ID] = snapshot
	if snapshot.Kind == entity.TotalSensor {
		delete(b.failures, snapshot.Wallet)
	}
}

// SensorRemoved drops a sensor. Removing a wallet's total also drops its failure.
func (b *Board) SensorRemoved(wallet string, sensorID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sensors[sensorID]; ok && s.Kind == entity.TotalSensor {
		delete(b.failures, wallet)
	}
	delete(b.sensors, sensorID)
}

// RefreshFailed records the latest failed refresh of wallet.
func (b *Board) RefreshFailed(wallet string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[wallet] = RefreshFailure{Wallet: wallet, Error: err.Error(), At: b.now()}
}

// Get returns the snapshot of a sensor.
func (b *Board) Get(sensorID string) (entity.SensorSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sensors[sensorID]
	return s, ok
}

// Sensors returns all snapshots ordered by wallet, totals first, then by id.
func (b *Board) Sensors() []entity.SensorSnapshot {
	b.mu.RLock()
	out := make([]entity.SensorSnapshot, 0, len(b.sensors))
	for _, s := range b.sensors {
		out = append(out, s)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Wallet != out[j].Wallet {
			return out[i].Wallet < out[j].Wallet
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == entity.TotalSensor
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Report builds the current board view.
func (b *Board) Report() Report {
	var report Report
	report.Data.Sensors = b.Sensors()

	b.mu.RLock()
	for _, f := range b.failures {
		report.RefreshErrors = append(report.RefreshErrors, f)
	}
	b.mu.RUnlock()
	sort.Slice(report.RefreshErrors, func(i, j int) bool {
		return report.RefreshErrors[i].Wallet < report.RefreshErrors[j].Wallet
	})

	switch {
	case len(report.RefreshErrors) > 0 && len(report.Data.Sensors) == 0:
		report.StatusMessage = "No sensor data available due to refresh errors."
	case len(report.RefreshErrors) > 0:
		report.StatusMessage = "Sensors available. Some wallets failed their last refresh and show previous values."
	case len(report.Data.Sensors) == 0:
		report.StatusMessage = "No sensors published. Check the wallet configuration."
	default:
		report.StatusMessage = "Sensors up to date."
	}
	return report
}

// WriteReport encodes the current report as indented JSON.
func (b *Board) WriteReport(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b.Report())
}
