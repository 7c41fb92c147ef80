package sensorsink

import (
	"crypto_wallet/internal/app/port"
	"crypto_wallet/internal/domain/entity"

	"go.uber.org/zap"
)

// LogSink writes every sensor notification to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging through a child of logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("SensorSink")}
}

func (s *LogSink) SensorAdded(snapshot entity.SensorSnapshot) {
	s.logger.Info("Sensor added", snapshotFields(snapshot)...)
}

func (s *LogSink) SensorUpdated(snapshot entity.SensorSnapshot) {
	s.logger.Debug("Sensor updated", snapshotFields(snapshot)...)
}

func (s *LogSink) SensorRemoved(wallet string, sensorID string) {
	s.logger.Info("Sensor removed", zap.String("wallet", wallet), zap.String("sensor", sensorID))
}

func (s *LogSink) RefreshFailed(wallet string, err error) {
	s.logger.Warn("Wallet refresh failed, keeping previous values", zap.String("wallet", wallet), zap.Error(err))
}

func snapshotFields(snapshot entity.SensorSnapshot) []zap.Field {
	return []zap.Field{
		zap.String("wallet", snapshot.Wallet),
		zap.String("sensor", snapshot.ID),
		zap.String("state", snapshot.State.StringFixed(2)),
		zap.String("unit", snapshot.Unit),
		zap.Uint64("generation", snapshot.Generation),
	}
}

// Multi forwards every notification to each sink in order.
type Multi []port.SensorSink

func (m Multi) SensorAdded(snapshot entity.SensorSnapshot) {
	for _, s := range m {
		s.SensorAdded(snapshot)
	}
}

func (m Multi) SensorUpdated(snapshot entity.SensorSnapshot) {
	for _, s := range m {
		s.SensorUpdated(snapshot)
	}
}

func (m Multi) SensorRemoved(wallet string, sensorID string) {
	for _, s := range m {
		s.SensorRemoved(wallet, sensorID)
	}
}

func (m Multi) RefreshFailed(wallet string, err error) {
	for _, s := range m {
		s.RefreshFailed(wallet, err)
	}
}
