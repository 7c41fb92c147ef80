package port

import "crypto_wallet/internal/domain/entity"

// SensorSink receives sensor lifecycle and value notifications.
// Implementations must not call back into the reconciler that notifies them.
type SensorSink interface {
	SensorAdded(snapshot entity.SensorSnapshot)
	SensorUpdated(snapshot entity.SensorSnapshot)
	SensorRemoved(wallet string, sensorID string)
	RefreshFailed(wallet string, err error)
}
