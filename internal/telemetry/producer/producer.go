// Package producer publishes proctoring lifecycle events to Kafka and decodes them on the
// consuming side.
package producer

import "ihire-proctoring/backend/internal/telemetry"

// Producer publishes lifecycle events. Callers treat it as best effort.
type Producer interface {
	telemetry.EventEmitter
	Close() error
}
