package ports

import "sigrelay/internal/core/domain"

// MetricsRecorder decouples the core from the metrics backend. The
// prometheus collector in infrastructure/monitoring implements it.
type MetricsRecorder interface {
	RecordMessage(kind domain.MessageKind)
	RecordRelayDropped(kind domain.MessageKind, reason string)
	RecordBroadcast(kind domain.MessageKind)
	RecordSessionOpened()
	RecordSessionEnded()
	SetRegisteredIdentities(n int)
	SetActiveSessions(n int)
}
