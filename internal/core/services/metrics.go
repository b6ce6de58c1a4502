package services

import "time"

// Metrics is the narrow observability surface the services report to.
// The prometheus-backed implementation lives in
// internal/infrastructure/monitoring.
type Metrics interface {
	RoomOpened()
	RoomClosed()
	PeerJoined()
	PeerLeft()
	ObserveJoin(d time.Duration)
	RecordingStarted()
	RecordingStopped()
	RecordingBytes(n int64)
}

// NopMetrics discards everything; used when monitoring is disabled and
// in tests.
type NopMetrics struct{}

func (NopMetrics) RoomOpened()               {}
func (NopMetrics) RoomClosed()               {}
func (NopMetrics) PeerJoined()               {}
func (NopMetrics) PeerLeft()                 {}
func (NopMetrics) ObserveJoin(time.Duration) {}
func (NopMetrics) RecordingStarted()         {}
func (NopMetrics) RecordingStopped()         {}
func (NopMetrics) RecordingBytes(int64)      {}
