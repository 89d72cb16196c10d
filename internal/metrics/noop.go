package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncEventReceived is a no-op.
func (n *NoopRecorder) IncEventReceived(status string) {}

// IncStageFailure is a no-op.
func (n *NoopRecorder) IncStageFailure(stage string) {}

// ObserveEventDuration is a no-op.
func (n *NoopRecorder) ObserveEventDuration(duration time.Duration) {}

// IncConnection is a no-op.
func (n *NoopRecorder) IncConnection(status string) {}

// SetActiveConnections is a no-op.
func (n *NoopRecorder) SetActiveConnections(count int) {}

// IncDashboardCacheHit is a no-op.
func (n *NoopRecorder) IncDashboardCacheHit() {}

// IncDashboardCacheMiss is a no-op.
func (n *NoopRecorder) IncDashboardCacheMiss() {}
