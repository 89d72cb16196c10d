// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Event outcome labels.
const (
	EventProcessed = "processed"
	EventPartial   = "partial"
	EventDiscarded = "discarded"
	EventMalformed = "malformed"
)

// Connection outcome labels.
const (
	ConnAccepted    = "accepted"
	ConnRejected    = "rejected"
	ConnRateLimited = "rate_limited"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Ingestion pipeline metrics
	IncEventReceived(status string) // status: processed, partial, discarded, malformed
	IncStageFailure(stage string)
	ObserveEventDuration(duration time.Duration)

	// Websocket metrics
	IncConnection(status string) // status: accepted, rejected, rate_limited
	SetActiveConnections(n int)

	// Dashboard metrics
	IncDashboardCacheHit()
	IncDashboardCacheMiss()
}
