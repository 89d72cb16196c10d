package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Events               map[string]uint64
	StageFailures        map[string]uint64
	EventDurationCount   uint64
	EventDurationTotalNs int64
	Connections          map[string]uint64
	ActiveConnections    int64
	DashboardCacheHits   uint64
	DashboardCacheMisses uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu            sync.Mutex
	events        map[string]uint64
	stageFailures map[string]uint64
	connections   map[string]uint64

	eventDurationCount   uint64
	eventDurationTotalNs int64
	activeConnections    int64
	dashboardCacheHits   uint64
	dashboardCacheMisses uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		events:        make(map[string]uint64),
		stageFailures: make(map[string]uint64),
		connections:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Events:               maps.Clone(m.events),
		StageFailures:        maps.Clone(m.stageFailures),
		EventDurationCount:   atomic.LoadUint64(&m.eventDurationCount),
		EventDurationTotalNs: atomic.LoadInt64(&m.eventDurationTotalNs),
		Connections:          maps.Clone(m.connections),
		ActiveConnections:    atomic.LoadInt64(&m.activeConnections),
		DashboardCacheHits:   atomic.LoadUint64(&m.dashboardCacheHits),
		DashboardCacheMisses: atomic.LoadUint64(&m.dashboardCacheMisses),
	}
}

// IncEventReceived counts an ingested event by outcome.
func (m *InMemoryRecorder) IncEventReceived(status string) {
	m.mu.Lock()
	m.events[status]++
	m.mu.Unlock()
}

// IncStageFailure counts a failed pipeline stage.
func (m *InMemoryRecorder) IncStageFailure(stage string) {
	m.mu.Lock()
	m.stageFailures[stage]++
	m.mu.Unlock()
}

// ObserveEventDuration records pipeline duration.
func (m *InMemoryRecorder) ObserveEventDuration(duration time.Duration) {
	atomic.AddUint64(&m.eventDurationCount, 1)
	atomic.AddInt64(&m.eventDurationTotalNs, duration.Nanoseconds())
}

// IncConnection counts a websocket connection attempt by outcome.
func (m *InMemoryRecorder) IncConnection(status string) {
	m.mu.Lock()
	m.connections[status]++
	m.mu.Unlock()
}

// SetActiveConnections stores the current number of live connections.
func (m *InMemoryRecorder) SetActiveConnections(n int) {
	atomic.StoreInt64(&m.activeConnections, int64(n))
}

// IncDashboardCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncDashboardCacheHit() {
	atomic.AddUint64(&m.dashboardCacheHits, 1)
}

// IncDashboardCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncDashboardCacheMiss() {
	atomic.AddUint64(&m.dashboardCacheMisses, 1)
}
