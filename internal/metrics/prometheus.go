package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exposed on /metrics.
const (
	MetricEventsTotal         = "pulsetrack_events_total"
	MetricStageFailuresTotal  = "pulsetrack_stage_failures_total"
	MetricEventDuration       = "pulsetrack_event_duration_seconds"
	MetricConnectionsTotal    = "pulsetrack_ws_connections_total"
	MetricActiveConnections   = "pulsetrack_ws_active_connections"
	MetricDashboardCacheTotal = "pulsetrack_dashboard_cache_total"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
// All operations are thread-safe.
type PrometheusRecorder struct {
	events            *prometheus.CounterVec
	stageFailures     *prometheus.CounterVec
	eventDuration     prometheus.Histogram
	connections       *prometheus.CounterVec
	activeConnections prometheus.Gauge
	dashboardCache    *prometheus.CounterVec
}

// NewPrometheus creates a PrometheusRecorder with all collectors initialized.
// The collectors are not registered; call Register to register them with a registry.
func NewPrometheus() *PrometheusRecorder {
	return &PrometheusRecorder{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEventsTotal,
				Help: "Total number of ingested session events by outcome",
			},
			[]string{"status"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStageFailuresTotal,
				Help: "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),
		eventDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricEventDuration,
				Help:    "Time spent applying one session event to all aggregates",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
		),
		connections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricConnectionsTotal,
				Help: "Total number of websocket connection attempts by outcome",
			},
			[]string{"status"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricActiveConnections,
				Help: "Number of live (domain, user) websocket registrations",
			},
		),
		dashboardCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDashboardCacheTotal,
				Help: "Dashboard snapshot cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Register registers all collectors with the given registry.
func (p *PrometheusRecorder) Register(reg prometheus.Registerer) error {
	for _, c := range p.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (p *PrometheusRecorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.events,
		p.stageFailures,
		p.eventDuration,
		p.connections,
		p.activeConnections,
		p.dashboardCache,
	}
}

// IncEventReceived counts an ingested event by outcome.
func (p *PrometheusRecorder) IncEventReceived(status string) {
	p.events.WithLabelValues(status).Inc()
}

// IncStageFailure counts a failed pipeline stage.
func (p *PrometheusRecorder) IncStageFailure(stage string) {
	p.stageFailures.WithLabelValues(stage).Inc()
}

// ObserveEventDuration records pipeline duration.
func (p *PrometheusRecorder) ObserveEventDuration(duration time.Duration) {
	p.eventDuration.Observe(duration.Seconds())
}

// IncConnection counts a websocket connection attempt by outcome.
func (p *PrometheusRecorder) IncConnection(status string) {
	p.connections.WithLabelValues(status).Inc()
}

// SetActiveConnections sets the live connection gauge.
func (p *PrometheusRecorder) SetActiveConnections(n int) {
	p.activeConnections.Set(float64(n))
}

// IncDashboardCacheHit counts a cache hit.
func (p *PrometheusRecorder) IncDashboardCacheHit() {
	p.dashboardCache.WithLabelValues("hit").Inc()
}

// IncDashboardCacheMiss counts a cache miss.
func (p *PrometheusRecorder) IncDashboardCacheMiss() {
	p.dashboardCache.WithLabelValues("miss").Inc()
}
