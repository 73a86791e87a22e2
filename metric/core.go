package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all node-level metrics (not subscriber-specific)
type Metrics struct {
	// Session metrics
	SamplesReceived  *prometheus.CounterVec
	SamplesPublished *prometheus.CounterVec
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	PublishesDropped prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec

	// Transport metrics
	TransportConnected      prometheus.Gauge
	TransportReconnects     prometheus.Counter
	TransportCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all node metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SamplesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zenoh",
				Subsystem: "session",
				Name:      "samples_received_total",
				Help:      "Total number of samples delivered by live subscriptions",
			},
			[]string{"keyexpr", "kind"},
		),

		SamplesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zenoh",
				Subsystem: "session",
				Name:      "samples_published_total",
				Help:      "Total number of samples published",
			},
			[]string{"keyexpr", "kind"},
		),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zenoh",
				Subsystem: "session",
				Name:      "queries_total",
				Help:      "Total number of queries issued",
			},
			[]string{"status"},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "zenoh",
				Subsystem: "session",
				Name:      "query_duration_seconds",
				Help:      "Wall time spent collecting query replies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		PublishesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "zenoh",
				Subsystem: "session",
				Name:      "publishes_dropped_total",
				Help:      "Publications dropped by congestion control",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zenoh",
				Subsystem: "session",
				Name:      "errors_total",
				Help:      "Total number of errors by component and type",
			},
			[]string{"component", "type"},
		),

		TransportConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "zenoh",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Transport connection status (0=disconnected, 1=connected)",
			},
		),

		TransportReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "zenoh",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Total number of transport reconnections",
			},
		),

		TransportCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "zenoh",
				Subsystem: "transport",
				Name:      "circuit_breaker",
				Help:      "Transport circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordSampleReceived increments the live-sample counter
func (m *Metrics) RecordSampleReceived(keyexpr, kind string) {
	m.SamplesReceived.WithLabelValues(keyexpr, kind).Inc()
}

// RecordSamplePublished increments the published-sample counter
func (m *Metrics) RecordSamplePublished(keyexpr, kind string) {
	m.SamplesPublished.WithLabelValues(keyexpr, kind).Inc()
}

// RecordQuery records one finished query with its duration
func (m *Metrics) RecordQuery(status string, duration time.Duration) {
	m.QueriesTotal.WithLabelValues(status).Inc()
	m.QueryDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPublishDropped increments the congestion-control drop counter
func (m *Metrics) RecordPublishDropped() {
	m.PublishesDropped.Inc()
}

// RecordError increments the error counter
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordTransportStatus updates the transport connection gauge
func (m *Metrics) RecordTransportStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.TransportConnected.Set(value)
}

// RecordTransportReconnect increments the reconnection counter
func (m *Metrics) RecordTransportReconnect() {
	m.TransportReconnects.Inc()
}

// RecordCircuitBreakerState updates the circuit breaker gauge
func (m *Metrics) RecordCircuitBreakerState(state int) {
	m.TransportCircuitBreaker.Set(float64(state))
}
