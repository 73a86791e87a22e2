package metric

import "github.com/prometheus/client_golang/prometheus"

// SubscriberMetrics instruments one history-reconciling subscriber.
// All methods are nil-safe so callers can run without metrics.
type SubscriberMetrics struct {
	FetchesInFlight   prometheus.Gauge
	FetchesTotal      prometheus.Counter
	SamplesMerged     prometheus.Counter
	DuplicatesDropped prometheus.Counter
	MergeQueueDepth   prometheus.Gauge
	DeliveryErrors    prometheus.Counter
	ExtractErrors     prometheus.Counter
}

// NewSubscriberMetrics builds and registers the metric set for one
// subscriber, keyed by a caller-chosen name.
func NewSubscriberMetrics(registrar Registrar, name string) (*SubscriberMetrics, error) {
	m := &SubscriberMetrics{
		FetchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zenoh",
			Subsystem:   "subscriber",
			Name:        "fetches_in_flight",
			Help:        "Number of fetches currently pending",
			ConstLabels: prometheus.Labels{"subscriber": name},
		}),
		FetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zenoh",
			Subsystem:   "subscriber",
			Name:        "fetches_total",
			Help:        "Total number of fetches started",
			ConstLabels: prometheus.Labels{"subscriber": name},
		}),
		SamplesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zenoh",
			Subsystem:   "subscriber",
			Name:        "samples_merged_total",
			Help:        "Samples buffered into the merge queue",
			ConstLabels: prometheus.Labels{"subscriber": name},
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zenoh",
			Subsystem:   "subscriber",
			Name:        "duplicates_dropped_total",
			Help:        "Samples dropped by exact-timestamp deduplication",
			ConstLabels: prometheus.Labels{"subscriber": name},
		}),
		MergeQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zenoh",
			Subsystem:   "subscriber",
			Name:        "merge_queue_depth",
			Help:        "Samples currently pending in the merge queue",
			ConstLabels: prometheus.Labels{"subscriber": name},
		}),
		DeliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zenoh",
			Subsystem:   "subscriber",
			Name:        "delivery_errors_total",
			Help:        "Samples that could not be delivered to the sink",
			ConstLabels: prometheus.Labels{"subscriber": name},
		}),
		ExtractErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zenoh",
			Subsystem:   "subscriber",
			Name:        "extract_errors_total",
			Help:        "Fetch replies skipped because extraction failed",
			ConstLabels: prometheus.Labels{"subscriber": name},
		}),
	}

	for metricName, collector := range map[string]prometheus.Collector{
		"fetches_in_flight":        m.FetchesInFlight,
		"fetches_total":            m.FetchesTotal,
		"samples_merged_total":     m.SamplesMerged,
		"duplicates_dropped_total": m.DuplicatesDropped,
		"merge_queue_depth":        m.MergeQueueDepth,
		"delivery_errors_total":    m.DeliveryErrors,
		"extract_errors_total":     m.ExtractErrors,
	} {
		if err := registrar.Register("subscriber/"+name, metricName, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// FetchStarted records one fetch entering the pending set.
func (m *SubscriberMetrics) FetchStarted() {
	if m == nil {
		return
	}
	m.FetchesTotal.Inc()
	m.FetchesInFlight.Inc()
}

// FetchFinished records one fetch leaving the pending set.
func (m *SubscriberMetrics) FetchFinished() {
	if m == nil {
		return
	}
	m.FetchesInFlight.Dec()
}

// SampleMerged records a sample buffered while fetches were pending.
func (m *SubscriberMetrics) SampleMerged(queueDepth int) {
	if m == nil {
		return
	}
	m.SamplesMerged.Inc()
	m.MergeQueueDepth.Set(float64(queueDepth))
}

// DuplicateDropped records a sample discarded by deduplication.
func (m *SubscriberMetrics) DuplicateDropped() {
	if m == nil {
		return
	}
	m.DuplicatesDropped.Inc()
}

// QueueDrained records the queue returning to empty.
func (m *SubscriberMetrics) QueueDrained() {
	if m == nil {
		return
	}
	m.MergeQueueDepth.Set(0)
}

// DeliveryError records a sink delivery failure.
func (m *SubscriberMetrics) DeliveryError() {
	if m == nil {
		return
	}
	m.DeliveryErrors.Inc()
}

// ExtractError records a fetch reply that could not be converted to a sample.
func (m *SubscriberMetrics) ExtractError() {
	if m == nil {
		return
	}
	m.ExtractErrors.Inc()
}
