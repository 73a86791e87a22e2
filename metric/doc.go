// Package metric provides Prometheus instrumentation for the node.
//
// A Registry owns one prometheus.Registry pre-loaded with the core session
// and transport metrics plus the Go runtime collectors. Components register
// their own metric sets through the Registrar interface; the fetching
// subscriber uses SubscriberMetrics for its merge-window counters.
//
// All SubscriberMetrics recording methods are nil-receiver safe, so code
// paths stay clean when a component runs unmetered:
//
//	var m *metric.SubscriberMetrics // nil: metrics disabled
//	m.FetchStarted()                // no-op
//
// Expose the registry over HTTP with promhttp:
//
//	reg := metric.NewRegistry()
//	http.Handle("/metrics", promhttp.HandlerFor(reg.PrometheusRegistry(), promhttp.HandlerOpts{}))
package metric
