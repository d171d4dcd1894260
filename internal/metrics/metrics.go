// Package metrics exports ingestion and retrieval counters in Prometheus
// format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the services report into. A nil *Metrics
// is valid and records nothing, so tests can skip wiring it.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested prometheus.Counter
	eventsSkipped  prometheus.Counter
	ingestErrors   prometheus.Counter

	retrievalRequests *prometheus.CounterVec
	retrievalLatency  prometheus.Histogram
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.eventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "ingest",
		Name:      "events_ingested_total",
		Help:      "Events stored (new or updated)",
	})
	m.eventsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "ingest",
		Name:      "events_skipped_total",
		Help:      "Events skipped (invalid, duplicate or failed)",
	})
	m.ingestErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "ingest",
		Name:      "errors_total",
		Help:      "Per-event ingestion errors",
	})
	m.retrievalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "retrieve",
		Name:      "requests_total",
		Help:      "Retrieval requests by status",
	}, []string{"status"})
	m.retrievalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulse",
		Subsystem: "retrieve",
		Name:      "latency_seconds",
		Help:      "Retrieval request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	m.registry.MustRegister(
		m.eventsIngested,
		m.eventsSkipped,
		m.ingestErrors,
		m.retrievalRequests,
		m.retrievalLatency,
	)
	return m
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveIngest(ingested, skipped, errCount int) {
	if m == nil {
		return
	}
	m.eventsIngested.Add(float64(ingested))
	m.eventsSkipped.Add(float64(skipped))
	m.ingestErrors.Add(float64(errCount))
}

func (m *Metrics) ObserveRetrieval(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.retrievalRequests.WithLabelValues(status).Inc()
	m.retrievalLatency.Observe(elapsed.Seconds())
}
