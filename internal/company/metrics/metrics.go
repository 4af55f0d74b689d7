package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for company registry lookups.
type Metrics struct {
	// Lookup latency by source: "cache", "registry"
	LookupLatency *prometheus.HistogramVec

	// Cache hits and misses by backend: "memory", "redis"
	CacheResults *prometheus.CounterVec

	// Lookups refused or failed, by reason: "not_found", "error", "circuit_open"
	LookupFailures *prometheus.CounterVec

	// 1 while the registry circuit is open
	CircuitOpen prometheus.Gauge
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LookupLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bordereau_company_lookup_duration_seconds",
			Help:    "Duration of company lookups by source",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"source"}),

		CacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_company_cache_results_total",
			Help: "Company cache lookups by backend and result",
		}, []string{"backend", "result"}),

		LookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_company_lookup_failures_total",
			Help: "Company lookups that did not return a record, by reason",
		}, []string{"reason"}),

		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bordereau_company_registry_circuit_open",
			Help: "Whether the company registry circuit breaker is open",
		}),
	}
}

// ObserveLookupLatency records how long a lookup against source took.
func (m *Metrics) ObserveLookupLatency(source string, d time.Duration) {
	if m != nil {
		m.LookupLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// RecordCacheHit counts a cache hit on backend.
func (m *Metrics) RecordCacheHit(backend string) {
	if m != nil {
		m.CacheResults.WithLabelValues(backend, "hit").Inc()
	}
}

// RecordCacheMiss counts a cache miss on backend.
func (m *Metrics) RecordCacheMiss(backend string) {
	if m != nil {
		m.CacheResults.WithLabelValues(backend, "miss").Inc()
	}
}

// IncrementFailure counts a failed lookup.
func (m *Metrics) IncrementFailure(reason string) {
	if m != nil {
		m.LookupFailures.WithLabelValues(reason).Inc()
	}
}

// SetCircuitOpen mirrors the breaker position.
func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
