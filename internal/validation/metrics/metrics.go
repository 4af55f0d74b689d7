package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for validation runs.
type Metrics struct {
	// Run duration by document type, variant ("sync", "async") and outcome
	// ("valid", "invalid", "sealed", "error")
	Duration *prometheus.HistogramVec

	// Issues reported, by document type and issue kind
	Issues *prometheus.CounterVec

	// Fields written by registry transformers, by document type
	EnrichedFields *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bordereau_validation_duration_seconds",
			Help:    "Duration of document validation runs",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"type", "variant", "outcome"}),

		Issues: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_validation_issues_total",
			Help: "Validation issues reported by kind",
		}, []string{"type", "kind"}),

		EnrichedFields: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_validation_enriched_fields_total",
			Help: "Fields written from the company registry and receipts store",
		}, []string{"type"}),
	}
}

func (m *Metrics) ObserveRun(docType, variant, outcome string, d time.Duration) {
	if m != nil {
		m.Duration.WithLabelValues(docType, variant, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementIssue(docType, kind string) {
	if m != nil {
		m.Issues.WithLabelValues(docType, kind).Inc()
	}
}

func (m *Metrics) AddEnriched(docType string, n int) {
	if m != nil && n > 0 {
		m.EnrichedFields.WithLabelValues(docType).Add(float64(n))
	}
}
