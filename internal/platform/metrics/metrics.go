package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the document lifecycle metrics of the application
type Metrics struct {
	DocumentsCreated   *prometheus.CounterVec
	SignaturesRecorded *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_documents_created_total",
			Help: "Total number of documents created, by type",
		}, []string{"type"}),
		SignaturesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_signatures_recorded_total",
			Help: "Total number of signatures recorded, by type and stage",
		}, []string{"type", "stage"}),
		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_signature_publish_failures_total",
			Help: "Signature events that could not be published",
		}, []string{"type"}),
	}
}

func (m *Metrics) IncrementCreated(docType string) {
	if m != nil {
		m.DocumentsCreated.WithLabelValues(docType).Inc()
	}
}

func (m *Metrics) IncrementSigned(docType, stage string) {
	if m != nil {
		m.SignaturesRecorded.WithLabelValues(docType, stage).Inc()
	}
}

func (m *Metrics) IncrementPublishFailure(docType string) {
	if m != nil {
		m.PublishFailures.WithLabelValues(docType).Inc()
	}
}
