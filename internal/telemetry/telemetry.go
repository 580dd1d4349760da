package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is
// safe to use everywhere and records nothing, so telemetry can be
// switched off in config without sprinkling conditionals around.
type Metrics struct {
	Ingests        prometheus.Counter
	IngestedChunks prometheus.Counter
	Queries        prometheus.Counter
	AnswersByTier  *prometheus.CounterVec
	QuerySeconds   prometheus.Histogram
}

// New registers the docchat collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		Ingests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docchat_ingests_total",
			Help: "Number of document ingestions processed.",
		}),
		IngestedChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docchat_ingested_chunks_total",
			Help: "Number of passages added to the vector index.",
		}),
		Queries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docchat_queries_total",
			Help: "Number of RAG queries answered.",
		}),
		AnswersByTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docchat_answers_total",
			Help: "Answers produced, labelled by generation tier.",
		}, []string{"tier"}),
		QuerySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "docchat_query_duration_seconds",
			Help:    "End-to-end RAG query latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordIngest(chunks int) {
	if m == nil {
		return
	}
	m.Ingests.Inc()
	m.IngestedChunks.Add(float64(chunks))
}

func (m *Metrics) RecordQuery(tier string, seconds float64) {
	if m == nil {
		return
	}
	m.Queries.Inc()
	m.AnswersByTier.WithLabelValues(tier).Inc()
	m.QuerySeconds.Observe(seconds)
}
