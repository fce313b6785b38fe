package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors owned by the pipeline.
// A nil *Metrics records nothing.
type Metrics struct {
	// chunksTotal counts chunks written to the index.
	chunksTotal prometheus.Counter

	// durationSeconds records ingestion latency, partitioned by outcome.
	durationSeconds *prometheus.HistogramVec
}

// NewMetrics registers the ingestion metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		chunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scoperag",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks written to the index.",
		}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scoperag",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of document ingestions.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
	}
}

// observe records one ingestion.
func (m *Metrics) observe(chunks int, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.chunksTotal.Add(float64(chunks))
	m.durationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}
