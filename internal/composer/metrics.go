package composer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Generate outcomes.
const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeError    = "error"
)

// Metrics holds the Prometheus collectors owned by the composer.
// A nil *Metrics records nothing.
type Metrics struct {
	// generateTotal counts answers by outcome.
	generateTotal *prometheus.CounterVec

	// promptTokens records the estimated prompt size per model call.
	promptTokens prometheus.Histogram
}

// NewMetrics registers the composer metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		generateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoperag",
			Subsystem: "generate",
			Name:      "total",
			Help:      "Total number of generate calls, partitioned by outcome (ok, degraded, error).",
		}, []string{"outcome"}),

		promptTokens: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scoperag",
			Subsystem: "generate",
			Name:      "prompt_tokens",
			Help:      "Estimated prompt size in tokens sent to the completion model.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 6000, 8000},
		}),
	}
}

// outcome counts one answer.
func (m *Metrics) outcome(o string) {
	if m == nil {
		return
	}
	m.generateTotal.WithLabelValues(o).Inc()
}

// prompt records one estimated prompt size.
func (m *Metrics) prompt(tokens int) {
	if m == nil {
		return
	}
	m.promptTokens.Observe(float64(tokens))
}
