package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deletion reasons used as the "reason" label.
const (
	reasonSession = "session"
	reasonCleanup = "cleanup"
	reasonReplace = "replace"
	reasonExpired = "expired"
)

// Metrics holds the Prometheus collectors owned by the lifecycle manager.
// A nil *Metrics records nothing.
type Metrics struct {
	// deletedTotal counts deleted chunks, partitioned by reason.
	deletedTotal *prometheus.CounterVec

	// sweepsTotal counts sweep runs, partitioned by outcome: "ok" or "error".
	sweepsTotal *prometheus.CounterVec
}

// NewMetrics registers the lifecycle metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		deletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoperag",
			Subsystem: "lifecycle",
			Name:      "deleted_total",
			Help:      "Total number of chunks deleted, partitioned by reason.",
		}, []string{"reason"}),

		sweepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoperag",
			Subsystem: "lifecycle",
			Name:      "sweeps_total",
			Help:      "Total number of expiry sweeps, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}

// deleted records n deletions for reason.
func (m *Metrics) deleted(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.deletedTotal.WithLabelValues(reason).Add(float64(n))
}

// sweep records one sweep outcome.
func (m *Metrics) sweep(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sweepsTotal.WithLabelValues(outcome).Inc()
}
