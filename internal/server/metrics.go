package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the label used to partition metrics by the logical
// endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// httpRequestsTotal counts requests partitioned by method, handler, and
	// status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records request latency per handler.
	httpDurationSeconds *prometheus.HistogramVec

	// inFlight is the number of instrumented requests being served.
	inFlight prometheus.Gauge

	// uploadBytes records the size of uploaded documents.
	uploadBytes prometheus.Histogram
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoperag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scoperag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"method", labelHandler}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scoperag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of instrumented HTTP requests currently being served.",
		}),

		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scoperag",
			Subsystem: "documents",
			Name:      "upload_bytes",
			Help:      "Size of uploaded documents in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 9),
		}),
	}
}

// instrument wraps h so every request is counted and timed under handler.
func (s *Server) instrument(handler string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.inFlight.Inc()
		defer s.metrics.inFlight.Dec()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rw, r)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
