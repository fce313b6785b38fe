// Package server implements the HTTP surface of scoperag: document upload and
// listing, embedding, grounded generation, on-demand cleanup, and health
// probes. The server is started by the `scoperag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/scoperag-go/internal/logging"
)

// defaultMaxUploadBytes caps upload bodies when no limit is configured.
const defaultMaxUploadBytes = 32 << 20

// New constructs a Server from the provided components and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Blobs == nil || deps.Ingester == nil || deps.Composer == nil || deps.Lifecycle == nil {
		return nil, fmt.Errorf("server: blob store, ingester, composer, and lifecycle manager are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Embedding a large document can take minutes.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
		stopRL:  stopRL,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.routes(rl)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes registers every endpoint. Routes that call a model or write to the
// index sit behind the per-IP rate limiter.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	limited := func(h http.Handler) http.Handler { return rl.middleware(h) }

	mux := http.NewServeMux()
	mux.Handle("POST /documents/upload", limited(s.instrument("upload", s.handleUpload)))
	mux.Handle("GET /documents", s.instrument("list", s.handleList))
	mux.Handle("DELETE /documents/{name}", s.instrument("delete", s.handleDelete))
	mux.Handle("POST /embed", limited(s.instrument("embed", s.handleEmbed)))
	mux.Handle("POST /generate", limited(s.instrument("generate", s.handleGenerate)))
	mux.Handle("POST /cleanup/session", s.instrument("cleanup_session", s.handleCleanupSession))
	mux.Handle("POST /cleanup", s.instrument("cleanup", s.handleCleanup))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	return mux
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("scoperag server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}
