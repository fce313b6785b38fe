package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/scoperag-go/internal/blob"
	"github.com/54b3r/scoperag-go/internal/composer"
	"github.com/54b3r/scoperag-go/internal/ingestion"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full embedding run or model call.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MaxUploadBytes caps the multipart body of POST /documents/upload.
	// Defaults to 32 MiB if zero.
	MaxUploadBytes int64
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the components the handlers delegate to.
type Deps struct {
	// Blobs stores uploaded documents.
	Blobs blob.Store
	// Ingester embeds a stored document into the index.
	Ingester ingester
	// Composer answers prompts.
	Composer answerer
	// Lifecycle deletes chunks on demand.
	Lifecycle cleaner
}

// ingester is the subset of *ingestion.Pipeline used by POST /embed.
type ingester interface {
	Ingest(ctx context.Context, req ingestion.Request) (ingestion.Result, error)
}

// answerer is the subset of *composer.Composer used by POST /generate.
type answerer interface {
	Answer(ctx context.Context, prompt, scopeID string, ragEnabled bool) (composer.Answer, error)
}

// cleaner is the subset of *lifecycle.Manager used by the cleanup routes.
type cleaner interface {
	CleanupScope(ctx context.Context, scopeID string) (int, error)
	Cleanup(ctx context.Context, scopeID string, p rag.Permanence) (int, error)
}

// Server is the HTTP server exposing document, generate, and cleanup routes.
type Server struct {
	// deps holds the components the handlers call.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// uploadResponse is the JSON response for POST /documents/upload.
type uploadResponse struct {
	// Filename is the stored document name.
	Filename string `json:"filename"`
	// Message is a fixed confirmation.
	Message string `json:"message"`
}

// documentInfo is one entry of GET /documents.
type documentInfo struct {
	// Name is the stored document name.
	Name string `json:"name"`
	// Size is the document length in bytes.
	Size int64 `json:"size"`
}

// messageResponse carries a fixed confirmation.
type messageResponse struct {
	// Message is a human-readable confirmation.
	Message string `json:"message"`
}

// embedRequest is the JSON body for POST /embed.
type embedRequest struct {
	// FileName names a stored document.
	FileName string `json:"fileName"`
	// SessionID owns the chunks. Defaults to "global".
	SessionID string `json:"sessionId"`
	// DocumentType is "permanent" (default) or "temporary".
	DocumentType string `json:"documentType"`
}

// embedResponse is the JSON response for POST /embed.
type embedResponse struct {
	// Chunks is the number of chunks written.
	Chunks int `json:"chunks"`
	// Message is a fixed confirmation.
	Message string `json:"message"`
}

// generateRequest is the JSON body for POST /generate.
type generateRequest struct {
	// Prompt is the user's question.
	Prompt string `json:"prompt"`
	// EnableRAG turns retrieval on. Defaults to true when absent.
	EnableRAG *bool `json:"enableRag"`
	// SessionID selects the caller's temporary documents. Defaults to "global".
	SessionID string `json:"sessionId"`
}

// generateResponse is the JSON response for POST /generate.
type generateResponse struct {
	// Response is the model output.
	Response string `json:"response"`
	// Citations lists the source filenames used as context.
	Citations []string `json:"citations"`
	// Success is always true on 200.
	Success bool `json:"success"`
}

// cleanupSessionRequest is the JSON body for POST /cleanup/session.
type cleanupSessionRequest struct {
	// SessionID is the scope whose temporary chunks are deleted.
	SessionID string `json:"sessionId"`
}

// cleanupSessionResponse is the JSON response for POST /cleanup/session.
type cleanupSessionResponse struct {
	// Count is the number of chunks deleted.
	Count int `json:"count"`
}

// cleanupRequest is the JSON body for POST /cleanup.
type cleanupRequest struct {
	// SessionID is the scope to clean.
	SessionID string `json:"sessionId"`
	// DocumentType is the permanence to clean.
	DocumentType string `json:"documentType"`
}

// cleanupResponse is the JSON response for POST /cleanup.
type cleanupResponse struct {
	// DeletedCount is the number of chunks deleted.
	DeletedCount int `json:"deletedCount"`
}

// errorResponse is the JSON body written for every failed request.
type errorResponse struct {
	// Success is always false.
	Success bool `json:"success"`
	// Error is the caller-safe message.
	Error string `json:"error"`
	// Kind is the error classification.
	Kind string `json:"kind"`
}
