package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/scoperag-go/internal/logging"
)

// requestIDHeader carries the correlation ID in both directions.
const requestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds a caller-supplied request ID.
const maxRequestIDLen = 64

// requestLogger is an [http.Handler] middleware that tags every request with
// a correlation ID, stores a logger carrying it in the request context, and
// logs one line per request on completion. A well-formed X-Request-ID from
// the caller is reused; otherwise a new one is generated. The ID is echoed in
// the response header. Responses with a 5xx status are logged at WARN.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID(r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, reqID)

		log := base.With(
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(logging.WithLogger(r.Context(), log))

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request",
			slog.Int("status", rw.status),
			slog.Int64("bytes", rw.bytes),
			slog.String("client_ip", clientIP(r)),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// responseWriter wraps [http.ResponseWriter] to capture the status code and
// body size written by the handler.
type responseWriter struct {
	http.ResponseWriter
	// status is the HTTP status code sent to the client.
	status int
	// bytes counts body bytes written.
	bytes int64
}

// WriteHeader captures the status code before delegating to the underlying writer.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// requestID returns incoming when it is a usable correlation ID and a new
// UUID otherwise. Usable IDs are non-empty, bounded, and limited to
// [A-Za-z0-9._-] so they are safe to echo and log.
func requestID(incoming string) string {
	if incoming == "" || len(incoming) > maxRequestIDLen {
		return uuid.NewString()
	}
	for _, c := range incoming {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return uuid.NewString()
		}
	}
	return incoming
}
