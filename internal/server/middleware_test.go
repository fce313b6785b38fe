package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/54b3r/scoperag-go/internal/logging"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{"empty", "", false},
		{"caller id", "req-42.a_b", true},
		{"uuid", "6f1c8a52-0f4e-4a57-9d55-0d7f1fb1d2a0", true},
		{"header injection", "abc\r\nX-Evil: 1", false},
		{"spaces", "two words", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := requestID(tc.incoming)
			if tc.reused {
				if got != tc.incoming {
					t.Errorf("requestID(%q) = %q, want it reused", tc.incoming, got)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("requestID(%q) = %q, want a generated uuid", tc.incoming, got)
			}
		})
	}
}

func TestRequestLogger_EchoesIDAndLogsOutcome(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var ctxLogged bool
	h := requestLogger(base, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogged = logging.FromContext(r.Context()) != slog.Default()
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "trace-123" {
		t.Errorf("%s = %q, want trace-123", requestIDHeader, got)
	}
	if !ctxLogged {
		t.Error("handler did not receive the request logger")
	}

	var line struct {
		Level     string `json:"level"`
		RequestID string `json:"request_id"`
		Path      string `json:"path"`
		Status    int    `json:"status"`
		Bytes     int64  `json:"bytes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line.Level != "WARN" || line.RequestID != "trace-123" || line.Path != "/generate" || line.Status != http.StatusBadGateway || line.Bytes != 8 {
		t.Errorf("log line = %+v", line)
	}
}
