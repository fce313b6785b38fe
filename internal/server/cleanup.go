package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/scoperag-go/internal/logging"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// handleCleanupSession handles POST /cleanup/session: delete the temporary
// chunks of one session. The global scope is rejected.
func (s *Server) handleCleanupSession(w http.ResponseWriter, r *http.Request) {
	const op = "server.cleanup_session"

	var req cleanupSessionRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	n, err := s.deps.Lifecycle.CleanupScope(r.Context(), strings.TrimSpace(req.SessionID))
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("session cleaned up",
		slog.String("scope", req.SessionID),
		slog.Int("deleted", n),
	)
	writeJSON(r.Context(), w, http.StatusOK, cleanupSessionResponse{Count: n})
}

// handleCleanup handles POST /cleanup: delete every chunk with the given
// scope and permanence.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	const op = "server.cleanup"

	var req cleanupRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		badRequest(w, r, op, "sessionId is required")
		return
	}
	permanence, err := rag.ParsePermanence(req.DocumentType, "")
	if err != nil || permanence == "" {
		badRequest(w, r, op, "documentType must be \"permanent\" or \"temporary\"")
		return
	}

	n, err := s.deps.Lifecycle.Cleanup(r.Context(), req.SessionID, permanence)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("scope cleaned up",
		slog.String("scope", req.SessionID),
		slog.String("permanence", string(permanence)),
		slog.Int("deleted", n),
	)
	writeJSON(r.Context(), w, http.StatusOK, cleanupResponse{DeletedCount: n})
}
