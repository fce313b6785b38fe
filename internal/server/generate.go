package server

import (
	"net/http"
	"strings"

	"github.com/54b3r/scoperag-go/internal/rag"
)

// handleGenerate handles POST /generate. Retrieval is on unless the body sets
// enableRag to false.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	const op = "server.generate"

	var req generateRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(w, r, op, "prompt is required")
		return
	}
	ragEnabled := req.EnableRAG == nil || *req.EnableRAG
	scope := req.SessionID
	if scope == "" {
		scope = rag.GlobalScope
	}

	ans, err := s.deps.Composer.Answer(r.Context(), req.Prompt, scope, ragEnabled)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	citations := ans.Citations
	if citations == nil {
		citations = []string{}
	}
	writeJSON(r.Context(), w, http.StatusOK, generateResponse{
		Response:  ans.Text,
		Citations: citations,
		Success:   true,
	})
}
