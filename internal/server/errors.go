package server

import (
	"log/slog"
	"net/http"

	"github.com/54b3r/scoperag-go/internal/apperr"
	"github.com/54b3r/scoperag-go/internal/logging"
)

// statusFor maps an error kind to its HTTP status code.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes err as {success:false, error, kind}. Dependency
// failures are logged in full and reduced to their operation in the body.
func writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
	writeJSON(r.Context(), w, status, errorResponse{
		Success: false,
		Error:   apperr.Message(err),
		Kind:    string(kind),
	})
}

// badRequest writes a validation error for a malformed request.
func badRequest(w http.ResponseWriter, r *http.Request, op, msg string) {
	writeJSONError(w, r, apperr.Validation(op, msg))
}
