package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/scoperag-go/internal/blob"
	"github.com/54b3r/scoperag-go/internal/ingestion"
	"github.com/54b3r/scoperag-go/internal/logging"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// maxJSONBodyBytes caps JSON request bodies.
const maxJSONBodyBytes = 1 << 20

// handleUpload handles POST /documents/upload. The multipart "file" part is
// stored under its filename, replacing any existing document.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "server.upload"
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(w, r, op, "file exceeds the upload size limit")
			return
		}
		badRequest(w, r, op, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := strings.TrimSpace(header.Filename)
	if err := blob.ValidateName(name); err != nil {
		writeJSONError(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, r, op, "could not read uploaded file")
		return
	}
	if err := s.deps.Blobs.Put(r.Context(), name, data); err != nil {
		writeJSONError(w, r, err)
		return
	}
	s.metrics.uploadBytes.Observe(float64(len(data)))

	logging.FromContext(r.Context()).Info("document uploaded",
		slog.String("filename", name),
		slog.Int("bytes", len(data)),
	)
	writeJSON(r.Context(), w, http.StatusCreated, uploadResponse{
		Filename: name,
		Message:  "File uploaded successfully",
	})
}

// handleList handles GET /documents.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.deps.Blobs.List(r.Context())
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	docs := make([]documentInfo, 0, len(infos))
	for _, info := range infos {
		docs = append(docs, documentInfo{Name: info.Name, Size: info.Size})
	}
	writeJSON(r.Context(), w, http.StatusOK, docs)
}

// handleDelete handles DELETE /documents/{name}. Only the stored document is
// removed; its chunks stay indexed until cleanup or re-ingestion.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Blobs.Delete(r.Context(), name); err != nil {
		writeJSONError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Deleted"})
}

// handleEmbed handles POST /embed: load a stored document and ingest it
// into the requested scope. The request is validated before the document is
// loaded, and the trimmed filename is both the storage key and the citation.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	const op = "server.embed"

	var req embedRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	permanence, err := rag.ParsePermanence(req.DocumentType, rag.Permanent)
	if err != nil {
		badRequest(w, r, op, "documentType must be \"permanent\" or \"temporary\"")
		return
	}
	ing, err := ingestion.Normalize(ingestion.Request{
		ScopeID:    req.SessionID,
		Filename:   req.FileName,
		Permanence: permanence,
	})
	if err != nil {
		writeJSONError(w, r, err)
		return
	}

	ing.Data, err = s.deps.Blobs.Get(r.Context(), ing.Filename)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}

	res, err := s.deps.Ingester.Ingest(r.Context(), ing)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, embedResponse{
		Chunks:  res.ChunkCount,
		Message: "Embedded successfully",
	})
}

// decodeJSON decodes the request body into v. On failure it writes a 400
// and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, r, op, "invalid request body")
		return false
	}
	return true
}
