package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/scoperag-go/internal/blob"
	"github.com/54b3r/scoperag-go/internal/composer"
	"github.com/54b3r/scoperag-go/internal/extract/extracttest"
	"github.com/54b3r/scoperag-go/internal/ingestion"
	"github.com/54b3r/scoperag-go/internal/lifecycle"
	"github.com/54b3r/scoperag-go/internal/rag"
	"github.com/54b3r/scoperag-go/internal/retrieval"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// constEmbedder returns the same unit vector for every text so ranking is
// decided by keyword overlap.
type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeChat records the system message of each call and returns a canned reply.
type fakeChat struct {
	mu      sync.Mutex
	systems []string
	err     error
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.systems = append(f.systems, in[0].Content)
	return schema.AssistantMessage("answer", nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChat) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.systems) == 0 {
		return ""
	}
	return f.systems[len(f.systems)-1]
}

// ---------------------------------------------------------------------------
// Test environment
// ---------------------------------------------------------------------------

// testEnv is a server wired to real components over in-memory backends.
type testEnv struct {
	srv  *Server
	h    http.Handler
	idx  *rag.MemoryIndex
	chat *fakeChat
	reg  *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := blob.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	idx := rag.NewMemoryIndex()
	schemaMgr := rag.NewSchemaManager(idx, rag.DefaultIndexSpec("documents", 3), nil)
	mgr := lifecycle.NewManager(idx, "documents")

	pipeline, err := ingestion.NewPipeline(constEmbedder{}, idx, schemaMgr, mgr, ingestion.WithPoolSize(2))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	t.Cleanup(pipeline.Release)

	chat := &fakeChat{}
	comp, err := composer.New(chat, retrieval.New(constEmbedder{}, idx, 3, nil))
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}

	reg := prometheus.NewRegistry()
	srv, err := New(Deps{
		Blobs:     store,
		Ingester:  pipeline,
		Composer:  comp,
		Lifecycle: mgr,
	}, &Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		RateLimit:       1000,
		RateBurst:       1000,
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		Pingers:         []Pinger{NewDependencyPinger("blob", store), NewDependencyPinger("index", idx)},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.stopRL)

	return &testEnv{srv: srv, h: srv.Handler(), idx: idx, chat: chat, reg: reg}
}

// newTestServer builds a bare *Server for handler-level tests.
func newTestServer() *Server {
	return &Server{cfg: &Config{}, log: slog.Default()}
}

// do sends a request through the full handler chain.
func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

// upload posts content as a multipart "file" part named filename.
func (e *testEnv) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

// decode unmarshals the recorder body into v.
func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// expectError asserts status and error kind of a failed request.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	var resp errorResponse
	decode(t, w, &resp)
	if resp.Success || resp.Kind != kind || resp.Error == "" {
		t.Errorf("error body = %+v, want kind %q", resp, kind)
	}
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func TestDocuments_UploadListDelete(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.upload(t, "notes.txt", "hello")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var up uploadResponse
	decode(t, w, &up)
	if up.Filename != "notes.txt" || up.Message != "File uploaded successfully" {
		t.Errorf("upload response = %+v", up)
	}

	w = e.do(t, http.MethodGet, "/documents", "")
	var docs []documentInfo
	decode(t, w, &docs)
	if len(docs) != 1 || docs[0].Name != "notes.txt" || docs[0].Size != 5 {
		t.Errorf("list = %+v", docs)
	}

	w = e.do(t, http.MethodDelete, "/documents/notes.txt", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Deleted") {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	expectError(t, e.do(t, http.MethodDelete, "/documents/notes.txt", ""), http.StatusNotFound, "not_found")
}

func TestDocuments_ListEmptyIsArray(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/documents", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected [], got %s", w.Body.String())
	}
}

func TestDocuments_UploadMissingFile(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	expectError(t, e.do(t, http.MethodPost, "/documents/upload", ""), http.StatusBadRequest, "validation")
}

// ---------------------------------------------------------------------------
// Embed + generate
// ---------------------------------------------------------------------------

func TestEmbedAndGenerate_ScopeIsolation(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.upload(t, "cv.txt", "Alice has ten years of Go experience.")
	e.upload(t, "s1-notes.txt", "Session one prefers channels over mutexes.")

	w := e.do(t, http.MethodPost, "/embed", `{"fileName":"cv.txt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("embed cv: %d %s", w.Code, w.Body.String())
	}
	var emb embedResponse
	decode(t, w, &emb)
	if emb.Chunks != 1 || emb.Message != "Embedded successfully" {
		t.Errorf("embed response = %+v", emb)
	}

	w = e.do(t, http.MethodPost, "/embed", `{"fileName":"s1-notes.txt","sessionId":"s1","documentType":"temporary"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("embed notes: %d %s", w.Code, w.Body.String())
	}

	// s1 sees its own temporary document and the permanent CV.
	w = e.do(t, http.MethodPost, "/generate", `{"prompt":"channels","sessionId":"s1"}`)
	var gen generateResponse
	decode(t, w, &gen)
	if !gen.Success || gen.Response != "answer" {
		t.Errorf("generate = %+v", gen)
	}
	if strings.Join(gen.Citations, ",") != "cv.txt,s1-notes.txt" {
		t.Errorf("s1 citations = %v", gen.Citations)
	}

	// s2 sees only the permanent CV.
	w = e.do(t, http.MethodPost, "/generate", `{"prompt":"channels","sessionId":"s2"}`)
	decode(t, w, &gen)
	if strings.Join(gen.Citations, ",") != "cv.txt" {
		t.Errorf("s2 citations = %v", gen.Citations)
	}
	if strings.Contains(e.chat.lastSystem(), "mutexes") {
		t.Error("s1 temporary content leaked into s2 prompt")
	}
}

func TestEmbedAndGenerate_PermanentPDF(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	pdf := extracttest.PDF("Alice Example", "Ten years of Go", "References on request")
	if w := e.upload(t, "cv.pdf", string(pdf)); w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}

	w := e.do(t, http.MethodPost, "/embed", `{"fileName":"cv.pdf","documentType":"permanent"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("embed: %d %s", w.Code, w.Body.String())
	}
	var emb embedResponse
	decode(t, w, &emb)
	if emb.Chunks < 1 {
		t.Fatalf("embed response = %+v, want at least one chunk", emb)
	}

	w = e.do(t, http.MethodPost, "/generate", `{"prompt":"How many years of Go?","enableRag":true}`)
	var gen generateResponse
	decode(t, w, &gen)
	if !gen.Success || strings.Join(gen.Citations, ",") != "cv.pdf" {
		t.Errorf("generate = %+v, want citation cv.pdf", gen)
	}
	if sys := e.chat.lastSystem(); !strings.Contains(sys, "Ten years of Go") || !strings.Contains(sys, "Source: cv.pdf") {
		t.Errorf("system message missing pdf context: %q", sys)
	}
}

func TestEmbed_TrimsFileName(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	if w := e.upload(t, " notes.txt ", "Bob writes Rust."); w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	w := e.do(t, http.MethodPost, "/embed", `{"fileName":"  notes.txt\t"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("embed: %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/generate", `{"prompt":"Rust"}`)
	var gen generateResponse
	decode(t, w, &gen)
	if strings.Join(gen.Citations, ",") != "notes.txt" {
		t.Errorf("citations = %v, want notes.txt", gen.Citations)
	}
}

func TestGenerate_RAGDisabled(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.upload(t, "cv.txt", "Alice knows Go.")
	e.do(t, http.MethodPost, "/embed", `{"fileName":"cv.txt"}`)

	w := e.do(t, http.MethodPost, "/generate", `{"prompt":"Go","enableRag":false}`)
	var gen generateResponse
	decode(t, w, &gen)
	if gen.Citations == nil || len(gen.Citations) != 0 {
		t.Errorf("citations = %#v, want empty array", gen.Citations)
	}
	if got := e.chat.lastSystem(); got != "You are a helpful assistant." {
		t.Errorf("system message = %q", got)
	}
}

func TestGenerate_EmptyIndexDegrades(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	// Nothing has been embedded, so the index does not exist yet.
	w := e.do(t, http.MethodPost, "/generate", `{"prompt":"anything"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on degraded retrieval, got %d %s", w.Code, w.Body.String())
	}
}

func TestGenerate_ModelFailureHidesDetail(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.chat.err = errors.New("upstream said: api key sk-secret rejected")

	w := e.do(t, http.MethodPost, "/generate", `{"prompt":"hi","enableRag":false}`)
	expectError(t, w, http.StatusInternalServerError, "dependency")
	if strings.Contains(w.Body.String(), "sk-secret") {
		t.Error("backend error detail leaked to client")
	}
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.upload(t, "cv.txt", "text")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{"embed invalid json", "/embed", `{`, http.StatusBadRequest, "validation"},
		{"embed missing file name", "/embed", `{}`, http.StatusBadRequest, "validation"},
		{"embed unknown file", "/embed", `{"fileName":"nope.pdf"}`, http.StatusNotFound, "not_found"},
		{"embed bad type", "/embed", `{"fileName":"cv.txt","documentType":"forever"}`, http.StatusBadRequest, "validation"},
		{"embed temporary global", "/embed", `{"fileName":"cv.txt","documentType":"temporary"}`, http.StatusBadRequest, "validation"},
		{"embed invalid before lookup", "/embed", `{"fileName":"nope.pdf","documentType":"temporary"}`, http.StatusBadRequest, "validation"},
		{"generate empty prompt", "/generate", `{"prompt":"  "}`, http.StatusBadRequest, "validation"},
		{"cleanup session missing", "/cleanup/session", `{}`, http.StatusBadRequest, "validation"},
		{"cleanup session global", "/cleanup/session", `{"sessionId":"global"}`, http.StatusBadRequest, "validation"},
		{"cleanup missing type", "/cleanup", `{"sessionId":"s1"}`, http.StatusBadRequest, "validation"},
		{"cleanup missing session", "/cleanup", `{"documentType":"temporary"}`, http.StatusBadRequest, "validation"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, e.do(t, http.MethodPost, tc.path, tc.body), tc.status, tc.kind)
		})
	}
}

// ---------------------------------------------------------------------------
// Cleanup
// ---------------------------------------------------------------------------

func TestCleanupSession_RemovesOnlyThatScope(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.upload(t, "cv.txt", "permanent text")
	e.upload(t, "a.txt", "session a text")
	e.do(t, http.MethodPost, "/embed", `{"fileName":"cv.txt"}`)
	e.do(t, http.MethodPost, "/embed", `{"fileName":"a.txt","sessionId":"a","documentType":"temporary"}`)
	e.do(t, http.MethodPost, "/embed", `{"fileName":"a.txt","sessionId":"b","documentType":"temporary"}`)

	w := e.do(t, http.MethodPost, "/cleanup/session", `{"sessionId":"a"}`)
	var resp cleanupSessionResponse
	decode(t, w, &resp)
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
	if e.idx.Len() != 2 {
		t.Errorf("index holds %d chunks, want 2", e.idx.Len())
	}

	// Cleaning an unknown session is not an error.
	w = e.do(t, http.MethodPost, "/cleanup/session", `{"sessionId":"zzz"}`)
	decode(t, w, &resp)
	if w.Code != http.StatusOK || resp.Count != 0 {
		t.Errorf("unknown session: %d %+v", w.Code, resp)
	}
}

func TestCleanup_GlobalPermanent(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.upload(t, "cv.txt", "permanent text")
	e.do(t, http.MethodPost, "/embed", `{"fileName":"cv.txt"}`)

	w := e.do(t, http.MethodPost, "/cleanup", `{"sessionId":"global","documentType":"permanent"}`)
	var resp cleanupResponse
	decode(t, w, &resp)
	if w.Code != http.StatusOK || resp.DeletedCount != 1 {
		t.Errorf("cleanup: %d %+v", w.Code, resp)
	}
	if e.idx.Len() != 0 {
		t.Errorf("index holds %d chunks, want 0", e.idx.Len())
	}
}

// ---------------------------------------------------------------------------
// Probes
// ---------------------------------------------------------------------------

func TestReady_WiredDependencies(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/ready", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	var resp readyResponse
	decode(t, w, &resp)
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Errorf("ready = %+v", resp)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := New(Deps{}, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
