package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/scoperag-go/internal/apperr"
	"github.com/54b3r/scoperag-go/internal/lifecycle"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// fakeEmbedder returns a constant vector per text and tracks concurrency.
type fakeEmbedder struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	failOn   int32
	delay    time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	n := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn > 0 && n == f.failOn {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// recordingIndex records the size of every upsert batch attempted. When
// failOn is set, that attempt (1-based) fails.
type recordingIndex struct {
	*rag.MemoryIndex
	mu      sync.Mutex
	batches []int
	failOn  int
}

func (r *recordingIndex) UpsertBatch(ctx context.Context, recs []rag.ChunkRecord) error {
	r.mu.Lock()
	r.batches = append(r.batches, len(recs))
	attempt := len(r.batches)
	r.mu.Unlock()
	if r.failOn > 0 && attempt == r.failOn {
		return errors.New("index write rejected")
	}
	return r.MemoryIndex.UpsertBatch(ctx, recs)
}

// failingPurger always fails.
type failingPurger struct{ calls atomic.Int32 }

func (f *failingPurger) PurgePermanent(context.Context) (int, error) {
	f.calls.Add(1)
	return 0, errors.New("engine unavailable")
}

type fixture struct {
	idx      *recordingIndex
	embedder *fakeEmbedder
	pipeline *Pipeline
}

func newFixture(t *testing.T, purger Purger, emb *fakeEmbedder, opts ...Option) *fixture {
	t.Helper()
	idx := &recordingIndex{MemoryIndex: rag.NewMemoryIndex()}
	schema := rag.NewSchemaManager(idx, rag.DefaultIndexSpec("chunks", 2), nil)
	if purger == nil {
		purger = lifecycle.NewManager(idx, "chunks")
	}
	if emb == nil {
		emb = &fakeEmbedder{}
	}
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	p, err := NewPipeline(emb, idx, schema, purger, opts...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(p.Release)
	return &fixture{idx: idx, embedder: emb, pipeline: p}
}

func paragraphs(n int) []byte {
	var b strings.Builder
	for i := range n {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Repeat("word ", 30))
	}
	return []byte(b.String())
}

func TestIngest_TemporaryDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil, WithChunking(200, 20))
	res, err := f.pipeline.Ingest(context.Background(), Request{
		ScopeID:    "s1",
		Filename:   "notes.txt",
		Permanence: rag.Temporary,
		Data:       paragraphs(5),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunkCount < 2 {
		t.Fatalf("expected several chunks, got %d", res.ChunkCount)
	}
	if f.idx.Len() != res.ChunkCount {
		t.Errorf("index holds %d records, want %d", f.idx.Len(), res.ChunkCount)
	}

	ids, _ := f.idx.FindIDs(context.Background(), rag.InScope("s1", rag.Temporary))
	if len(ids) != res.ChunkCount {
		t.Errorf("expected all chunks in scope s1, got %d", len(ids))
	}
	if !strings.HasPrefix(ids[0], "s1_notes_txt_") {
		t.Errorf("unexpected chunk id %q", ids[0])
	}
}

func TestIngest_SharedUploadedAt(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil, WithChunking(100, 10))
	if _, err := f.pipeline.Ingest(context.Background(), Request{
		ScopeID: "s1", Filename: "a.txt", Permanence: rag.Temporary, Data: paragraphs(4),
	}); err != nil {
		t.Fatal(err)
	}
	// Every chunk carries the same timestamp, so a cutoff just after it
	// selects all of them and a cutoff at it selects none.
	ts := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	after, _ := f.idx.FindIDs(context.Background(), rag.ExpiredBefore(ts.Add(time.Nanosecond)))
	at, _ := f.idx.FindIDs(context.Background(), rag.ExpiredBefore(ts))
	if len(after) != f.idx.Len() || len(at) != 0 {
		t.Errorf("uploadedAt not shared: %d after, %d at, %d total", len(after), len(at), f.idx.Len())
	}
}

func TestIngest_PermanentReplacesPermanentSet(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	ctx := context.Background()

	if _, err := f.pipeline.Ingest(ctx, Request{Filename: "cv-old.txt", Permanence: rag.Permanent, Data: []byte("old cv")}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.Ingest(ctx, Request{ScopeID: "s1", Filename: "tmp.txt", Permanence: rag.Temporary, Data: []byte("scratch")}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.Ingest(ctx, Request{Filename: "cv-new.txt", Permanence: rag.Permanent, Data: []byte("new cv")}); err != nil {
		t.Fatal(err)
	}

	perm, _ := f.idx.FindIDs(ctx, rag.AllPermanent())
	if len(perm) != 1 || !strings.Contains(perm[0], "cv-new_txt") {
		t.Errorf("permanent set = %v, want only cv-new", perm)
	}
	tmp, _ := f.idx.FindIDs(ctx, rag.InScope("s1", rag.Temporary))
	if len(tmp) != 1 {
		t.Errorf("temporary chunks must survive a permanent replace, got %v", tmp)
	}
}

func TestIngest_PurgeFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	purger := &failingPurger{}
	f := newFixture(t, purger, nil)
	res, err := f.pipeline.Ingest(context.Background(), Request{Filename: "cv.txt", Permanence: rag.Permanent, Data: []byte("cv")})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunkCount != 1 || purger.calls.Load() != 1 {
		t.Errorf("chunks=%d purges=%d", res.ChunkCount, purger.calls.Load())
	}
}

func TestIngest_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	tests := []struct {
		name string
		req  Request
	}{
		{"missing filename", Request{Permanence: rag.Permanent, Data: []byte("x")}},
		{"temporary global", Request{Filename: "a.txt", Permanence: rag.Temporary, Data: []byte("x")}},
		{"temporary explicit global", Request{ScopeID: rag.GlobalScope, Filename: "a.txt", Permanence: rag.Temporary, Data: []byte("x")}},
		{"unknown permanence", Request{Filename: "a.txt", Permanence: "forever", Data: []byte("x")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pipeline.Ingest(context.Background(), tc.req)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if f.idx.Creates() != 0 {
		t.Error("validation failures must not create the index")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got, err := Normalize(Request{Filename: "  cv.pdf \n", Permanence: rag.Permanent})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Filename != "cv.pdf" || got.ScopeID != rag.GlobalScope {
		t.Errorf("Normalize = %+v, want filename cv.pdf in scope %q", got, rag.GlobalScope)
	}

	if _, err := Normalize(Request{Filename: "notes.txt", Permanence: rag.Temporary}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("temporary without scope: got %v, want validation error", err)
	}
}

func TestIngest_EmptyDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res, err := f.pipeline.Ingest(context.Background(), Request{ScopeID: "s1", Filename: "blank.txt", Permanence: rag.Temporary, Data: []byte(" \n\t ")})
	if err != nil || res.ChunkCount != 0 {
		t.Fatalf("Ingest = %+v, %v; want 0 chunks", res, err)
	}
	if f.embedder.calls.Load() != 0 || f.idx.Creates() != 0 {
		t.Error("empty document must not embed or create the index")
	}
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{failOn: 2}
	f := newFixture(t, nil, emb, WithChunking(100, 10), WithBatchSizes(100, 1))
	_, err := f.pipeline.Ingest(context.Background(), Request{ScopeID: "s1", Filename: "a.txt", Permanence: rag.Temporary, Data: paragraphs(6)})
	if apperr.KindOf(err) != apperr.KindDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if f.idx.Len() != 0 {
		t.Errorf("expected no records after embedding failure, got %d", f.idx.Len())
	}
}

func TestIngest_BoundedEmbeddingConcurrency(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{delay: 10 * time.Millisecond}
	f := newFixture(t, nil, emb, WithPoolSize(2), WithChunking(50, 5), WithBatchSizes(100, 1))
	res, err := f.pipeline.Ingest(context.Background(), Request{ScopeID: "s1", Filename: "a.txt", Permanence: rag.Temporary, Data: paragraphs(8)})
	if err != nil {
		t.Fatal(err)
	}
	if int(emb.calls.Load()) != res.ChunkCount {
		t.Errorf("expected one embed call per chunk, got %d for %d chunks", emb.calls.Load(), res.ChunkCount)
	}
	if emb.maxSeen.Load() > 2 {
		t.Errorf("observed %d concurrent embed calls, pool size is 2", emb.maxSeen.Load())
	}
}

func TestIngest_UpsertBatchesCapped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil, WithChunking(20, 2), WithBatchSizes(100, 16))
	res, err := f.pipeline.Ingest(context.Background(), Request{ScopeID: "s1", Filename: "big.txt", Permanence: rag.Temporary, Data: paragraphs(60)})
	if err != nil {
		t.Fatal(err)
	}
	if res.ChunkCount <= 100 {
		t.Fatalf("fixture too small: %d chunks", res.ChunkCount)
	}
	total := 0
	for _, b := range f.idx.batches {
		if b > 100 {
			t.Errorf("upsert batch of %d exceeds 100", b)
		}
		total += b
	}
	if total != res.ChunkCount {
		t.Errorf("upserted %d records, want %d", total, res.ChunkCount)
	}
}

func TestIngest_FailedUpsertBatchStopsRemaining(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil, WithChunking(50, 5), WithBatchSizes(10, 16))
	f.idx.failOn = 2
	_, err := f.pipeline.Ingest(context.Background(), Request{ScopeID: "s1", Filename: "big.txt", Permanence: rag.Temporary, Data: paragraphs(12)})
	if apperr.KindOf(err) != apperr.KindDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(f.idx.batches) != 2 {
		t.Errorf("attempted %d upsert batches, want 2", len(f.idx.batches))
	}
	if f.idx.Len() != 10 {
		t.Errorf("index holds %d records, want only the first batch of 10", f.idx.Len())
	}
}

func TestWithBatchSizes_RejectsOversizedUpsert(t *testing.T) {
	t.Parallel()

	idx := rag.NewMemoryIndex()
	schema := rag.NewSchemaManager(idx, rag.DefaultIndexSpec("chunks", 2), nil)
	if _, err := NewPipeline(&fakeEmbedder{}, idx, schema, nil, WithBatchSizes(101, 16)); err == nil {
		t.Fatal("expected error for upsert batch over 100")
	}
}

func TestMetrics_ChunksCounted(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	f := newFixture(t, nil, nil, WithMetrics(NewMetrics(reg)))
	if _, err := f.pipeline.Ingest(context.Background(), Request{ScopeID: "s1", Filename: "a.txt", Permanence: rag.Temporary, Data: []byte("hello")}); err != nil {
		t.Fatal(err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "scoperag_ingest_chunks_total" {
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Errorf("chunks_total = %v, want 1", v)
			}
			return
		}
	}
	t.Error("scoperag_ingest_chunks_total not registered")
}
