// Package ingestion turns an uploaded document into indexed chunks:
// extract text, chunk it, embed the chunks with bounded parallelism, and
// upsert the records into the search index. Permanent documents replace the
// existing permanent set.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/54b3r/scoperag-go/internal/apperr"
	"github.com/54b3r/scoperag-go/internal/chunker"
	"github.com/54b3r/scoperag-go/internal/extract"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// Defaults applied when options are not given.
const (
	// DefaultPoolSize bounds concurrent embedding calls across all ingestions.
	DefaultPoolSize = 4
	// DefaultEmbedBatchSize is the number of chunks sent per embedding call.
	DefaultEmbedBatchSize = 16
	// MaxUpsertBatchSize is the largest batch the index accepts per call.
	MaxUpsertBatchSize = 100
)

// Purger deletes the current permanent set before a permanent document
// replaces it.
type Purger interface {
	// PurgePermanent deletes every permanent chunk and returns the count.
	PurgePermanent(ctx context.Context) (int, error)
}

// Request is one document to ingest.
type Request struct {
	// ScopeID owns the chunks. Empty means rag.GlobalScope.
	ScopeID string
	// Filename is the source document name and citation.
	Filename string
	// Permanence must be permanent or temporary.
	Permanence rag.Permanence
	// Data is the raw document bytes.
	Data []byte
}

// Result reports a completed ingestion.
type Result struct {
	// ChunkCount is the number of chunks written.
	ChunkCount int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the embedding worker pool size.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return fmt.Errorf("ingestion: create pool: %w", err)
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.log = logger
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithChunking sets the chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		p.splitter = chunker.New(chunker.WithChunkSize(size), chunker.WithOverlap(overlap))
		return nil
	}
}

// WithBatchSizes sets the upsert and embedding batch sizes. Upsert batches
// are capped at MaxUpsertBatchSize.
func WithBatchSizes(upsert, embed int) Option {
	return func(p *Pipeline) error {
		if upsert < 1 || upsert > MaxUpsertBatchSize {
			return fmt.Errorf("ingestion: upsert batch size %d outside [1, %d]", upsert, MaxUpsertBatchSize)
		}
		if embed < 1 {
			return fmt.Errorf("ingestion: embed batch size must be positive")
		}
		p.upsertBatch = upsert
		p.embedBatch = embed
		return nil
	}
}

// WithClock overrides the time source for uploadedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		p.now = now
		return nil
	}
}

// Pipeline ingests documents. It is safe for concurrent use; the embedding
// pool is shared by every in-flight ingestion.
type Pipeline struct {
	// embedder vectorises chunk text.
	embedder rag.Embedder
	// index receives the records.
	index rag.Index
	// schema creates the index before the first write.
	schema *rag.SchemaManager
	// purger clears the permanent set before a permanent ingestion.
	purger Purger
	// splitter chunks extracted text.
	splitter *chunker.Splitter
	// pool bounds concurrent embedding calls.
	pool *ants.Pool
	// upsertBatch is the number of records per UpsertBatch call.
	upsertBatch int
	// embedBatch is the number of texts per Embed call.
	embedBatch int
	// log records each ingestion.
	log *slog.Logger
	// metrics counts chunks and ingestions.
	metrics *Metrics
	// now stamps uploadedAt.
	now func() time.Time
}

// NewPipeline constructs a Pipeline. Call Release when done.
func NewPipeline(embedder rag.Embedder, index rag.Index, schema *rag.SchemaManager, purger Purger, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if schema == nil {
		return nil, fmt.Errorf("ingestion: schema manager must not be nil")
	}

	p := &Pipeline{
		embedder:    embedder,
		index:       index,
		schema:      schema,
		purger:      purger,
		splitter:    chunker.New(),
		upsertBatch: MaxUpsertBatchSize,
		embedBatch:  DefaultEmbedBatchSize,
		log:         slog.Default(),
		now:         time.Now,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	if p.pool == nil {
		pool, err := ants.NewPool(DefaultPoolSize)
		if err != nil {
			return nil, fmt.Errorf("ingestion: create pool: %w", err)
		}
		p.pool = pool
	}

	return p, nil
}

// Release releases the worker pool. The pipeline must not be used after.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Ingest extracts, chunks, embeds, and stores one document. Nothing is
// upserted unless every chunk was embedded.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() { p.metrics.observe(res.ChunkCount, err, time.Since(start)) }()

	req, err = Normalize(req)
	if err != nil {
		return Result{}, err
	}
	log := p.log.With(
		slog.String("filename", req.Filename),
		slog.String("scope", req.ScopeID),
		slog.String("permanence", string(req.Permanence)),
	)

	text, err := extract.Text(req.Filename, req.Data)
	if err != nil {
		return Result{}, apperr.Validation("ingestion.ingest", fmt.Sprintf("cannot read %s: %v", req.Filename, err))
	}
	text = strings.TrimSpace(text)

	if req.Permanence == rag.Permanent && p.purger != nil {
		n, perr := p.purger.PurgePermanent(ctx)
		if perr != nil {
			log.Warn("ingestion: purge of previous permanent documents failed, continuing",
				slog.String("error", perr.Error()),
			)
		} else {
			log.Info("ingestion: previous permanent documents purged", slog.Int("count", n))
		}
	}

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		log.Info("ingestion: document has no text, nothing indexed")
		return Result{}, nil
	}

	if err := p.schema.EnsureIndex(ctx); err != nil {
		return Result{}, err
	}

	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		return Result{}, apperr.Dependency("ingestion.ingest", "embedding failed", err)
	}

	uploadedAt := p.now().UTC()
	records := make([]rag.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = rag.ChunkRecord{
			ID:         rag.ChunkID(req.ScopeID, req.Filename, i),
			Filename:   req.Filename,
			Content:    c,
			Embedding:  vectors[i],
			ScopeID:    req.ScopeID,
			Permanence: req.Permanence,
			UploadedAt: uploadedAt,
		}
	}

	for s := 0; s < len(records); s += p.upsertBatch {
		e := min(s+p.upsertBatch, len(records))
		if err := p.index.UpsertBatch(ctx, records[s:e]); err != nil {
			return Result{}, apperr.Dependency("ingestion.ingest", "index upsert failed", err)
		}
	}

	log.Info("ingestion: document indexed",
		slog.Int("chunks", len(records)),
		slog.Duration("duration", time.Since(start)),
	)
	return Result{ChunkCount: len(records)}, nil
}

// embedAll embeds chunks in batches on the shared pool and returns vectors
// parallel to chunks. The first failure cancels the remaining batches.
func (p *Pipeline) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(chunks))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for s := 0; s < len(chunks); s += p.embedBatch {
		e := min(s+p.embedBatch, len(chunks))
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}
			out, err := p.embedder.Embed(ctx, chunks[s:e])
			if err != nil {
				fail(fmt.Errorf("batch %d-%d: %w", s, e, err))
				return
			}
			if len(out) != e-s {
				fail(fmt.Errorf("batch %d-%d: expected %d embeddings, got %d", s, e, e-s, len(out)))
				return
			}
			copy(vectors[s:e], out)
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// Normalize trims the filename, defaults an empty scope to rag.GlobalScope,
// and rejects invalid combinations. Callers that store the document before
// ingesting it use the returned Filename as the storage key so the stored
// name and the citation agree.
func Normalize(req Request) (Request, error) {
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		return req, apperr.Validation("ingestion.ingest", "fileName is required")
	}
	if req.Permanence != rag.Permanent && req.Permanence != rag.Temporary {
		return req, apperr.Validation("ingestion.ingest", fmt.Sprintf("documentType must be %q or %q", rag.Permanent, rag.Temporary))
	}
	if req.ScopeID == "" {
		req.ScopeID = rag.GlobalScope
	}
	if req.Permanence == rag.Temporary && req.ScopeID == rag.GlobalScope {
		return req, apperr.Validation("ingestion.ingest", "temporary documents require a sessionId other than global")
	}
	return req, nil
}
