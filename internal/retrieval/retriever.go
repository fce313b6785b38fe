// Package retrieval finds the chunks that ground an answer. It embeds the
// query and runs a scoped hybrid search: the caller's own temporary chunks
// plus every permanent chunk, never another scope's temporary chunks.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/scoperag-go/internal/apperr"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// DefaultTopK is the number of chunks retrieved when the caller passes k <= 0.
const DefaultTopK = 3

// Hit is one retrieved chunk.
type Hit struct {
	// Filename is the source document name, used as the citation.
	Filename string
	// Content is the chunk text placed into the prompt.
	Content string
	// Permanence is the chunk's permanence.
	Permanence rag.Permanence
	// Score is the engine's fused relevance score.
	Score float32
}

// Retriever runs scoped hybrid retrieval.
// It is safe for concurrent use.
type Retriever struct {
	// embedder vectorises the query.
	embedder rag.Embedder
	// index is searched with the visibility filter.
	index rag.Index
	// topK is the default result count.
	topK int
	// log records degraded retrievals.
	log *slog.Logger
}

// New constructs a Retriever. topK <= 0 selects DefaultTopK.
func New(embedder rag.Embedder, index rag.Index, topK int, log *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{embedder: embedder, index: index, topK: topK, log: log}
}

// Retrieve returns up to k chunks visible to scopeID, most relevant first.
// An empty scopeID sees permanent chunks only. Any embedding or search
// failure yields no hits and an error wrapping apperr.ErrDegraded, which
// callers absorb by answering without context.
func (r *Retriever) Retrieve(ctx context.Context, query, scopeID string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = r.topK
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, degraded("embed query", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, degraded("embed query", fmt.Errorf("embedder returned no vector"))
	}

	filter := rag.VisibleTo(scopeID)
	if scopeID == "" {
		filter = rag.AllPermanent()
	}

	results, err := r.index.HybridSearch(ctx, filter, vectors[0], query, k)
	if err != nil {
		return nil, degraded("hybrid search", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{
			Filename:   res.Filename,
			Content:    res.Content,
			Permanence: res.Permanence,
			Score:      res.Score,
		})
	}

	r.log.Debug("retrieval: search complete",
		slog.String("scope", scopeID),
		slog.Int("k", k),
		slog.Int("hits", len(hits)),
	)
	return hits, nil
}

// degraded classifies a retrieval failure as a dependency error that wraps
// apperr.ErrDegraded.
func degraded(step string, err error) error {
	return apperr.Dependency("retrieval.retrieve", step, fmt.Errorf("%w: %w", apperr.ErrDegraded, err))
}
