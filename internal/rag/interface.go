// Package rag defines the chunk record model and the search index contract
// shared by ingestion, retrieval, and lifecycle management.
// Concrete indexes (Qdrant, in-process memory) satisfy [Index] so the
// pipeline never depends on a specific backend.
package rag

import (
	"context"
	"fmt"
	"time"
)

// GlobalScope is the reserved scope shared by every caller.
const GlobalScope = "global"

// Permanence controls a chunk's visibility and expiry.
type Permanence string

const (
	// Permanent chunks are visible to every scope and never expire.
	Permanent Permanence = "permanent"
	// Temporary chunks are visible only within their scope and expire.
	Temporary Permanence = "temporary"
)

// ParsePermanence validates s. An empty string yields def.
func ParsePermanence(s string, def Permanence) (Permanence, error) {
	switch Permanence(s) {
	case "":
		return def, nil
	case Permanent, Temporary:
		return Permanence(s), nil
	default:
		return "", fmt.Errorf("rag: invalid permanence %q (want %q or %q)", s, Permanent, Temporary)
	}
}

// ChunkRecord is the unit stored in the index.
type ChunkRecord struct {
	// ID is derived from scope, filename, and chunk index by [ChunkID].
	ID string
	// Filename is the source document name.
	Filename string
	// Content is the chunk text.
	Content string
	// Embedding is the dense vector for Content.
	Embedding []float32
	// ScopeID is the owning session, or GlobalScope.
	ScopeID string
	// Permanence controls visibility and expiry.
	Permanence Permanence
	// UploadedAt is shared by every chunk of one ingestion.
	UploadedAt time.Time
}

// SearchResult is a chunk returned by [Index.HybridSearch].
type SearchResult struct {
	// ID is the chunk ID.
	ID string
	// Filename is the source document name.
	Filename string
	// Content is the chunk text.
	Content string
	// ScopeID is the owning scope.
	ScopeID string
	// Permanence is the chunk's permanence.
	Permanence Permanence
	// Score is the engine's combined relevance score. Only the ordering is
	// meaningful.
	Score float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provisioner creates the physical index. It is driven by [SchemaManager].
type Provisioner interface {
	// IndexExists reports whether the named index exists.
	IndexExists(ctx context.Context, name string) (bool, error)
	// CreateIndex creates the index described by spec. It returns an error
	// wrapping ErrIndexExists when another caller created it first.
	CreateIndex(ctx context.Context, spec IndexSpec) error
}

// Index is the search/index engine contract.
// Implementations must be safe to call from multiple goroutines.
type Index interface {
	Provisioner

	// UpsertBatch writes records, replacing any with the same ID.
	UpsertBatch(ctx context.Context, records []ChunkRecord) error

	// HybridSearch combines keyword matching on content with vector
	// similarity, restricted to records matching filter, and returns at most
	// top results by descending relevance.
	HybridSearch(ctx context.Context, filter Filter, vector []float32, text string, top int) ([]SearchResult, error)

	// FindIDs returns the IDs of every record matching filter.
	FindIDs(ctx context.Context, filter Filter) ([]string, error)

	// DeleteByIDs removes records by chunk ID. Unknown IDs are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// Ping checks that the engine is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}
