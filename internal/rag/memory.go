package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"unicode"
)

// rrfK is the rank constant of Reciprocal Rank Fusion.
const rrfK = 60

// ErrIndexMissing is returned by MemoryIndex operations before the index has
// been created.
var ErrIndexMissing = errors.New("rag: index does not exist")

// MemoryIndex is an in-process [Index] for local development and tests.
// Hybrid search fuses cosine-similarity rank and keyword-overlap rank with
// Reciprocal Rank Fusion, the same combination the Qdrant index delegates to
// the engine.
type MemoryIndex struct {
	// mu guards every field below.
	mu sync.RWMutex
	// name is the index name once created.
	name string
	// dims is the vector length fixed at creation.
	dims int
	// records holds every chunk by ID.
	records map[string]ChunkRecord
	// creates counts successful CreateIndex calls.
	creates int
}

// NewMemoryIndex returns an empty MemoryIndex with no index created.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]ChunkRecord)}
}

// IndexExists reports whether name has been created.
func (m *MemoryIndex) IndexExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name != "" && m.name == name, nil
}

// CreateIndex creates the index. A second call wraps ErrIndexExists.
func (m *MemoryIndex) CreateIndex(_ context.Context, spec IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.name != "" {
		return fmt.Errorf("memory index %q: %w", m.name, ErrIndexExists)
	}
	if spec.Dimensions <= 0 {
		return fmt.Errorf("memory index: invalid dimensions %d", spec.Dimensions)
	}
	m.name = spec.Name
	m.dims = spec.Dimensions
	m.creates++
	return nil
}

// Creates returns how many times the index was created.
func (m *MemoryIndex) Creates() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creates
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// UpsertBatch stores records, replacing any with the same ID.
func (m *MemoryIndex) UpsertBatch(_ context.Context, records []ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.name == "" {
		return ErrIndexMissing
	}
	for _, rec := range records {
		if len(rec.Embedding) != m.dims {
			return fmt.Errorf("memory index: record %q has %d dimensions, want %d", rec.ID, len(rec.Embedding), m.dims)
		}
	}
	for _, rec := range records {
		rec.Embedding = slices.Clone(rec.Embedding)
		m.records[rec.ID] = rec
	}
	return nil
}

// HybridSearch ranks matching records by fused vector and keyword rank.
func (m *MemoryIndex) HybridSearch(_ context.Context, filter Filter, vector []float32, text string, top int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.name == "" {
		return nil, ErrIndexMissing
	}
	if top <= 0 {
		return nil, nil
	}

	type scored struct {
		rec     ChunkRecord
		cosine  float64
		keyword int
	}
	terms := tokenize(text)
	var candidates []scored
	for _, rec := range m.records {
		if !filter.Matches(rec) {
			continue
		}
		candidates = append(candidates, scored{
			rec:     rec,
			cosine:  cosine(vector, rec.Embedding),
			keyword: keywordHits(terms, rec.Content),
		})
	}

	fused := make(map[string]float64, len(candidates))
	slices.SortFunc(candidates, func(a, b scored) int {
		return cmp.Or(cmp.Compare(b.cosine, a.cosine), strings.Compare(a.rec.ID, b.rec.ID))
	})
	for rank, c := range candidates {
		fused[c.rec.ID] += 1.0 / float64(rrfK+rank+1)
	}
	slices.SortFunc(candidates, func(a, b scored) int {
		return cmp.Or(cmp.Compare(b.keyword, a.keyword), strings.Compare(a.rec.ID, b.rec.ID))
	})
	for rank, c := range candidates {
		if c.keyword == 0 {
			break
		}
		fused[c.rec.ID] += 1.0 / float64(rrfK+rank+1)
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		return cmp.Or(cmp.Compare(fused[b.rec.ID], fused[a.rec.ID]), strings.Compare(a.rec.ID, b.rec.ID))
	})
	if len(candidates) > top {
		candidates = candidates[:top]
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, SearchResult{
			ID:         c.rec.ID,
			Filename:   c.rec.Filename,
			Content:    c.rec.Content,
			ScopeID:    c.rec.ScopeID,
			Permanence: c.rec.Permanence,
			Score:      float32(fused[c.rec.ID]),
		})
	}
	return results, nil
}

// FindIDs returns the IDs of matching records in lexical order.
func (m *MemoryIndex) FindIDs(_ context.Context, filter Filter) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.name == "" {
		return nil, ErrIndexMissing
	}
	var ids []string
	for id, rec := range m.records {
		if filter.Matches(rec) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteByIDs removes records by ID.
func (m *MemoryIndex) DeleteByIDs(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.name == "" {
		return ErrIndexMissing
	}
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryIndex) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

// cosine returns the cosine similarity of a and b, or 0 when undefined.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tokenize lower-cases s and splits it into distinct words of two or more
// characters.
func tokenize(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// keywordHits counts how many distinct terms occur as words in content.
func keywordHits(terms []string, content string) int {
	if len(terms) == 0 {
		return 0
	}
	words := make(map[string]bool)
	for _, w := range tokenize(content) {
		words[w] = true
	}
	n := 0
	for _, t := range terms {
		if words[t] {
			n++
		}
	}
	return n
}
