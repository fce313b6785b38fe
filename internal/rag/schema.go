package rag

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/54b3r/scoperag-go/internal/apperr"
)

// Field names shared by every index implementation.
const (
	FieldID         = "id"
	FieldFilename   = "filename"
	FieldContent    = "content"
	FieldEmbedding  = "embedding"
	FieldScopeID    = "scopeId"
	FieldPermanence = "permanence"
	FieldUploadedAt = "uploadedAt"
)

// ErrIndexExists is wrapped by [Provisioner.CreateIndex] when the index was
// created concurrently by another caller.
var ErrIndexExists = errors.New("rag: index already exists")

// FieldKind describes how a field is indexed.
type FieldKind int

const (
	// FieldKey is the unique record key.
	FieldKey FieldKind = iota
	// FieldFilterable supports exact-match filters.
	FieldFilterable
	// FieldSearchable supports full-text keyword search.
	FieldSearchable
	// FieldVector holds the embedding.
	FieldVector
	// FieldTimestamp supports range filters on time.
	FieldTimestamp
)

// FieldSpec is one field of the index schema.
type FieldSpec struct {
	// Name is the payload field name.
	Name string
	// Kind selects the field's index type.
	Kind FieldKind
}

// IndexSpec describes the index that ingestion writes into.
type IndexSpec struct {
	// Name is the index (collection) name.
	Name string
	// Dimensions is the embedding vector length.
	Dimensions int
	// HNSWM is the graph degree of the approximate nearest-neighbour index.
	HNSWM int
	// HNSWEfConstruct is the candidate list size used while building the graph.
	HNSWEfConstruct int
	// Fields is the ordered field list.
	Fields []FieldSpec
}

// DefaultIndexSpec returns the chunk schema for the named index.
func DefaultIndexSpec(name string, dimensions int) IndexSpec {
	return IndexSpec{
		Name:            name,
		Dimensions:      dimensions,
		HNSWM:           4,
		HNSWEfConstruct: 400,
		Fields: []FieldSpec{
			{Name: FieldID, Kind: FieldKey},
			{Name: FieldFilename, Kind: FieldFilterable},
			{Name: FieldContent, Kind: FieldSearchable},
			{Name: FieldEmbedding, Kind: FieldVector},
			{Name: FieldScopeID, Kind: FieldFilterable},
			{Name: FieldPermanence, Kind: FieldFilterable},
			{Name: FieldUploadedAt, Kind: FieldTimestamp},
		},
	}
}

// ensureTimeout bounds one shared existence check and creation attempt.
const ensureTimeout = 30 * time.Second

// SchemaManager makes sure the index exists before each write.
// It is safe for concurrent use: overlapping calls in this process share a
// single check, and a create that loses a race to another process succeeds.
type SchemaManager struct {
	// prov performs the existence check and creation.
	prov Provisioner
	// spec is the schema to create.
	spec IndexSpec
	// group coalesces concurrent EnsureIndex calls.
	group singleflight.Group
	// log records index creation.
	log *slog.Logger
}

// NewSchemaManager constructs a SchemaManager for spec.
func NewSchemaManager(prov Provisioner, spec IndexSpec, log *slog.Logger) *SchemaManager {
	if log == nil {
		log = slog.Default()
	}
	return &SchemaManager{prov: prov, spec: spec, log: log}
}

// Spec returns the schema the manager creates.
func (m *SchemaManager) Spec() IndexSpec { return m.spec }

// EnsureIndex checks that the index exists and creates it when it is
// missing. Every call checks again, so an index dropped out of band is
// recreated on the next write. It returns a dependency error for any failure
// other than losing a creation race.
//
// Overlapping callers share one check that is detached from any single
// caller's cancellation; each caller still returns early on its own ctx.
func (m *SchemaManager) EnsureIndex(ctx context.Context) error {
	ch := m.group.DoChan(m.spec.Name, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), ensureTimeout)
		defer cancel()
		return nil, m.ensure(shared)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return apperr.Dependency("rag.ensure_index", "check index existence", ctx.Err())
	}
}

// ensure runs one existence check and, if needed, one creation attempt.
func (m *SchemaManager) ensure(ctx context.Context) error {
	exists, err := m.prov.IndexExists(ctx, m.spec.Name)
	if err != nil {
		return apperr.Dependency("rag.ensure_index", "check index existence", err)
	}
	if exists {
		return nil
	}

	err = m.prov.CreateIndex(ctx, m.spec)
	switch {
	case err == nil:
		m.log.Info("rag: index created",
			slog.String("index", m.spec.Name),
			slog.Int("dimensions", m.spec.Dimensions),
		)
		return nil
	case errors.Is(err, ErrIndexExists):
		m.log.Debug("rag: index created concurrently", slog.String("index", m.spec.Name))
		return nil
	default:
		return apperr.Dependency("rag.ensure_index", "create index", err)
	}
}
