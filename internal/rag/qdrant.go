package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// pointNamespace scopes the UUIDs derived from chunk IDs. Qdrant only accepts
// UUIDs or integers as point IDs, so the chunk ID lives in the payload.
var pointNamespace = uuid.MustParse("6f1c2b9e-4d3a-5e8f-9a7b-0c1d2e3f4a5b")

// scrollPageSize is the number of points fetched per Scroll call in FindIDs.
const scrollPageSize = 256

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index backed by a Qdrant collection.
// The collection is not created here; [SchemaManager] does that lazily.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// collection is the collection every operation targets.
	collection string
}

// NewQdrantIndex connects to Qdrant.
func NewQdrantIndex(cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

// Collection returns the target collection name.
func (s *QdrantIndex) Collection() string { return s.collection }

// IndexExists reports whether the named collection exists.
func (s *QdrantIndex) IndexExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	return exists, nil
}

// CreateIndex creates the collection with cosine HNSW vectors and one payload
// index per filterable, searchable, or timestamp field.
func (s *QdrantIndex) CreateIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Dimensions <= 0 {
		return fmt.Errorf("qdrant: invalid vector size %d", spec.Dimensions)
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(spec.Dimensions), //nolint:gosec // validated above
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           qdrant.PtrOf(uint64(spec.HNSWM)),           //nolint:gosec // small constant
				EfConstruct: qdrant.PtrOf(uint64(spec.HNSWEfConstruct)), //nolint:gosec // small constant
			},
		}),
	})
	if err != nil {
		if isAlreadyExists(err) {
			return fmt.Errorf("qdrant: collection %q: %w", spec.Name, ErrIndexExists)
		}
		return fmt.Errorf("qdrant: failed to create collection %q: %w", spec.Name, err)
	}

	for _, f := range spec.Fields {
		req := &qdrant.CreateFieldIndexCollection{
			CollectionName: spec.Name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      f.Name,
		}
		switch f.Kind {
		case FieldKey, FieldFilterable:
			req.FieldType = qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword)
		case FieldSearchable:
			req.FieldType = qdrant.PtrOf(qdrant.FieldType_FieldTypeText)
			req.FieldIndexParams = qdrant.NewPayloadIndexParamsText(&qdrant.TextIndexParams{
				Tokenizer: qdrant.TokenizerType_Word,
				Lowercase: qdrant.PtrOf(true),
			})
		case FieldTimestamp:
			req.FieldType = qdrant.PtrOf(qdrant.FieldType_FieldTypeDatetime)
		default:
			continue
		}
		if _, err := s.client.CreateFieldIndex(ctx, req); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("qdrant: failed to index field %q: %w", f.Name, err)
		}
	}

	return nil
}

// UpsertBatch writes records as points keyed by a UUID derived from the
// chunk ID.
func (s *QdrantIndex) UpsertBatch(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(rec.ID)),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				FieldID:         rec.ID,
				FieldFilename:   rec.Filename,
				FieldContent:    rec.Content,
				FieldScopeID:    rec.ScopeID,
				FieldPermanence: string(rec.Permanence),
				FieldUploadedAt: rec.UploadedAt.UTC().Format(time.RFC3339Nano),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// HybridSearch fuses two filtered prefetches with Reciprocal Rank Fusion:
// plain vector similarity, and vector similarity over points whose content
// shares a word with text.
func (s *QdrantIndex) HybridSearch(ctx context.Context, filter Filter, vector []float32, text string, top int) ([]SearchResult, error) {
	if top <= 0 {
		return nil, nil
	}
	limit := uint64(top) //nolint:gosec // checked above
	prefetchLimit := limit * 4
	scope := toQdrantFilter(filter)

	prefetch := []*qdrant.PrefetchQuery{{
		Query:  qdrant.NewQueryDense(vector),
		Filter: scope,
		Limit:  &prefetchLimit,
	}}
	if text = strings.TrimSpace(text); text != "" {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQueryDense(vector),
			Filter: &qdrant.Filter{Must: []*qdrant.Condition{
				qdrant.NewFilterAsCondition(scope),
				qdrant.NewMatchTextAny(FieldContent, text),
			}},
			Limit: &prefetchLimit,
		})
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Filter:         scope,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, SearchResult{
			ID:         payload[FieldID].GetStringValue(),
			Filename:   payload[FieldFilename].GetStringValue(),
			Content:    payload[FieldContent].GetStringValue(),
			ScopeID:    payload[FieldScopeID].GetStringValue(),
			Permanence: Permanence(payload[FieldPermanence].GetStringValue()),
			Score:      p.GetScore(),
		})
	}
	return results, nil
}

// FindIDs scrolls through every point matching filter and returns the chunk
// IDs stored in their payloads.
func (s *QdrantIndex) FindIDs(ctx context.Context, filter Filter) ([]string, error) {
	var (
		ids    []string
		offset *qdrant.PointId
	)
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         toQdrantFilter(filter),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayloadInclude(FieldID),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
		for _, p := range points {
			if id := p.GetPayload()[FieldID].GetStringValue(); id != "" {
				ids = append(ids, id)
			}
		}
		if next == nil || len(points) == 0 {
			return ids, nil
		}
		offset = next
	}
}

// DeleteByIDs removes the points derived from ids.
func (s *QdrantIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointID(id)))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// pointID maps a chunk ID to its deterministic Qdrant point UUID.
func pointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// toQdrantFilter translates a Filter into Qdrant conditions.
func toQdrantFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.ScopeID != "" {
		must = append(must, qdrant.NewMatchKeyword(FieldScopeID, f.ScopeID))
	}
	if f.Permanence != "" {
		must = append(must, qdrant.NewMatchKeyword(FieldPermanence, string(f.Permanence)))
	}
	if !f.UploadedBefore.IsZero() {
		must = append(must, qdrant.NewDatetimeRange(FieldUploadedAt, &qdrant.DatetimeRange{
			Lt: timestamppb.New(f.UploadedBefore),
		}))
	}

	if !f.OrPermanent {
		return &qdrant.Filter{Must: must}
	}
	return &qdrant.Filter{Should: []*qdrant.Condition{
		qdrant.NewFilterAsCondition(&qdrant.Filter{Must: must}),
		qdrant.NewMatchKeyword(FieldPermanence, string(Permanent)),
	}}
}

// isAlreadyExists reports whether err means the resource was created by
// someone else first.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var st interface{ GRPCStatus() *status.Status }
	if errors.As(err, &st) && st.GRPCStatus().Code() == codes.AlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
