package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/scoperag-go/internal/blob"
	"github.com/54b3r/scoperag-go/internal/composer"
	"github.com/54b3r/scoperag-go/internal/config"
	"github.com/54b3r/scoperag-go/internal/embedder"
	"github.com/54b3r/scoperag-go/internal/ingestion"
	"github.com/54b3r/scoperag-go/internal/lifecycle"
	"github.com/54b3r/scoperag-go/internal/provider"
	"github.com/54b3r/scoperag-go/internal/rag"
	"github.com/54b3r/scoperag-go/internal/retrieval"
)

// stack holds every component built from one Config.
type stack struct {
	// index is the search index.
	index rag.Index
	// blobs stores uploaded documents.
	blobs blob.Store
	// embedder vectorises chunks and queries.
	embedder rag.Embedder
	// lifecycle deletes chunks by scope and age.
	lifecycle *lifecycle.Manager
	// pipeline ingests documents.
	pipeline *ingestion.Pipeline
	// retriever runs scoped hybrid search.
	retriever *retrieval.Retriever
	// metricsReg is nil when metrics are not exported.
	metricsReg prometheus.Registerer
}

// buildStack wires the index, blob store, embedder, lifecycle manager,
// ingestion pipeline, and retriever from cfg. reg may be nil to skip metrics.
// The caller must call Close.
func buildStack(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*stack, error) {
	embedder.Warn(cfg, log)
	emb, err := embedder.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	idx, err := openIndex(cfg, log)
	if err != nil {
		return nil, err
	}

	blobs, err := openBlobs(cfg)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	s := &stack{index: idx, blobs: blobs, embedder: emb, metricsReg: reg}

	var (
		lcMetrics  *lifecycle.Metrics
		ingMetrics *ingestion.Metrics
	)
	if reg != nil {
		lcMetrics = lifecycle.NewMetrics(reg)
		ingMetrics = ingestion.NewMetrics(reg)
	}

	s.lifecycle = lifecycle.NewManager(idx, cfg.Index.Name,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(lcMetrics),
	)

	schema := rag.NewSchemaManager(idx, rag.DefaultIndexSpec(cfg.Index.Name, embedder.Dimensions(cfg)), log)
	s.pipeline, err = ingestion.NewPipeline(emb, idx, schema, s.lifecycle,
		ingestion.WithLogger(log),
		ingestion.WithMetrics(ingMetrics),
		ingestion.WithPoolSize(cfg.Ingestion.Workers),
		ingestion.WithChunking(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		ingestion.WithBatchSizes(cfg.Ingestion.BatchSize, cfg.Ingestion.EmbedBatchSize),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	s.retriever = retrieval.New(emb, idx, cfg.Retrieval.TopK, log)
	return s, nil
}

// composer builds the response composer over a chat model from cfg.
func (s *stack) composer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*composer.Composer, error) {
	providerCfg := provider.FromConfig(cfg.Model)
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

	opts := []composer.Option{
		composer.WithLogger(log),
		composer.WithTopK(cfg.Retrieval.TopK),
	}
	if s.metricsReg != nil {
		opts = append(opts, composer.WithMetrics(composer.NewMetrics(s.metricsReg)))
	}
	return composer.New(chatModel, s.retriever, opts...)
}

// Close releases every component.
func (s *stack) Close() {
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.blobs != nil {
		_ = s.blobs.Close()
	}
	if s.index != nil {
		_ = s.index.Close()
	}
}

// openIndex connects to the configured search index.
func openIndex(cfg *config.Config, log *slog.Logger) (rag.Index, error) {
	if cfg.Index.Backend == "memory" {
		log.Warn("index: using in-process memory index, chunks are lost on exit")
		return rag.NewMemoryIndex(), nil
	}
	q := cfg.Index.Qdrant
	idx, err := rag.NewQdrantIndex(&rag.QdrantConfig{
		Host:       q.Host,
		Port:       q.Port,
		Collection: cfg.Index.Name,
		APIKey:     q.APIKey,
		UseTLS:     q.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", q.Host, q.Port, err)
	}
	log.Info("qdrant index ready",
		slog.String("host", q.Host),
		slog.Int("port", q.Port),
		slog.String("collection", cfg.Index.Name),
	)
	return idx, nil
}

// openBlobs opens the configured blob store, resolving the default path
// under ~/.scoperag when none is set.
func openBlobs(cfg *config.Config) (blob.Store, error) {
	path := cfg.Blob.Path
	if path == "" {
		p, err := blob.DefaultPath(cfg.Blob.Backend)
		if err != nil {
			return nil, err
		}
		path = p
	}
	if cfg.Blob.Backend == "fs" {
		return blob.OpenFS(path)
	}
	return blob.OpenSQLite(path)
}

// indexLabel names the index dependency in readiness responses.
func indexLabel(cfg *config.Config) string {
	if cfg.Index.Backend == "memory" {
		return "index"
	}
	return "qdrant"
}
