// Package config provides the single configuration struct for scoperag.
// Configuration is loaded once at startup with a layered precedence:
// defaults → YAML file → env vars. Environment variables always win.
// The resulting *Config is passed to every component; no other package
// reads the environment.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. SCOPERAG_CONFIG environment variable
//  3. ~/.scoperag/config.yaml
//  4. ./scoperag.yaml
//
// If no file is found the system runs from defaults and env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
// YAML keys mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the completion model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures the search index engine.
	Index IndexConfig `yaml:"index"`

	// Blob configures raw document storage.
	Blob BlobConfig `yaml:"blob"`

	// Ingestion configures chunking and batching.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Retrieval configures query-time search.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Lifecycle configures the expiry sweep.
	Lifecycle LifecycleConfig `yaml:"lifecycle"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds completion model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Bedrock holds Ark/Bedrock-compatible endpoint settings.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds settings for the Ark runtime used for Bedrock-style
// deployments.
type BedrockConfig struct {
	// Region is the deployment region.
	Region string `yaml:"region"`
	// ModelID is the model identifier.
	ModelID string `yaml:"model_id"`
	// APIKey is the runtime API key. Prefer env var BEDROCK_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the runtime endpoint.
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	// Empty inherits Model.Provider.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the embedding vector size. Zero uses the backend default.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// IndexConfig holds search index settings.
type IndexConfig struct {
	// Backend selects the engine: qdrant or memory.
	Backend string `yaml:"backend"`
	// Name is the index (collection) name.
	Name string `yaml:"name"`
	// Qdrant holds the Qdrant connection.
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// BlobConfig holds raw document storage settings.
type BlobConfig struct {
	// Backend selects the store: sqlite or fs.
	Backend string `yaml:"backend"`
	// Path is the SQLite database file or the filesystem directory.
	// Empty resolves to ~/.scoperag/blobs.db or ~/.scoperag/blobs.
	Path string `yaml:"path"`
}

// IngestionConfig holds chunking and batching settings.
type IngestionConfig struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// BatchSize is the number of records per index upsert (at most 100).
	BatchSize int `yaml:"batch_size"`
	// EmbedBatchSize is the number of chunks sent per embedding call.
	EmbedBatchSize int `yaml:"embed_batch_size"`
	// Workers bounds concurrent embedding calls across all ingestions.
	Workers int `yaml:"workers"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	// TopK is the number of chunks retrieved per query.
	TopK int `yaml:"top_k"`
}

// LifecycleConfig holds expiry sweep settings.
type LifecycleConfig struct {
	// Disabled turns off the background sweep in `scoperag serve`.
	Disabled bool `yaml:"disabled"`
	// Interval is the time between sweeps.
	Interval time.Duration `yaml:"interval"`
	// MaxAge is the age after which temporary chunks expire.
	MaxAge time.Duration `yaml:"max_age"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimit is the sustained per-IP request rate on expensive endpoints.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst on expensive endpoints.
	RateBurst int `yaml:"rate_burst"`
	// MaxUploadMB caps the size of an uploaded document.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "ollama",
			MaxTokens:   4096,
			Temperature: 0.2,
			Ollama:      OllamaConfig{Host: "http://localhost:11434", Model: "llama3"},
			OpenAI:      OpenAIConfig{Model: "gpt-4o"},
			Azure:       AzureConfig{APIVersion: "2024-02-01"},
			Bedrock:     BedrockConfig{Region: "us-east-1"},
			Gemini:      GeminiConfig{Model: "gemini-1.5-pro"},
		},
		Index: IndexConfig{
			Backend: "qdrant",
			Name:    "documents",
			Qdrant:  QdrantConfig{Host: "localhost", Port: 6334},
		},
		Blob: BlobConfig{Backend: "sqlite"},
		Ingestion: IngestionConfig{
			ChunkSize:      1000,
			ChunkOverlap:   100,
			BatchSize:      100,
			EmbedBatchSize: 16,
			Workers:        4,
		},
		Retrieval: RetrievalConfig{TopK: 3},
		Lifecycle: LifecycleConfig{Interval: 30 * time.Minute, MaxAge: 2 * time.Hour},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			RateLimit:   10,
			RateBurst:   20,
			MaxUploadMB: 32,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{Host: "http://localhost:3000"},
	}
}

// envMapping maps env var names onto config fields. Applied after the YAML
// file so env vars always take precedence.
var envMapping = []struct {
	envKey string
	apply  func(*Config, string) error
}{
	{"MODEL_PROVIDER", str(func(c *Config) *string { return &c.Model.Provider })},
	{"MODEL_MAX_TOKENS", integer(func(c *Config) *int { return &c.Model.MaxTokens })},
	{"MODEL_TEMPERATURE", float32Val(func(c *Config) *float32 { return &c.Model.Temperature })},
	{"OLLAMA_HOST", str(func(c *Config) *string { return &c.Model.Ollama.Host })},
	{"OLLAMA_MODEL", str(func(c *Config) *string { return &c.Model.Ollama.Model })},
	{"OPENAI_API_KEY", str(func(c *Config) *string { return &c.Model.OpenAI.APIKey })},
	{"OPENAI_MODEL", str(func(c *Config) *string { return &c.Model.OpenAI.Model })},
	{"AZURE_OPENAI_API_KEY", str(func(c *Config) *string { return &c.Model.Azure.APIKey })},
	{"AZURE_OPENAI_ENDPOINT", str(func(c *Config) *string { return &c.Model.Azure.Endpoint })},
	{"AZURE_OPENAI_DEPLOYMENT", str(func(c *Config) *string { return &c.Model.Azure.Deployment })},
	{"AZURE_OPENAI_API_VERSION", str(func(c *Config) *string { return &c.Model.Azure.APIVersion })},
	{"AWS_REGION", str(func(c *Config) *string { return &c.Model.Bedrock.Region })},
	{"BEDROCK_MODEL_ID", str(func(c *Config) *string { return &c.Model.Bedrock.ModelID })},
	{"BEDROCK_API_KEY", str(func(c *Config) *string { return &c.Model.Bedrock.APIKey })},
	{"BEDROCK_BASE_URL", str(func(c *Config) *string { return &c.Model.Bedrock.BaseURL })},
	{"GOOGLE_API_KEY", str(func(c *Config) *string { return &c.Model.Gemini.APIKey })},
	{"GEMINI_MODEL", str(func(c *Config) *string { return &c.Model.Gemini.Model })},
	{"EMBEDDING_PROVIDER", str(func(c *Config) *string { return &c.Embedding.Provider })},
	{"EMBEDDING_MODEL", str(func(c *Config) *string { return &c.Embedding.Model })},
	{"EMBEDDING_DIMENSIONS", integer(func(c *Config) *int { return &c.Embedding.Dimensions })},
	{"EMBEDDING_API_KEY", str(func(c *Config) *string { return &c.Embedding.APIKey })},
	{"EMBEDDING_ENDPOINT", str(func(c *Config) *string { return &c.Embedding.Endpoint })},
	{"INDEX_BACKEND", str(func(c *Config) *string { return &c.Index.Backend })},
	{"INDEX_NAME", str(func(c *Config) *string { return &c.Index.Name })},
	{"QDRANT_HOST", str(func(c *Config) *string { return &c.Index.Qdrant.Host })},
	{"QDRANT_PORT", integer(func(c *Config) *int { return &c.Index.Qdrant.Port })},
	{"QDRANT_API_KEY", str(func(c *Config) *string { return &c.Index.Qdrant.APIKey })},
	{"QDRANT_TLS", boolean(func(c *Config) *bool { return &c.Index.Qdrant.TLS })},
	{"BLOB_BACKEND", str(func(c *Config) *string { return &c.Blob.Backend })},
	{"BLOB_PATH", str(func(c *Config) *string { return &c.Blob.Path })},
	{"CHUNK_SIZE", integer(func(c *Config) *int { return &c.Ingestion.ChunkSize })},
	{"CHUNK_OVERLAP", integer(func(c *Config) *int { return &c.Ingestion.ChunkOverlap })},
	{"INGEST_BATCH_SIZE", integer(func(c *Config) *int { return &c.Ingestion.BatchSize })},
	{"EMBED_BATCH_SIZE", integer(func(c *Config) *int { return &c.Ingestion.EmbedBatchSize })},
	{"EMBED_WORKERS", integer(func(c *Config) *int { return &c.Ingestion.Workers })},
	{"RETRIEVAL_TOP_K", integer(func(c *Config) *int { return &c.Retrieval.TopK })},
	{"SWEEP_DISABLED", boolean(func(c *Config) *bool { return &c.Lifecycle.Disabled })},
	{"SWEEP_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Lifecycle.Interval })},
	{"SWEEP_MAX_AGE", duration(func(c *Config) *time.Duration { return &c.Lifecycle.MaxAge })},
	{"SCOPERAG_HOST", str(func(c *Config) *string { return &c.Server.Host })},
	{"SCOPERAG_PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"SCOPERAG_RATE_LIMIT", float64Val(func(c *Config) *float64 { return &c.Server.RateLimit })},
	{"SCOPERAG_RATE_BURST", integer(func(c *Config) *int { return &c.Server.RateBurst })},
	{"SCOPERAG_MAX_UPLOAD_MB", integer(func(c *Config) *int { return &c.Server.MaxUploadMB })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
	{"LANGFUSE_PUBLIC_KEY", str(func(c *Config) *string { return &c.Tracing.PublicKey })},
	{"LANGFUSE_SECRET_KEY", str(func(c *Config) *string { return &c.Tracing.SecretKey })},
	{"LANGFUSE_HOST", str(func(c *Config) *string { return &c.Tracing.Host })},
}

// Load builds the configuration from defaults, the first YAML file found,
// and the process environment, then validates it.
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (*Config, string, error) {
	cfg := Default()

	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using defaults and env vars")
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applied, err := applyEnv(cfg, os.LookupEnv)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	log.Info("config: loaded",
		slog.String("path", path),
		slog.Int("env_overrides", applied),
	)
	return cfg, path, nil
}

// applyEnv overlays every non-empty env var in envMapping onto cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) (int, error) {
	applied := 0
	for _, m := range envMapping {
		v, ok := lookup(m.envKey)
		if !ok || v == "" {
			continue
		}
		if err := m.apply(cfg, v); err != nil {
			return applied, fmt.Errorf("config: %s: %w", m.envKey, err)
		}
		applied++
	}
	return applied, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("config: index.backend %q (valid values: qdrant, memory)", c.Index.Backend)
	}
	if c.Index.Name == "" {
		return fmt.Errorf("config: index.name is required")
	}
	switch c.Blob.Backend {
	case "sqlite", "fs":
	default:
		return fmt.Errorf("config: blob.backend %q (valid values: sqlite, fs)", c.Blob.Backend)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("config: embedding.dimensions must not be negative")
	}
	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("config: ingestion.chunk_size must be positive")
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("config: ingestion.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Ingestion.BatchSize < 1 || c.Ingestion.BatchSize > 100 {
		return fmt.Errorf("config: ingestion.batch_size must be in [1, 100]")
	}
	if c.Ingestion.EmbedBatchSize < 1 || c.Ingestion.Workers < 1 {
		return fmt.Errorf("config: ingestion.embed_batch_size and ingestion.workers must be positive")
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("config: retrieval.top_k must be positive")
	}
	if c.Lifecycle.Interval <= 0 || c.Lifecycle.MaxAge <= 0 {
		return fmt.Errorf("config: lifecycle.interval and lifecycle.max_age must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

// EmbeddingProvider returns the effective embedding backend, inheriting the
// model provider when unset.
func (c *Config) EmbeddingProvider() string {
	if c.Embedding.Provider != "" {
		return c.Embedding.Provider
	}
	return c.Model.Provider
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("SCOPERAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".scoperag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("scoperag.yaml"); err == nil {
		return "scoperag.yaml"
	}

	return ""
}

// str sets a string field.
func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

// integer parses and sets an int field.
func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = i
		return nil
	}
}

// float32Val parses and sets a float32 field.
func float32Val(field func(*Config) *float32) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		*field(c) = float32(f)
		return nil
	}
}

// float64Val parses and sets a float64 field.
func float64Val(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		*field(c) = f
		return nil
	}
}

// boolean parses and sets a bool field.
func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*field(c) = b
		return nil
	}
}

// duration parses and sets a time.Duration field.
func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*field(c) = d
		return nil
	}
}
