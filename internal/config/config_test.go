package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Ingestion.ChunkSize != 1000 || cfg.Ingestion.ChunkOverlap != 100 {
		t.Errorf("chunking defaults: got %d/%d", cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("top_k default: got %d", cfg.Retrieval.TopK)
	}
	if cfg.Lifecycle.MaxAge != 2*time.Hour || cfg.Lifecycle.Interval != 30*time.Minute {
		t.Errorf("lifecycle defaults: got %v/%v", cfg.Lifecycle.MaxAge, cfg.Lifecycle.Interval)
	}
}

func TestLoad_NoFile(t *testing.T) {
	log := slog.Default()
	cfg, path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
	if cfg == nil {
		t.Fatal("expected defaults when no file is found")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: azure
  max_tokens: 8192
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
  dimensions: 768
index:
  backend: memory
  name: my-docs
lifecycle:
  interval: 5m
  max_age: 90m
logging:
  level: debug
  format: text
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	for _, k := range []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "AZURE_OPENAI_ENDPOINT",
		"EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "INDEX_BACKEND", "INDEX_NAME",
		"SWEEP_INTERVAL", "SWEEP_MAX_AGE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}

	cfg, loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}
	if cfg.Model.Provider != "azure" || cfg.Model.MaxTokens != 8192 {
		t.Errorf("model: got %q/%d", cfg.Model.Provider, cfg.Model.MaxTokens)
	}
	if cfg.Model.Azure.Endpoint != "https://my-resource.openai.azure.com" {
		t.Errorf("azure endpoint: got %q", cfg.Model.Azure.Endpoint)
	}
	if cfg.Embedding.Dimensions != 768 || cfg.Index.Backend != "memory" || cfg.Index.Name != "my-docs" {
		t.Errorf("index/embedding: got %d %q %q", cfg.Embedding.Dimensions, cfg.Index.Backend, cfg.Index.Name)
	}
	if cfg.Lifecycle.Interval != 5*time.Minute || cfg.Lifecycle.MaxAge != 90*time.Minute {
		t.Errorf("durations: got %v/%v", cfg.Lifecycle.Interval, cfg.Lifecycle.MaxAge)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Ingestion.ChunkSize != 1000 || cfg.Server.Port != 8080 {
		t.Errorf("defaults overwritten: chunk=%d port=%d", cfg.Ingestion.ChunkSize, cfg.Server.Port)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("model:\n  provider: openai\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODEL_PROVIDER", "ollama")
	t.Setenv("RETRIEVAL_TOP_K", "7")

	cfg, _, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Provider != "ollama" {
		t.Errorf("MODEL_PROVIDER: got %q, want %q (env should win)", cfg.Model.Provider, "ollama")
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("RETRIEVAL_TOP_K: got %d", cfg.Retrieval.TopK)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":\n  :\n    - [invalid"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Parallel()

	env := map[string]string{"QDRANT_PORT": "not-a-port"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	_, err := applyEnv(Default(), lookup)
	if err == nil || !strings.Contains(err.Error(), "QDRANT_PORT") {
		t.Fatalf("expected error naming QDRANT_PORT, got %v", err)
	}
}

func TestApplyEnv_CountsOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"SWEEP_MAX_AGE": "30m",
		"QDRANT_TLS":    "true",
		"LOG_LEVEL":     "",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	n, err := applyEnv(cfg, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 overrides, got %d", n)
	}
	if cfg.Lifecycle.MaxAge != 30*time.Minute || !cfg.Index.Qdrant.TLS {
		t.Errorf("overrides not applied: %v %v", cfg.Lifecycle.MaxAge, cfg.Index.Qdrant.TLS)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("empty env value should not override, got %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown index backend", func(c *Config) { c.Index.Backend = "elastic" }},
		{"unknown blob backend", func(c *Config) { c.Blob.Backend = "s3" }},
		{"overlap not below size", func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize }},
		{"batch over engine limit", func(c *Config) { c.Ingestion.BatchSize = 101 }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"zero max age", func(c *Config) { c.Lifecycle.MaxAge = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEmbeddingProvider_Inherits(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Model.Provider = "openai"
	if got := cfg.EmbeddingProvider(); got != "openai" {
		t.Errorf("got %q, want openai", got)
	}
	cfg.Embedding.Provider = "ollama"
	if got := cfg.EmbeddingProvider(); got != "ollama" {
		t.Errorf("got %q, want ollama", got)
	}
}
