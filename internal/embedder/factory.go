package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/scoperag-go/internal/config"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small
	// and text-embedding-ada-002.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Dimensions returns the embedding vector size the index must be created
// with. An explicit embedding.dimensions always takes precedence.
func Dimensions(cfg *config.Config) int {
	if cfg.Embedding.Dimensions > 0 {
		return cfg.Embedding.Dimensions
	}
	switch cfg.EmbeddingProvider() {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs a rag.Embedder using cascading defaults that inherit from
// the chat provider configuration when embedding-specific overrides are not
// set.
//
// Resolution order:
//
//  1. embedding.provider, else model.provider
//  2. per-backend credentials are inherited from the chat provider section
//  3. embedding.model overrides the default model for the resolved backend
//  4. embedding.api_key overrides the inherited API key
//  5. embedding.endpoint overrides the inherited endpoint
func New(ctx context.Context, cfg *config.Config) (rag.Embedder, error) {
	ec := cfg.Embedding
	backend := cfg.EmbeddingProvider()

	switch backend {
	case "ollama":
		host := or(ec.Endpoint, cfg.Model.Ollama.Host, "http://localhost:11434")
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: or(ec.Model, defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := or(ec.APIKey, cfg.Model.OpenAI.APIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    or(ec.Endpoint, "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      or(ec.Model, defaultOpenAIModel),
			Dimensions: ec.Dimensions,
		}), nil

	case "azure":
		apiKey := or(ec.APIKey, cfg.Model.Azure.APIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := or(ec.Endpoint, cfg.Model.Azure.Endpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      or(ec.Model, defaultOpenAIModel),
			Dimensions: ec.Dimensions,
			Azure:      true,
			APIVersion: or(cfg.Model.Azure.APIVersion, "2024-02-01"),
		}), nil

	case "gemini":
		apiKey := or(ec.APIKey, cfg.Model.Gemini.APIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      or(ec.Model, defaultGeminiModel),
			Dimensions: ec.Dimensions,
		})

	case "bedrock":
		return nil, fmt.Errorf("embedder: bedrock has no embedding endpoint; set EMBEDDING_PROVIDER to ollama, openai, azure, or gemini")

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid values: ollama, openai, azure, gemini)", backend)
	}
}

// or returns the first non-empty value.
func or(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
