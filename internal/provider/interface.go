// Package provider selects and constructs the completion model backend at
// runtime. Supported backends: Ollama, OpenAI, Azure OpenAI, Ark (used for
// Bedrock-style deployments), Google Gemini.
package provider

import (
	"fmt"
	"strings"

	"github.com/54b3r/scoperag-go/internal/config"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects the Ark runtime configured for a Bedrock-compatible endpoint.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds the provider selection and per-backend settings.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend
	// Ollama holds Ollama settings.
	Ollama ProviderOllama
	// OpenAI holds OpenAI settings.
	OpenAI ProviderOpenAI
	// AzureOpenAI holds Azure OpenAI settings.
	AzureOpenAI ProviderAzureOpenAI
	// Bedrock holds Ark/Bedrock settings.
	Bedrock ProviderBedrock
	// Gemini holds Gemini settings.
	Gemini ProviderGemini
	// Tuning holds generation settings shared by every backend.
	Tuning SharedTuning
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model is the model name (e.g. "llama3").
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the model name (e.g. "gpt-4o").
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI API key.
	APIKey string
	// Endpoint is the resource endpoint.
	Endpoint string
	// Deployment is the deployment name.
	Deployment string
	// APIVersion is the REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderBedrock holds Ark runtime settings.
type ProviderBedrock struct {
	// AWSRegion is the deployment region.
	AWSRegion string
	// ModelID is the model identifier.
	ModelID string
	// APIKey is the runtime API key.
	APIKey string
	// BaseURL overrides the runtime endpoint.
	BaseURL string
}

// ProviderGemini holds Gemini settings.
type ProviderGemini struct {
	// APIKey is the Google API key.
	APIKey string
	// Model is the model name (e.g. "gemini-1.5-pro").
	Model string
}

// SharedTuning holds settings applied to every backend that supports them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// FromConfig maps the model section of the application config onto a
// provider Config.
func FromConfig(mc config.ModelConfig) *Config {
	return &Config{
		Backend:     Backend(strings.ToLower(mc.Provider)),
		Ollama:      ProviderOllama{Host: mc.Ollama.Host, Model: mc.Ollama.Model},
		OpenAI:      ProviderOpenAI{APIKey: mc.OpenAI.APIKey, Model: mc.OpenAI.Model},
		AzureOpenAI: ProviderAzureOpenAI(mc.Azure),
		Bedrock: ProviderBedrock{
			AWSRegion: mc.Bedrock.Region,
			ModelID:   mc.Bedrock.ModelID,
			APIKey:    mc.Bedrock.APIKey,
			BaseURL:   mc.Bedrock.BaseURL,
		},
		Gemini: ProviderGemini{APIKey: mc.Gemini.APIKey, Model: mc.Gemini.Model},
		Tuning: SharedTuning{MaxTokens: mc.MaxTokens, Temperature: mc.Temperature},
	}
}

// Validate reports the first missing setting for the selected backend,
// naming the env var that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for bedrock backend")
		}
		if c.Bedrock.AWSRegion == "" {
			return fmt.Errorf("provider: AWS_REGION is required for bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: ollama, openai, azure, bedrock, gemini)", c.Backend)
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment name refers to a
// reasoning-class model that rejects temperature and max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
