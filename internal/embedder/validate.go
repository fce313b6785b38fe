package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/scoperag-go/internal/config"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If embedding.model matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Warn logs pre-flight warnings for embedding settings that are legal but
// probably wrong. Hard errors are reported by [New].
func Warn(cfg *config.Config, log *slog.Logger) {
	if cfg.Embedding.Provider == "" && cfg.Model.Provider != "ollama" {
		log.Warn("embedder: embedding.provider is not set, inheriting model provider",
			slog.String("backend", cfg.Model.Provider),
			slog.String("hint", "set EMBEDDING_PROVIDER to be explicit"),
		)
	}

	if m := cfg.Embedding.Model; m != "" && looksLikeChatModel(m) {
		log.Warn("embedder: embedding model looks like a chat model and will likely produce poor embeddings",
			slog.String("model", m),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
}
