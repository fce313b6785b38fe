// Package audit provides a structured audit logger for CLI command invocations.
// It logs command name, config file source, and the sanitised resolved
// configuration so operators can trace what happened without exposing secret
// values.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/scoperag-go/internal/config"
)

// auditEntry defines a resolved config value to include in the audit log.
type auditEntry struct {
	// key is the env var name operators use to override the value.
	key string
	// secret indicates the value should be redacted to presence/absence.
	secret bool
	// value extracts the resolved value from the configuration.
	value func(*config.Config) string
}

// auditKeys is the ordered list of values included in every audit log entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", false, func(c *config.Config) string { return c.Model.Provider }},
	{"OLLAMA_HOST", false, func(c *config.Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", false, func(c *config.Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", true, func(c *config.Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", false, func(c *config.Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", true, func(c *config.Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", false, func(c *config.Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", false, func(c *config.Config) string { return c.Model.Azure.Deployment }},
	{"GOOGLE_API_KEY", true, func(c *config.Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", false, func(c *config.Config) string { return c.Model.Gemini.Model }},
	{"AWS_REGION", false, func(c *config.Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", false, func(c *config.Config) string { return c.Model.Bedrock.ModelID }},
	{"BEDROCK_API_KEY", true, func(c *config.Config) string { return c.Model.Bedrock.APIKey }},
	{"EMBEDDING_PROVIDER", false, func(c *config.Config) string { return c.EmbeddingProvider() }},
	{"EMBEDDING_MODEL", false, func(c *config.Config) string { return c.Embedding.Model }},
	{"EMBEDDING_API_KEY", true, func(c *config.Config) string { return c.Embedding.APIKey }},
	{"INDEX_BACKEND", false, func(c *config.Config) string { return c.Index.Backend }},
	{"INDEX_NAME", false, func(c *config.Config) string { return c.Index.Name }},
	{"QDRANT_HOST", false, func(c *config.Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", false, func(c *config.Config) string { return strconv.Itoa(c.Index.Qdrant.Port) }},
	{"QDRANT_API_KEY", true, func(c *config.Config) string { return c.Index.Qdrant.APIKey }},
	{"BLOB_BACKEND", false, func(c *config.Config) string { return c.Blob.Backend }},
	{"SWEEP_MAX_AGE", false, func(c *config.Config) string { return c.Lifecycle.MaxAge.String() }},
	{"LOG_LEVEL", false, func(c *config.Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", false, func(c *config.Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", true, func(c *config.Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", true, func(c *config.Config) string { return c.Tracing.SecretKey }},
}

// secretKeys indexes the secret entries of auditKeys.
var secretKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised config.
func LogCommandStart(log *slog.Logger, command string, configPath string, cfg *config.Config) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}

	if cfg != nil {
		for _, entry := range auditKeys {
			attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, entry.value(cfg))))
		}
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
