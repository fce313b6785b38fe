// Package tracing wires the Langfuse callback handler into eino so that every
// completion call made by the composer is traced.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/scoperag-go/internal/config"
)

// Setup initialises the Langfuse callback handler if both keys are set.
// Returns a flush function that must be called before process exit to ensure
// all traces are sent. If Langfuse is not configured, the handler and flush
// function are nil and the boolean is false.
func Setup(cfg config.TracingConfig) (callbacks.Handler, func(), bool) {
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})

	return handler, flusher, true
}
