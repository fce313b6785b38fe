package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend. It validates the config first so callers get a clear
// error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendBedrock:
		return newBedrock(ctx, cfg)
	default:
		return newGemini(ctx, cfg)
	}
}
