package llm

import (
	"context"
	"fmt"

	"github.com/spec-kit/support-agent/internal/config"
)

// NewClient picks the transport named by cfg.Provider.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.LLMProviderBedrock:
		return NewBedrockClient(ctx, cfg)
	case config.LLMProviderOpenAI, "":
		return NewOpenAIClient(cfg, nil), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
