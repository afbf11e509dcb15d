package providers

import (
	"fmt"

	"github.com/lunarhue/sidekick/internal/config"
)

// New builds the configured default provider from config. API keys are
// sourced from the environment during config load and are required.
func New(cfg *config.Config) (Provider, error) {
	name := cfg.DefaultProvider()
	pc := cfg.ProviderByName(name)

	switch name {
	case "anthropic":
		if pc.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but SIDEKICK_ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropicProvider(pc.APIKey,
			WithAnthropicBaseURL(pc.BaseURL),
			WithAnthropicModel(pc.Model),
			WithAnthropicMaxTokens(pc.MaxTokens),
		), nil
	case "openai":
		if pc.APIKey == "" {
			return nil, fmt.Errorf("openai provider selected but SIDEKICK_OPENAI_API_KEY is not set")
		}
		return NewOpenAIProvider(pc.APIKey, pc.BaseURL, pc.Model, pc.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
