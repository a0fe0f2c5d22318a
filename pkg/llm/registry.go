package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/config"
)

// ErrProviderNotConfigured is returned by AdapterFor when the provider has no
// API key configured. Callers that already charged credits for the request
// are expected to refund before surfacing the error.
type ErrProviderNotConfigured struct {
	Provider string
}

func (e *ErrProviderNotConfigured) Error() string {
	return fmt.Sprintf("provider %s is not configured (missing API key)", e.Provider)
}

// Registry holds the set of provider adapters built from configuration.
// Providers without an API key are simply absent from the registry.
type Registry struct {
	adapters map[string]ProviderAdapter
}

// NewRegistry builds adapters for every provider with a configured API key.
func NewRegistry(cfg *config.ProviderConfig, logger *zap.Logger) *Registry {
	adapters := make(map[string]ProviderAdapter)

	if cfg.GeminiAPIKey != "" {
		adapters[ProviderGemini] = NewGeminiAdapter(cfg.GeminiAPIKey, cfg.GeminiBaseURL, logger)
	}
	if cfg.OpenAIAPIKey != "" {
		adapters[ProviderOpenAI] = NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)
	}
	if cfg.AnthropicAPIKey != "" {
		adapters[ProviderAnthropic] = NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, logger)
	}
	if cfg.PerplexityAPIKey != "" {
		adapters[ProviderPerplexity] = NewPerplexityAdapter(cfg.PerplexityAPIKey, cfg.PerplexityBaseURL, logger)
	}

	logger.Info("Provider registry initialized", zap.Int("providers", len(adapters)))
	return &Registry{adapters: adapters}
}

// NewRegistryFromAdapters builds a registry from pre-built adapters, used in tests.
func NewRegistryFromAdapters(adapters map[string]ProviderAdapter) *Registry {
	return &Registry{adapters: adapters}
}

// AdapterFor returns the adapter for the given provider name.
func (r *Registry) AdapterFor(provider string) (ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, &ErrProviderNotConfigured{Provider: provider}
	}
	return adapter, nil
}

// Providers returns the names of all configured providers.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
