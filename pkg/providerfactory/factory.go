// Package providerfactory turns provider configuration into adapters.
package providerfactory

import (
	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/providers/anthropic"
	"kageforge-hq/forge/pkg/providers/generic"
	"kageforge-hq/forge/pkg/providers/openai"
	"kageforge-hq/forge/pkg/providers/stub"
)

// DefaultRegistry returns a registry with every built-in adapter type:
//
//   - "openai": OpenAI Chat Completions API
//   - "anthropic": Anthropic Messages API
//   - "generic": OpenAI-compatible APIs (Ollama, LM Studio, vLLM, Groq)
//   - "stub": deterministic offline adapter
func DefaultRegistry() *providers.Registry {
	reg := providers.NewRegistry()
	reg.Register("openai", openai.New)
	reg.Register("anthropic", anthropic.New)
	reg.Register("generic", generic.New)
	reg.Register("stub", stub.New)
	return reg
}

// AdapterConfig converts a configured provider into the adapter subset.
func AdapterConfig(pc config.ProviderConfig) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:         pc.Name,
		Type:         pc.Type,
		BaseURL:      pc.BaseURL,
		APIKey:       pc.APIKey,
		Timeout:      pc.Timeout,
		MaxRetries:   pc.MaxRetries,
		DefaultModel: pc.DefaultModel,
		Options:      pc.Options,
	}
}

// Catalog builds the model catalog from configuration.
func Catalog(models []config.ModelConfig) *providers.Catalog {
	out := make([]providers.Model, 0, len(models))
	for _, m := range models {
		caps := make([]providers.Capability, len(m.Capabilities))
		for i, c := range m.Capabilities {
			caps[i] = providers.Capability(c)
		}
		out = append(out, providers.Model{
			Name:            m.Name,
			ContextWindow:   m.ContextWindow,
			MaxOutputTokens: m.MaxOutputTokens,
			Capabilities:    caps,
			Pricing: providers.Pricing{
				Input:       m.Pricing.Input,
				Output:      m.Pricing.Output,
				CachedInput: m.Pricing.CachedInput,
				Thinking:    m.Pricing.Thinking,
			},
		})
	}
	return providers.NewCatalog(out)
}
