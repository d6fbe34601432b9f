package generic

import (
	"strings"

	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/providers/openai"
)

// New creates an adapter for any OpenAI-compatible server (Ollama, LM Studio,
// vLLM, Groq). It reuses the Chat Completions codec with an optional API key.
//
// Provider options:
//
//	path:          chat completions path (default /chat/completions)
//	header.<Name>: extra header sent on every request
func New(cfg providers.ProviderConfig, opts ...providers.Option) (providers.Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "base_url",
			Message:  "base URL is required for generic provider",
		}
	}

	headers := make(map[string]string)
	for key, value := range cfg.Options {
		if name, ok := strings.CutPrefix(key, "header."); ok && name != "" {
			headers[name] = value
		}
	}

	return openai.NewClient(cfg, openai.ClientOptions{
		Path:    cfg.Options["path"],
		Headers: headers,
	}, opts...)
}
