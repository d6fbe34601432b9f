package anthropic

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

const (
	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAnthropicVersion is the API version to use
	DefaultAnthropicVersion = "2023-06-01"

	defaultMaxTokens      = 4096
	defaultThinkingBudget = 2048
)

// Provider is the Anthropic Messages API adapter.
type Provider struct {
	*providers.HTTPClient

	endpoint       string
	headers        map[string]string
	maxTokens      int
	thinkingBudget int
}

// New creates the Anthropic adapter. Options read from the provider config:
// "version", "max_tokens" and "thinking_budget".
func New(cfg providers.ProviderConfig, opts ...providers.Option) (providers.Adapter, error) {
	if cfg.Name == "" {
		return nil, &providers.ConfigError{Provider: "anthropic", Field: "name", Message: "provider name is required"}
	}
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "api_key", Message: "API key is required for Anthropic"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	version := cfg.Options["version"]
	if version == "" {
		version = DefaultAnthropicVersion
	}

	p := &Provider{
		HTTPClient: providers.NewHTTPClient(cfg, opts...),
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages",
		headers: map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": version,
		},
		maxTokens:      intOption(cfg.Options, "max_tokens", defaultMaxTokens),
		thinkingBudget: intOption(cfg.Options, "thinking_budget", defaultThinkingBudget),
	}

	p.Logger().Info("anthropic provider initialized", "endpoint", p.endpoint)
	return p, nil
}

// Complete sends a messages request.
func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	start := time.Now()

	body, err := p.transform(req, false)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.endpoint, body, &resp, p.headers); err != nil {
		return nil, err
	}

	out := transformResponse(p.Name(), &resp)
	out.Latency = time.Since(start)

	p.Logger().Debug("completion request succeeded", "model", out.Model, "tokens", out.Usage.Total())
	return out, nil
}

// CompleteStream opens a streaming messages request.
func (p *Provider) CompleteStream(ctx context.Context, req *providers.Request) (providers.Stream, error) {
	start := time.Now()

	body, err := p.transform(req, true)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Accept": "text/event-stream"}
	for k, v := range p.headers {
		headers[k] = v
	}

	rc, err := p.DoStream(ctx, http.MethodPost, p.endpoint, body, headers)
	if err != nil {
		return nil, err
	}
	return newStream(p.Name(), body.Model, start, rc), nil
}

func (p *Provider) transform(req *providers.Request, stream bool) (*MessagesRequest, error) {
	model := req.Model
	if model == "" {
		model = p.Config().DefaultModel
	}
	body, err := transformRequest(req, model, p.maxTokens, p.thinkingBudget, stream)
	if err != nil {
		return nil, providers.NewError(p.Name(), providers.KindInvalidRequest, err.Error(), nil)
	}
	return body, nil
}

func intOption(opts map[string]string, key string, def int) int {
	if v, err := strconv.Atoi(opts[key]); err == nil && v > 0 {
		return v
	}
	return def
}
