package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

const (
	// DefaultBaseURL is the public OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultPath is the chat completions path appended to the base URL.
	DefaultPath = "/chat/completions"

	defaultReasoningEffort = "medium"
)

// Client speaks the Chat Completions wire format. It serves both the openai
// adapter and OpenAI-compatible endpoints.
type Client struct {
	*providers.HTTPClient

	endpoint        string
	headers         map[string]string
	reasoningEffort string
}

// ClientOptions customizes a Client for OpenAI-compatible servers.
type ClientOptions struct {
	// Path overrides DefaultPath.
	Path string

	// RequireAPIKey rejects configurations without an API key.
	RequireAPIKey bool

	// Headers are sent on every request.
	Headers map[string]string
}

// New creates the OpenAI adapter. It is registered as the "openai" type.
func New(cfg providers.ProviderConfig, opts ...providers.Option) (providers.Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return NewClient(cfg, ClientOptions{RequireAPIKey: true}, opts...)
}

// NewClient creates a Chat Completions client.
func NewClient(cfg providers.ProviderConfig, co ClientOptions, opts ...providers.Option) (*Client, error) {
	if cfg.Name == "" {
		return nil, &providers.ConfigError{Provider: cfg.Type, Field: "name", Message: "provider name is required"}
	}
	if cfg.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: "base URL is required"}
	}
	if co.RequireAPIKey && cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "api_key", Message: "API key is required"}
	}

	path := co.Path
	if path == "" {
		path = DefaultPath
	}

	headers := map[string]string{"Accept": "application/json"}
	for k, v := range co.Headers {
		headers[k] = v
	}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	effort := cfg.Options["reasoning_effort"]
	if effort == "" {
		effort = defaultReasoningEffort
	}

	c := &Client{
		HTTPClient:      providers.NewHTTPClient(cfg, opts...),
		endpoint:        strings.TrimRight(cfg.BaseURL, "/") + path,
		headers:         headers,
		reasoningEffort: effort,
	}

	c.Logger().Info("chat completions provider initialized", "type", cfg.Type, "endpoint", c.endpoint)
	return c, nil
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	start := time.Now()

	var resp ChatResponse
	body := transformRequest(req, c.model(req), c.reasoningEffort, false)
	if err := c.DoJSON(ctx, http.MethodPost, c.endpoint, body, &resp, c.headers); err != nil {
		return nil, err
	}

	out, err := transformResponse(c.Name(), &resp)
	if err != nil {
		return nil, err
	}
	out.Latency = time.Since(start)
	return out, nil
}

// CompleteStream opens a streaming chat completion.
func (c *Client) CompleteStream(ctx context.Context, req *providers.Request) (providers.Stream, error) {
	start := time.Now()
	model := c.model(req)

	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	headers["Accept"] = "text/event-stream"

	body, err := c.DoStream(ctx, http.MethodPost, c.endpoint, transformRequest(req, model, c.reasoningEffort, true), headers)
	if err != nil {
		return nil, err
	}
	return newStream(c.Name(), model, start, body), nil
}

func (c *Client) model(req *providers.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.Config().DefaultModel
}
