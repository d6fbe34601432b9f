package providers

import (
	"time"
)

// Message represents a single message in a conversation.
// It is provider-agnostic and is transformed to vendor formats by each adapter.
type Message struct {
	// Role identifies the message sender (system, user, assistant, tool)
	Role string `json:"role" validate:"required,oneof=system user assistant tool"`

	// Content is the message text content
	Content string `json:"content"`

	// Name is an optional name for the message sender
	Name string `json:"name,omitempty"`

	// Images holds image URLs or data URIs attached to the message.
	// A request carrying images requires the vision capability.
	Images []string `json:"images,omitempty"`

	// ToolCallID references the tool call a tool message responds to
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a function/tool call request from the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool represents a tool/function definition that the model can call.
type Tool struct {
	Name        string                 `json:"name" validate:"required"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Capability is a model feature a request may require.
type Capability string

// Model capabilities.
const (
	CapabilityVision    Capability = "vision"
	CapabilityTools     Capability = "tools"
	CapabilityStreaming Capability = "streaming"
	CapabilityThinking  Capability = "thinking"
)

// Request is a provider-agnostic completion request.
type Request struct {
	// ID is the gateway request identifier, propagated into usage records.
	ID string `json:"-"`

	// Model is the requested model. Empty selects each provider's default model.
	Model string `json:"model,omitempty"`

	// Messages is the conversation history
	Messages []Message `json:"messages" validate:"required,min=1,dive"`

	// Temperature controls randomness. Nil leaves the provider default.
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`

	// MaxTokens caps the completion length
	MaxTokens int `json:"max_tokens,omitempty" validate:"gte=0"`

	// TopP controls nucleus sampling
	TopP *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`

	// Stop sequences that halt generation
	Stop []string `json:"stop,omitempty" validate:"max=4"`

	// Tools the model may call; non-empty requires the tools capability
	Tools []Tool `json:"tools,omitempty" validate:"dive"`

	// Thinking requests extended reasoning; requires the thinking capability
	Thinking bool `json:"thinking,omitempty"`

	// Stream asks for incremental deltas; requires the streaming capability
	Stream bool `json:"stream,omitempty"`

	// Capabilities lists additional capabilities the caller requires
	Capabilities []Capability `json:"capabilities,omitempty"`

	// ProviderHint narrows routing to a single provider by name
	ProviderHint string `json:"provider,omitempty"`

	// UserID attributes the request for per-user budgets
	UserID string `json:"user,omitempty"`

	// Metadata carries request context that is never sent to a provider
	Metadata map[string]string `json:"-"`
}

// RequiredCapabilities returns the union of the explicit capabilities and the
// capabilities implied by the request content, in a fixed order.
func (r *Request) RequiredCapabilities() []Capability {
	need := make(map[Capability]bool, len(r.Capabilities)+4)
	for _, c := range r.Capabilities {
		need[c] = true
	}
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			need[CapabilityVision] = true
			break
		}
	}
	if len(r.Tools) > 0 {
		need[CapabilityTools] = true
	}
	if r.Stream {
		need[CapabilityStreaming] = true
	}
	if r.Thinking {
		need[CapabilityThinking] = true
	}

	out := make([]Capability, 0, len(need))
	for _, c := range []Capability{CapabilityVision, CapabilityTools, CapabilityStreaming, CapabilityThinking} {
		if need[c] {
			out = append(out, c)
			delete(need, c)
		}
	}
	for c := range need {
		out = append(out, c)
	}
	return out
}

// WithModel returns a shallow copy of the request targeting model.
func (r *Request) WithModel(model string) *Request {
	clone := *r
	clone.Model = model
	return &clone
}

// Usage tracks token consumption for a single completion.
type Usage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	CachedTokens   int `json:"cached_tokens,omitempty"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"`
}

// Total returns the sum of input, output and thinking tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.ThinkingTokens
}

// Response is a provider-agnostic completion response.
type Response struct {
	ID           string        `json:"id"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	FinishReason string        `json:"finish_reason"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	Usage        Usage         `json:"usage"`
	Cost         float64       `json:"cost"`
	Latency      time.Duration `json:"latency"`
	Created      time.Time     `json:"created"`

	// CacheLayer names the cache layer that served the response, empty for
	// responses fetched from a provider.
	CacheLayer string `json:"cache_layer,omitempty"`

	// Similarity is the similarity score of a similarity-layer hit.
	Similarity float64 `json:"similarity,omitempty"`
}

// Clone returns a deep copy safe to mutate.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := *r
	if r.ToolCalls != nil {
		clone.ToolCalls = append([]ToolCall(nil), r.ToolCalls...)
	}
	return &clone
}

// Delta is one increment of a streamed completion.
type Delta struct {
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ProviderConfig contains configuration for a single adapter instance.
// It is the subset of config.ProviderConfig the adapters need.
type ProviderConfig struct {
	Name         string
	Type         string
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	DefaultModel string
	Options      map[string]string
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)
