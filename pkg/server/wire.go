package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// ChatCompletionRequest is the OpenAI-compatible request body, extended
// with provider, capabilities and thinking.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gte=1"`
	TopP        *float64      `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stop        []string      `json:"stop,omitempty" validate:"max=4"`
	Stream      bool          `json:"stream,omitempty"`
	User        string        `json:"user,omitempty" validate:"max=256"`
	Tools       []ChatTool    `json:"tools,omitempty" validate:"dive"`

	// Provider pins the request to one configured provider.
	Provider string `json:"provider,omitempty"`

	// Capabilities are required in addition to those implied by the body.
	Capabilities []string `json:"capabilities,omitempty" validate:"dive,oneof=vision tools streaming thinking"`

	Thinking bool `json:"thinking,omitempty"`
}

// ChatMessage is one conversation turn. Content is a string or an array of
// text and image_url parts.
type ChatMessage struct {
	Role       string         `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    MessageContent `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// MessageContent holds decoded message text and image URLs.
type MessageContent struct {
	Text   string
	Images []string
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// UnmarshalJSON accepts a string, null or an array of content parts.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}

	var parts []contentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}

	var text bytes.Buffer
	for _, p := range parts {
		switch p.Type {
		case "text":
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(p.Text)
		case "image_url":
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return fmt.Errorf("image_url part without url")
			}
			c.Images = append(c.Images, p.ImageURL.URL)
		default:
			return fmt.Errorf("unsupported content part type %q", p.Type)
		}
	}
	c.Text = text.String()
	return nil
}

// MarshalJSON writes plain text content as a string.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.Images) == 0 {
		return json.Marshal(c.Text)
	}
	parts := make([]map[string]any, 0, len(c.Images)+1)
	if c.Text != "" {
		parts = append(parts, map[string]any{"type": "text", "text": c.Text})
	}
	for _, u := range c.Images {
		parts = append(parts, map[string]any{"type": "image_url", "image_url": map[string]string{"url": u}})
	}
	return json.Marshal(parts)
}

// ChatTool is an OpenAI function tool.
type ChatTool struct {
	Type     string       `json:"type" validate:"omitempty,eq=function"`
	Function ChatFunction `json:"function"`
}

// ChatFunction describes a callable function.
type ChatFunction struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// toProvider converts the wire request into the gateway request.
func (r *ChatCompletionRequest) toProvider() *providers.Request {
	req := &providers.Request{
		Model:        r.Model,
		Temperature:  r.Temperature,
		TopP:         r.TopP,
		Stop:         r.Stop,
		Stream:       r.Stream,
		Thinking:     r.Thinking,
		ProviderHint: r.Provider,
		UserID:       r.User,
		Messages:     make([]providers.Message, len(r.Messages)),
	}
	if r.MaxTokens != nil {
		req.MaxTokens = *r.MaxTokens
	}
	for i, m := range r.Messages {
		req.Messages[i] = providers.Message{
			Role:       m.Role,
			Content:    m.Content.Text,
			Name:       m.Name,
			Images:     m.Content.Images,
			ToolCallID: m.ToolCallID,
		}
	}
	for _, t := range r.Tools {
		req.Tools = append(req.Tools, providers.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	for _, c := range r.Capabilities {
		req.Capabilities = append(req.Capabilities, providers.Capability(c))
	}
	return req
}

// ChatCompletionResponse is the OpenAI-compatible response body.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`

	// Gateway describes how the request was served.
	Gateway *GatewayInfo `json:"kageforge,omitempty"`
}

// ChatChoice is one completion choice. Message is set for complete
// responses, Delta for stream chunks.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      *ChatOutput `json:"message,omitempty"`
	Delta        *ChatOutput `json:"delta,omitempty"`
	FinishReason *string     `json:"finish_reason"`
}

// ChatOutput is an assistant message or delta.
type ChatOutput struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content"`
	ToolCalls []ChatToolCall `json:"tool_calls,omitempty"`
}

// ChatToolCall is a function call requested by the model.
type ChatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ChatUsage reports token counts.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
	ThinkingTokens   int `json:"thinking_tokens,omitempty"`
}

// GatewayInfo carries gateway provenance.
type GatewayInfo struct {
	Provider   string  `json:"provider"`
	Cost       float64 `json:"cost"`
	LatencyMS  int64   `json:"latency_ms"`
	CacheLayer string  `json:"cache_layer,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Failovers  int     `json:"failovers,omitempty"`
}

func newChatCompletionResponse(requestID string, resp *providers.Response, failovers int) *ChatCompletionResponse {
	out := &ChatChoice{
		Message: &ChatOutput{Role: providers.RoleAssistant, Content: resp.Content},
	}
	for _, tc := range resp.ToolCalls {
		call := ChatToolCall{ID: tc.ID, Type: "function"}
		call.Function.Name = tc.Name
		call.Function.Arguments = tc.Arguments
		out.Message.ToolCalls = append(out.Message.ToolCalls, call)
	}
	if resp.FinishReason != "" {
		reason := resp.FinishReason
		out.FinishReason = &reason
	}

	return &ChatCompletionResponse{
		ID:      completionID(requestID),
		Object:  "chat.completion",
		Created: created(resp.Created),
		Model:   resp.Model,
		Choices: []ChatChoice{*out},
		Usage:   usageOf(resp.Usage),
		Gateway: &GatewayInfo{
			Provider:   resp.Provider,
			Cost:       resp.Cost,
			LatencyMS:  resp.Latency.Milliseconds(),
			CacheLayer: resp.CacheLayer,
			Similarity: resp.Similarity,
			Failovers:  failovers,
		},
	}
}

func newChunk(requestID, model string, d *providers.Delta) *ChatCompletionResponse {
	choice := ChatChoice{Delta: &ChatOutput{Content: d.Content}}
	if d.FinishReason != "" {
		reason := d.FinishReason
		choice.FinishReason = &reason
	}
	return &ChatCompletionResponse{
		ID:      completionID(requestID),
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatChoice{choice},
	}
}

func usageOf(u providers.Usage) *ChatUsage {
	return &ChatUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.Total(),
		CachedTokens:     u.CachedTokens,
		ThinkingTokens:   u.ThinkingTokens,
	}
}

func completionID(requestID string) string {
	return "chatcmpl-" + requestID
}

func created(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
