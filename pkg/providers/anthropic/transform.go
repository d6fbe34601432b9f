package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// Anthropic API request/response types

// MessagesRequest represents an Anthropic messages request.
type MessagesRequest struct {
	Model         string           `json:"model"`
	Messages      []Message        `json:"messages"`
	System        string           `json:"system,omitempty"`
	MaxTokens     int              `json:"max_tokens"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
	Tools         []Tool           `json:"tools,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Thinking      *ThinkingOptions `json:"thinking,omitempty"`
	Metadata      *RequestMetadata `json:"metadata,omitempty"`
}

// ThinkingOptions enables extended thinking.
type ThinkingOptions struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// RequestMetadata carries the end-user identifier.
type RequestMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Message represents a message in Anthropic format.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a content block in Anthropic format.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// image blocks
	Source *ImageSource `json:"source,omitempty"`

	// tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// ImageSource references an image by URL or inline base64 data.
type ImageSource struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Tool represents a tool definition in Anthropic format.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// MessagesResponse represents an Anthropic messages response.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Usage represents token usage in Anthropic format. Input tokens exclude
// cache reads.
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
}

// StreamEvent represents an event in Anthropic's SSE stream.
type StreamEvent struct {
	Type    string            `json:"type"`
	Message *MessagesResponse `json:"message,omitempty"`
	Index   int               `json:"index"`
	Delta   *EventDelta       `json:"delta,omitempty"`
	Usage   *Usage            `json:"usage,omitempty"`
	Error   *APIError         `json:"error,omitempty"`
}

// EventDelta is the delta of content_block_delta and message_delta events.
type EventDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// APIError is the error payload of an in-stream error event.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// transformRequest transforms a provider-agnostic request to Anthropic format.
func transformRequest(req *providers.Request, model string, maxTokens, thinkingBudget int, stream bool) (*MessagesRequest, error) {
	out := &MessagesRequest{
		Model:         model,
		Messages:      make([]Message, 0, len(req.Messages)),
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        stream,
		StopSequences: req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = maxTokens
	}
	if req.Thinking {
		out.Thinking = &ThinkingOptions{Type: "enabled", BudgetTokens: thinkingBudget}
		if out.MaxTokens <= thinkingBudget {
			out.MaxTokens = thinkingBudget + maxTokens
		}
	}
	if req.UserID != "" {
		out.Metadata = &RequestMetadata{UserID: req.UserID}
	}

	// The system prompt is a separate field.
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, msg.Content)
		case providers.RoleTool:
			out.Messages = append(out.Messages, Message{
				Role:    providers.RoleUser,
				Content: []ContentBlock{{Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content}},
			})
		default:
			out.Messages = append(out.Messages, Message{Role: msg.Role, Content: contentBlocks(msg)})
		}
	}
	out.System = strings.Join(system, "\n\n")

	for _, tool := range req.Tools {
		schema := tool.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		out.Tools = append(out.Tools, Tool{Name: tool.Name, Description: tool.Description, InputSchema: schema})
	}

	if err := validateMessageSequence(out.Messages); err != nil {
		return nil, err
	}
	return out, nil
}

func contentBlocks(msg providers.Message) []ContentBlock {
	blocks := make([]ContentBlock, 0, len(msg.Images)+1)
	for _, img := range msg.Images {
		blocks = append(blocks, ContentBlock{Type: "image", Source: imageSource(img)})
	}
	if msg.Content != "" || len(blocks) == 0 {
		blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
	}
	return blocks
}

// imageSource converts a URL or a data URI (data:image/png;base64,...).
func imageSource(ref string) *ImageSource {
	if rest, ok := strings.CutPrefix(ref, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if found {
			return &ImageSource{Type: "base64", MediaType: strings.TrimSuffix(meta, ";base64"), Data: data}
		}
	}
	return &ImageSource{Type: "url", URL: ref}
}

// validateMessageSequence checks the Messages API ordering rules: the first
// message is from the user and roles alternate.
func validateMessageSequence(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("at least one non-system message is required")
	}
	if messages[0].Role != providers.RoleUser {
		return fmt.Errorf("first message must be from user")
	}
	for i := 1; i < len(messages); i++ {
		if messages[i-1].Role == messages[i].Role {
			return fmt.Errorf("messages must alternate between user and assistant, found consecutive %s messages at index %d", messages[i].Role, i)
		}
	}
	return nil
}

// transformResponse transforms an Anthropic response to provider-agnostic format.
func transformResponse(provider string, resp *MessagesResponse) *providers.Response {
	var content strings.Builder
	var toolCalls []providers.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, providers.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	return &providers.Response{
		ID:           resp.ID,
		Provider:     provider,
		Model:        resp.Model,
		Content:      content.String(),
		FinishReason: normalizeStopReason(resp.StopReason),
		ToolCalls:    toolCalls,
		Usage:        transformUsage(resp.Usage),
		Created:      time.Now(),
	}
}

func transformUsage(u Usage) providers.Usage {
	return providers.Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CachedTokens: u.CacheReadInputTokens,
	}
}

// normalizeStopReason normalizes Anthropic stop reasons to provider-agnostic values.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	case "refusal":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}
