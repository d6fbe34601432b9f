package openai

import (
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// OpenAI API request/response types

// ChatRequest represents an OpenAI chat completion request.
type ChatRequest struct {
	Model           string         `json:"model"`
	Messages        []ChatMessage  `json:"messages"`
	Temperature     *float64       `json:"temperature,omitempty"`
	MaxTokens       int            `json:"max_completion_tokens,omitempty"`
	TopP            *float64       `json:"top_p,omitempty"`
	Stream          bool           `json:"stream,omitempty"`
	StreamOptions   *StreamOptions `json:"stream_options,omitempty"`
	Tools           []ChatTool     `json:"tools,omitempty"`
	Stop            []string       `json:"stop,omitempty"`
	User            string         `json:"user,omitempty"`
	ReasoningEffort string         `json:"reasoning_effort,omitempty"`
}

// StreamOptions asks the API to append a usage chunk to the stream.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatMessage represents a message in OpenAI format. Content is a string, or
// a list of parts when images are attached.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    interface{}    `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
}

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// ChatToolCall represents a tool call in OpenAI format.
type ChatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ChatFunctionCall `json:"function"`
}

// ChatFunctionCall represents a function call in OpenAI format.
type ChatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatTool represents a tool definition in OpenAI format.
type ChatTool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition represents a function definition in OpenAI format.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ChatResponse represents an OpenAI chat completion response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// ChatChoice represents a completion choice in OpenAI format.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	Delta        ChatDelta   `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

// ChatDelta represents the incremental content in a stream chunk.
type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatUsage represents token usage in OpenAI format.
type ChatUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

// transformRequest transforms a provider-agnostic request to OpenAI format.
func transformRequest(req *providers.Request, model, reasoningEffort string, stream bool) *ChatRequest {
	out := &ChatRequest{
		Model:       model,
		Messages:    make([]ChatMessage, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		User:        req.UserID,
		Stream:      stream,
	}
	if stream {
		out.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	if req.Thinking {
		out.ReasoningEffort = reasoningEffort
	}

	for i, msg := range req.Messages {
		m := ChatMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		if len(msg.Images) > 0 {
			parts := make([]ContentPart, 0, len(msg.Images)+1)
			if msg.Content != "" {
				parts = append(parts, ContentPart{Type: "text", Text: msg.Content})
			}
			for _, img := range msg.Images {
				parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: img}})
			}
			m.Content = parts
		}
		out.Messages[i] = m
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]ChatTool, len(req.Tools))
		for i, tool := range req.Tools {
			out.Tools[i] = ChatTool{
				Type: "function",
				Function: FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			}
		}
	}

	return out
}

// transformResponse transforms an OpenAI response to provider-agnostic format.
func transformResponse(provider string, resp *ChatResponse) (*providers.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, providers.NewError(provider, providers.KindServerError, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	content, _ := choice.Message.Content.(string)

	result := &providers.Response{
		ID:           resp.ID,
		Provider:     provider,
		Model:        resp.Model,
		Content:      content,
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage:        transformUsage(resp.Usage),
		Created:      unixOrNow(resp.Created),
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, providers.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return result, nil
}

// transformUsage splits OpenAI's inclusive counters into the gateway's
// disjoint input/cached and output/thinking buckets.
func transformUsage(u *ChatUsage) providers.Usage {
	if u == nil {
		return providers.Usage{}
	}
	cached := u.PromptTokensDetails.CachedTokens
	reasoning := u.CompletionTokensDetails.ReasoningTokens
	return providers.Usage{
		InputTokens:    u.PromptTokens - cached,
		OutputTokens:   u.CompletionTokens - reasoning,
		CachedTokens:   cached,
		ThinkingTokens: reasoning,
	}
}

// normalizeFinishReason normalizes OpenAI finish reasons to provider-agnostic values.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "stop":
		return providers.FinishReasonStop
	case "length":
		return providers.FinishReasonLength
	case "tool_calls", "function_call":
		return providers.FinishReasonToolCalls
	case "content_filter":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}

func unixOrNow(sec int64) time.Time {
	if sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0)
}
