package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockServer is a mock vendor API for testing provider adapters.
// It serves canned JSON bodies, error statuses and SSE streams per path and
// records every request body it receives.
type MockServer struct {
	server    *httptest.Server
	responses map[string]MockResponse
	bodies    []map[string]interface{}
	headers   []http.Header
	mu        sync.Mutex
}

// MockResponse defines a mock response configuration.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Delay      time.Duration
	Headers    map[string]string

	// StreamData is written as "data: <chunk>" events followed by [DONE].
	StreamData []string

	// StreamRaw is written verbatim, one element per SSE event.
	StreamRaw []string
}

// NewMockServer creates a new mock server.
func NewMockServer() *MockServer {
	ms := &MockServer{responses: make(map[string]MockResponse)}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close closes the mock server.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// SetResponse sets a mock response for a specific path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = response
}

// RequestCount returns the number of requests received.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.bodies)
}

// LastRequest returns the decoded body and headers of the latest request.
func (ms *MockServer) LastRequest() (map[string]interface{}, http.Header) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.bodies) == 0 {
		return nil, nil
	}
	return ms.bodies[len(ms.bodies)-1], ms.headers[len(ms.headers)-1]
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)

	ms.mu.Lock()
	ms.bodies = append(ms.bodies, body)
	ms.headers = append(ms.headers, r.Header.Clone())
	response, ok := ms.responses[r.URL.Path]
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	if len(response.StreamData) > 0 || len(response.StreamRaw) > 0 {
		ms.handleStream(w, response)
		return
	}

	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch v := response.Body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(v))
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (ms *MockServer) handleStream(w http.ResponseWriter, response MockResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for _, event := range response.StreamRaw {
		fmt.Fprintf(w, "%s\n\n", event)
		flush()
	}

	if len(response.StreamData) > 0 {
		for _, chunk := range response.StreamData {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flush()
	}
}

// OpenAIResponse creates a Chat Completions response body.
func OpenAIResponse(content, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]interface{}{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":             10,
			"completion_tokens":         20,
			"total_tokens":              30,
			"prompt_tokens_details":     map[string]interface{}{"cached_tokens": 4},
			"completion_tokens_details": map[string]interface{}{"reasoning_tokens": 5},
		},
	}
}

// OpenAIStreamChunk creates a Chat Completions stream chunk.
func OpenAIStreamChunk(delta, finishReason string) string {
	choice := map[string]interface{}{
		"index": 0,
		"delta": map[string]interface{}{"content": delta},
	}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	}
	data, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o-mini",
		"choices": []interface{}{choice},
	})
	return string(data)
}

// OpenAIUsageChunk creates the trailing usage-only stream chunk.
func OpenAIUsageChunk(prompt, completion int) string {
	data, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"choices": []interface{}{},
		"usage": map[string]interface{}{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	})
	return string(data)
}

// AnthropicResponse creates a Messages API response body.
func AnthropicResponse(content, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":          "msg_123",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]interface{}{{"type": "text", "text": content}},
		"model":       model,
		"stop_reason": "end_turn",
		"usage": map[string]interface{}{
			"input_tokens":            10,
			"output_tokens":           20,
			"cache_read_input_tokens": 3,
		},
	}
}

// AnthropicEvent formats one Messages API stream event.
func AnthropicEvent(eventType string, data interface{}) string {
	payload, _ := json.Marshal(data)
	return fmt.Sprintf("event: %s\ndata: %s", eventType, payload)
}

// AnthropicStream returns a complete Messages API stream for the given text
// deltas.
func AnthropicStream(model string, deltas ...string) []string {
	events := []string{
		AnthropicEvent("message_start", map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id": "msg_123", "model": model, "role": "assistant",
				"usage": map[string]interface{}{"input_tokens": 12, "output_tokens": 1},
			},
		}),
		AnthropicEvent("content_block_start", map[string]interface{}{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]interface{}{"type": "text", "text": ""},
		}),
	}
	for _, d := range deltas {
		events = append(events, AnthropicEvent("content_block_delta", map[string]interface{}{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]interface{}{"type": "text_delta", "text": d},
		}))
	}
	events = append(events,
		AnthropicEvent("content_block_stop", map[string]interface{}{"type": "content_block_stop", "index": 0}),
		AnthropicEvent("message_delta", map[string]interface{}{
			"type":  "message_delta",
			"delta": map[string]interface{}{"stop_reason": "end_turn"},
			"usage": map[string]interface{}{"output_tokens": 7},
		}),
		AnthropicEvent("message_stop", map[string]interface{}{"type": "message_stop"}),
	)
	return events
}

// ErrorResponse creates a vendor-style error response.
func ErrorResponse(statusCode int, message string) MockResponse {
	return MockResponse{
		StatusCode: statusCode,
		Body: map[string]interface{}{
			"error": map[string]interface{}{"message": message, "type": "error"},
		},
	}
}

// RateLimitResponse creates a 429 response with a Retry-After header.
func RateLimitResponse(retryAfter int) MockResponse {
	response := ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	response.Headers = map[string]string{"Retry-After": fmt.Sprintf("%d", retryAfter)}
	return response
}
