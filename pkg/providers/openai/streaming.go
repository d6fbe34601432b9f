package openai

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// stream reads Server-Sent Events from the Chat Completions API.
type stream struct {
	provider string
	start    time.Time
	body     io.ReadCloser
	reader   *providers.SSEReader
	builder  providers.ContentBuilder
	done     bool
	closed   bool
}

func newStream(provider, model string, start time.Time, body io.ReadCloser) *stream {
	return &stream{
		provider: provider,
		start:    start,
		body:     body,
		reader:   providers.NewSSEReader(body),
		builder: providers.ContentBuilder{Resp: &providers.Response{
			Provider: provider,
			Model:    model,
			Created:  time.Now(),
		}},
	}
}

// Recv returns the next content delta. Chunks without content (role headers,
// the trailing usage chunk) are folded into the response and skipped.
func (s *stream) Recv() (*providers.Delta, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		_, data, err := s.reader.Next()
		if errors.Is(err, io.EOF) || data == "[DONE]" {
			s.finish()
			return nil, io.EOF
		}
		if err != nil {
			return nil, providers.NewError(s.provider, providers.KindServerError, "failed to read stream", err)
		}

		var chunk ChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, providers.NewError(s.provider, providers.KindServerError, "malformed stream chunk", err)
		}

		resp := s.builder.Resp
		if chunk.ID != "" {
			resp.ID = chunk.ID
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.Usage != nil {
			resp.Usage = transformUsage(chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := &providers.Delta{
			Content:      choice.Delta.Content,
			FinishReason: normalizeFinishReason(choice.FinishReason),
		}
		if delta.Content == "" && delta.FinishReason == "" {
			continue
		}
		s.builder.Append(delta)
		return delta, nil
	}
}

func (s *stream) finish() {
	s.done = true
	s.builder.Finish().Latency = time.Since(s.start)
	s.Close()
}

// Response returns the assembled response.
func (s *stream) Response() *providers.Response {
	return s.builder.Resp
}

// Close closes the stream and releases resources.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
