package anthropic

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// stream reads Server-Sent Events from the Messages API.
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

// Recv returns the next text delta. Bookkeeping events update the response
// and are skipped.
func (s *stream) Recv() (*providers.Delta, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		eventType, data, err := s.reader.Next()
		if errors.Is(err, io.EOF) {
			s.finish()
			return nil, io.EOF
		}
		if err != nil {
			return nil, providers.NewError(s.provider, providers.KindServerError, "failed to read stream", err)
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil, providers.NewError(s.provider, providers.KindServerError, "malformed stream event", err)
		}
		if event.Type == "" {
			event.Type = eventType
		}

		resp := s.builder.Resp
		switch event.Type {
		case "message_start":
			if event.Message != nil {
				resp.ID = event.Message.ID
				if event.Message.Model != "" {
					resp.Model = event.Message.Model
				}
				resp.Usage = transformUsage(event.Message.Usage)
			}

		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				delta := &providers.Delta{Content: event.Delta.Text}
				s.builder.Append(delta)
				return delta, nil
			}

		case "message_delta":
			if event.Usage != nil {
				resp.Usage.OutputTokens = event.Usage.OutputTokens
			}
			if event.Delta != nil && event.Delta.StopReason != "" {
				delta := &providers.Delta{FinishReason: normalizeStopReason(event.Delta.StopReason)}
				s.builder.Append(delta)
				return delta, nil
			}

		case "message_stop":
			s.finish()
			return nil, io.EOF

		case "error":
			msg := "stream error"
			if event.Error != nil {
				msg = event.Error.Type + ": " + event.Error.Message
			}
			return nil, providers.NewError(s.provider, providers.KindServerError, msg, nil)
		}
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
