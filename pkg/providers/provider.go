package providers

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Adapter is the capability every provider variant implements.
// It normalizes requests and responses so the router never branches on
// vendor identity.
//
// Implementations must respect context cancellation: a cancelled call returns
// context.Canceled unwrapped so callers can exclude it from failure accounting.
// Every other failure is an *Error.
//
// Example usage:
//
//	resp, err := adapter.Complete(ctx, &providers.Request{
//	    Model:    "gpt-4o-mini",
//	    Messages: []providers.Message{{Role: "user", Content: "Hello!"}},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.Content)
type Adapter interface {
	// Complete sends a completion request and returns the normalized response.
	// Retryable failures are retried within the provider's retry budget.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// CompleteStream opens a streaming completion. Errors establishing the
	// stream are returned directly; errors mid-stream surface from Recv.
	CompleteStream(ctx context.Context, req *Request) (Stream, error)

	// Name returns the configured provider name.
	Name() string

	// Type returns the adapter type (openai, anthropic, generic, stub).
	Type() string

	// Close releases pooled connections.
	Close() error
}

// Stream yields incremental deltas of a completion.
type Stream interface {
	// Recv returns the next delta, or io.EOF after the final delta.
	Recv() (*Delta, error)

	// Response returns the assembled response. It is complete after Recv
	// has returned io.EOF.
	Response() *Response

	// Close releases the underlying connection. It is safe to call twice.
	Close() error
}

// Collect drains a stream into its final response.
func Collect(s Stream) (*Response, error) {
	defer s.Close()
	for {
		_, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return s.Response(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// StreamFromResponse wraps an already complete response as a single-delta
// stream. Cached responses are replayed to streaming callers this way.
func StreamFromResponse(resp *Response) Stream {
	return &replayStream{resp: resp}
}

type replayStream struct {
	resp *Response
	done bool
}

func (s *replayStream) Recv() (*Delta, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return &Delta{Content: s.resp.Content, FinishReason: s.resp.FinishReason}, nil
}

func (s *replayStream) Response() *Response { return s.resp }

func (s *replayStream) Close() error { return nil }

// ContentBuilder accumulates streamed deltas into a Response. Vendor streams
// embed it.
type ContentBuilder struct {
	Resp *Response
	sb   strings.Builder
}

// Append adds a delta's content and finish reason.
func (b *ContentBuilder) Append(d *Delta) {
	b.sb.WriteString(d.Content)
	if d.FinishReason != "" {
		b.Resp.FinishReason = d.FinishReason
	}
}

// Finish writes the accumulated content into the response.
func (b *ContentBuilder) Finish() *Response {
	b.Resp.Content = b.sb.String()
	return b.Resp
}
