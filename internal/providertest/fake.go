// Package providertest provides a scriptable in-memory adapter for router,
// gateway and server tests.
package providertest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// Step is one scripted call outcome.
type Step struct {
	// Content is the reply when Err is nil.
	Content string

	// Usage is the reported token usage.
	Usage providers.Usage

	// Err is returned instead of a response.
	Err error

	// Delay is waited before answering; the call context can cancel it.
	Delay time.Duration

	// StreamErr is returned by the stream after its deltas.
	StreamErr error
}

// Adapter is a fake providers.Adapter. Calls consume scripted steps in
// order and fall back to the default step once the script is empty.
type Adapter struct {
	name string
	typ  string

	mu       sync.Mutex
	script   []Step
	fallback Step
	requests []*providers.Request

	calls  atomic.Int64
	closed atomic.Bool
}

// New creates an adapter that replies "ok from <name>".
func New(name string) *Adapter {
	return &Adapter{
		name:     name,
		typ:      "fake",
		fallback: Step{Content: "ok from " + name, Usage: providers.Usage{InputTokens: 10, OutputTokens: 5}},
	}
}

// Reply sets the default reply.
func (a *Adapter) Reply(content string) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback.Content = content
	a.fallback.Err = nil
	return a
}

// WithUsage sets the default usage.
func (a *Adapter) WithUsage(u providers.Usage) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback.Usage = u
	return a
}

// FailWith makes every unscripted call fail with err.
func (a *Adapter) FailWith(err error) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback.Err = err
	return a
}

// WithDelay delays every unscripted call.
func (a *Adapter) WithDelay(d time.Duration) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback.Delay = d
	return a
}

// Then queues scripted steps.
func (a *Adapter) Then(steps ...Step) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = append(a.script, steps...)
	return a
}

// Calls returns the number of Complete and CompleteStream calls.
func (a *Adapter) Calls() int {
	return int(a.calls.Load())
}

// Requests returns every request received.
func (a *Adapter) Requests() []*providers.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*providers.Request(nil), a.requests...)
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	return a.closed.Load()
}

// Name returns the adapter name.
func (a *Adapter) Name() string { return a.name }

// Type returns "fake".
func (a *Adapter) Type() string { return a.typ }

// Close marks the adapter closed.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	return nil
}

// Complete plays the next step.
func (a *Adapter) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	step := a.next(req)
	if err := wait(ctx, step.Delay); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return a.response(req, step), nil
}

// CompleteStream plays the next step as a word-by-word stream.
func (a *Adapter) CompleteStream(ctx context.Context, req *providers.Request) (providers.Stream, error) {
	step := a.next(req)
	if err := wait(ctx, step.Delay); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	resp := a.response(req, step)
	return &stream{ctx: ctx, resp: resp, words: strings.SplitAfter(resp.Content, " "), err: step.StreamErr}, nil
}

func (a *Adapter) next(req *providers.Request) Step {
	a.calls.Add(1)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, req)
	if len(a.script) > 0 {
		s := a.script[0]
		a.script = a.script[1:]
		return s
	}
	return a.fallback
}

func (a *Adapter) response(req *providers.Request, step Step) *providers.Response {
	return &providers.Response{
		ID:           fmt.Sprintf("%s-%d", a.name, a.calls.Load()),
		Provider:     a.name,
		Model:        req.Model,
		Content:      step.Content,
		FinishReason: providers.FinishReasonStop,
		Usage:        step.Usage,
		Created:      time.Now(),
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type stream struct {
	ctx   context.Context
	resp  *providers.Response
	words []string
	next  int
	err   error
}

func (s *stream) Recv() (*providers.Delta, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.words) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	d := &providers.Delta{Content: s.words[s.next]}
	s.next++
	if s.next == len(s.words) && s.err == nil {
		d.FinishReason = s.resp.FinishReason
	}
	return d, nil
}

func (s *stream) Response() *providers.Response { return s.resp }

func (s *stream) Close() error { return nil }

// ServerError returns a retryable server_error for provider.
func ServerError(provider string) error {
	e := providers.NewError(provider, providers.KindServerError, "upstream unavailable", nil)
	e.StatusCode = 503
	return e
}

// Timeout returns a retryable timeout for provider.
func Timeout(provider string) error {
	return providers.NewError(provider, providers.KindTimeout, "request timeout", nil)
}

// RateLimited returns a retryable rate_limited error for provider.
func RateLimited(provider string) error {
	e := providers.NewError(provider, providers.KindRateLimited, "slow down", nil)
	e.StatusCode = 429
	return e
}

// AuthError returns a non-retryable auth error for provider.
func AuthError(provider string) error {
	e := providers.NewError(provider, providers.KindAuth, "invalid api key", nil)
	e.StatusCode = 401
	return e
}

// InvalidRequest returns a non-retryable invalid_request error for provider.
func InvalidRequest(provider string) error {
	e := providers.NewError(provider, providers.KindInvalidRequest, "bad request", nil)
	e.StatusCode = 400
	return e
}

// Request builds a single user message request.
func Request(model, content string) *providers.Request {
	return &providers.Request{
		ID:       "req-test",
		Model:    model,
		Messages: []providers.Message{{Role: providers.RoleUser, Content: content}},
	}
}
