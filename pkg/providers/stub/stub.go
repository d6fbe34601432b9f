// Package stub provides a deterministic offline adapter. It echoes the last
// user message, or returns a canned reply, without any network access.
//
// Provider options:
//
//	reply:   fixed reply text (default: echo of the last user message)
//	latency: simulated latency per call, as a Go duration
package stub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// Provider is the stub adapter.
type Provider struct {
	cfg     providers.ProviderConfig
	reply   string
	latency time.Duration
	seq     atomic.Int64
}

// New creates a stub adapter.
func New(cfg providers.ProviderConfig, _ ...providers.Option) (providers.Adapter, error) {
	if cfg.Name == "" {
		return nil, &providers.ConfigError{Provider: "stub", Field: "name", Message: "provider name is required"}
	}

	p := &Provider{cfg: cfg, reply: cfg.Options["reply"]}
	if v := cfg.Options["latency"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, &providers.ConfigError{Provider: cfg.Name, Field: "options.latency", Message: err.Error()}
		}
		p.latency = d
	}
	return p, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.cfg.Name }

// Type returns "stub".
func (p *Provider) Type() string { return "stub" }

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// Complete returns the reply after the configured latency.
func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	start := time.Now()
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	resp := p.response(req)
	resp.Latency = time.Since(start)
	return resp, nil
}

// CompleteStream streams the reply word by word.
func (p *Provider) CompleteStream(ctx context.Context, req *providers.Request) (providers.Stream, error) {
	start := time.Now()
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	resp := p.response(req)
	resp.Latency = time.Since(start)

	words := strings.SplitAfter(resp.Content, " ")
	return &stream{ctx: ctx, resp: resp, words: words}, nil
}

func (p *Provider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return providers.NewError(p.cfg.Name, providers.KindTimeout, "deadline exceeded", ctx.Err())
		}
		return ctx.Err()
	}
}

func (p *Provider) response(req *providers.Request) *providers.Response {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	content := p.reply
	if content == "" {
		content = "echo: " + lastUserMessage(req.Messages)
	}

	inputChars := 0
	for _, m := range req.Messages {
		inputChars += len(m.Content)
	}

	return &providers.Response{
		ID:           fmt.Sprintf("stub-%d", p.seq.Add(1)),
		Provider:     p.cfg.Name,
		Model:        model,
		Content:      content,
		FinishReason: providers.FinishReasonStop,
		Usage: providers.Usage{
			InputTokens:  tokens(inputChars),
			OutputTokens: tokens(len(content)),
		},
		Created: time.Now(),
	}
}

func lastUserMessage(msgs []providers.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// tokens approximates four characters per token, minimum one.
func tokens(chars int) int {
	if n := chars / 4; n > 0 {
		return n
	}
	return 1
}

type stream struct {
	ctx   context.Context
	resp  *providers.Response
	words []string
	next  int
}

func (s *stream) Recv() (*providers.Delta, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.words) {
		return nil, io.EOF
	}
	d := &providers.Delta{Content: s.words[s.next]}
	s.next++
	if s.next == len(s.words) {
		d.FinishReason = s.resp.FinishReason
	}
	return d, nil
}

func (s *stream) Response() *providers.Response { return s.resp }

func (s *stream) Close() error { return nil }
