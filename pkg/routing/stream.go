package routing

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/providers"
)

// openStream starts a stream on c and waits for its first delta, so that a
// provider failing before any output can still be failed over. On error the
// admission slot is released and the ticket is left to the caller.
func (r *Router) openStream(ctx context.Context, c Candidate, req *providers.Request, ticket *breaker.Ticket, release func(), start time.Time) (providers.Stream, error) {
	s, err := c.Provider.Adapter.CompleteStream(ctx, req)
	if err != nil {
		release()
		return nil, err
	}

	first, err := s.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		s.Close()
		release()
		return nil, err
	}

	return &routedStream{
		ctx:      ctx,
		inner:    s,
		first:    first,
		firstEOF: errors.Is(err, io.EOF),
		ticket:   ticket,
		release:  release,
		observe: func() {
			r.latency.Observe(c.Name(), time.Since(start))
		},
	}, nil
}

// routedStream replays the first delta and reports the call outcome to the
// breaker when the stream ends.
type routedStream struct {
	ctx      context.Context
	inner    providers.Stream
	first    *providers.Delta
	firstEOF bool
	ticket   *breaker.Ticket
	release  func()
	observe  func()

	once sync.Once
}

func (s *routedStream) Recv() (*providers.Delta, error) {
	if s.first != nil {
		d := s.first
		s.first = nil
		return d, nil
	}
	if s.firstEOF {
		s.finish(nil)
		return nil, io.EOF
	}

	d, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.finish(nil)
		} else {
			s.finish(err)
		}
		return nil, err
	}
	return d, nil
}

func (s *routedStream) Response() *providers.Response {
	return s.inner.Response()
}

func (s *routedStream) Close() error {
	err := s.inner.Close()
	s.once.Do(func() {
		s.ticket.Cancel()
		s.release()
	})
	return err
}

func (s *routedStream) finish(err error) {
	s.once.Do(func() {
		switch {
		case err == nil:
			s.ticket.Success()
			s.observe()
		case s.ctx.Err() != nil || errors.Is(err, context.Canceled):
			s.ticket.Cancel()
		case providers.KindOf(err) == providers.KindInvalidRequest:
			s.ticket.Cancel()
		default:
			s.ticket.Failure()
		}
		s.release()
	})
}
