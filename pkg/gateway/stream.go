package gateway

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kageforge-hq/forge/pkg/limits/budget"
	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/routing"
)

// CompleteStream is Complete for streaming callers. Cache hits are replayed
// as a single-delta stream. For routed streams the reservation is settled
// and the response cached when the stream ends; closing it early releases
// the reservation as cancelled. The returned stream must be closed.
func (g *Gateway) CompleteStream(ctx context.Context, req *providers.Request) (*Result, providers.Stream, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := g.now()

	ctx, span := g.tracer.Start(ctx, "gateway.complete_stream", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("request.model", req.Model),
		attribute.String("request.user", req.UserID),
	))

	g.started(req)

	if g.cache != nil {
		if resp, ok := g.cache.Lookup(ctx, req); ok {
			g.cacheHit(ctx, req, resp, start, span)
			span.End()
			return &Result{Response: resp}, providers.StreamFromResponse(resp), nil
		}
	}

	f := &fetch{}
	res, err := g.reserve(ctx, req, f)
	if err != nil {
		f.status = StatusRejected
		g.failed(req, err, f, start, span)
		span.End()
		return nil, nil, err
	}

	route, s, err := g.router.RouteStream(ctx, req)
	if err != nil {
		f.status = g.settleFailure(ctx, req, res, route, err)
		g.failed(req, err, f, start, span)
		span.End()
		return nil, nil, err
	}

	as := &accountedStream{
		gateway:     g,
		ctx:         ctx,
		req:         req,
		reservation: res,
		route:       route,
		inner:       s,
		start:       start,
		span:        span,
	}
	return &Result{Route: route, Estimate: f.estimate, EstimatedCost: f.estimatedCost}, as, nil
}

// accountedStream settles the budget reservation when the stream ends.
type accountedStream struct {
	gateway     *Gateway
	ctx         context.Context
	req         *providers.Request
	reservation *budget.Reservation
	route       *routing.Result
	inner       providers.Stream
	start       time.Time
	span        trace.Span

	once sync.Once
}

func (s *accountedStream) Recv() (*providers.Delta, error) {
	d, err := s.inner.Recv()
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, io.EOF):
		s.finish(nil)
	default:
		s.finish(err)
	}
	return d, err
}

func (s *accountedStream) Response() *providers.Response {
	return s.inner.Response()
}

func (s *accountedStream) Close() error {
	err := s.inner.Close()
	s.finish(context.Canceled)
	return err
}

func (s *accountedStream) finish(err error) {
	s.once.Do(func() {
		defer s.span.End()
		g := s.gateway

		if err != nil {
			status := g.settleFailure(s.ctx, s.req, s.reservation, s.route, err)
			g.failed(s.req, err, &fetch{status: status}, s.start, s.span)
			return
		}

		resp := s.inner.Response()
		g.commit(s.ctx, s.req, s.reservation, s.route.Provider, s.route.Model, resp)
		if g.cache != nil {
			g.cache.Store(context.WithoutCancel(s.ctx), s.req, resp)
		}
		g.completed(s.req, resp, s.start, s.span)
	})
}
