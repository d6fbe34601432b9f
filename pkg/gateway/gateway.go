package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"kageforge-hq/forge/pkg/cache"
	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/limits/budget"
	"kageforge-hq/forge/pkg/limits/ledger"
	"kageforge-hq/forge/pkg/processing/costs"
	"kageforge-hq/forge/pkg/processing/tokens"
	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/routing"
)

// Cache-hit usage policies.
const (
	// HitUsageNone appends no usage record for cache hits.
	HitUsageNone = "none"

	// HitUsageAttribute appends a zero-cost record tagged with the serving
	// layer and the original provider and model.
	HitUsageAttribute = "attribute"
)

// Request-completed statuses.
const (
	StatusSuccess   = "success"
	StatusCacheHit  = "cache_hit"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Deps are the components a Gateway orchestrates. Cache may be nil to
// disable caching.
type Deps struct {
	Router    *routing.Router
	Cache     *cache.Engine
	Budget    *budget.Tracker
	Estimator tokens.Estimator
	Costs     *costs.Calculator
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithEmitter sets the emitter for request-started and request-completed.
func WithEmitter(em events.Emitter) Option {
	return func(g *Gateway) {
		if em != nil {
			g.emitter = em
		}
	}
}

// WithTracer sets the tracer for gateway spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// WithHitUsagePolicy selects whether cache hits are written to the ledger.
func WithHitUsagePolicy(policy string) Option {
	return func(g *Gateway) {
		if policy != "" {
			g.hitPolicy = policy
		}
	}
}

// Gateway is the request pipeline.
//
// Gateway is thread-safe for concurrent use.
type Gateway struct {
	router    *routing.Router
	cache     *cache.Engine
	budget    *budget.Tracker
	estimator tokens.Estimator
	costs     *costs.Calculator

	hitPolicy string
	emitter   events.Emitter
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a gateway. Router, Budget, Estimator and Costs are required.
func New(deps Deps, opts ...Option) (*Gateway, error) {
	switch {
	case deps.Router == nil:
		return nil, fmt.Errorf("gateway requires a router")
	case deps.Budget == nil:
		return nil, fmt.Errorf("gateway requires a budget tracker")
	case deps.Estimator == nil:
		return nil, fmt.Errorf("gateway requires a token estimator")
	case deps.Costs == nil:
		return nil, fmt.Errorf("gateway requires a cost calculator")
	}

	g := &Gateway{
		router:    deps.Router,
		cache:     deps.Cache,
		budget:    deps.Budget,
		estimator: deps.Estimator,
		costs:     deps.Costs,
		hitPolicy: HitUsageNone,
		emitter:   events.Nop{},
		tracer:    noop.NewTracerProvider().Tracer("kageforge/gateway"),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.hitPolicy != HitUsageNone && g.hitPolicy != HitUsageAttribute {
		return nil, fmt.Errorf("unknown cache hit usage policy %q", g.hitPolicy)
	}
	g.logger = g.logger.With("component", "gateway")
	return g, nil
}

// Result is the outcome of Complete.
type Result struct {
	Response *providers.Response

	// Route describes the dispatch; nil when the response came from the
	// cache or a shared in-flight call.
	Route *routing.Result

	// Estimate and EstimatedCost are the pre-dispatch estimates; nil for
	// cache hits.
	Estimate      *tokens.Estimate
	EstimatedCost *costs.CostEstimate
}

// Cached reports whether the response was served without a provider call
// for this request.
func (r *Result) Cached() bool {
	return r.Response != nil && r.Response.CacheLayer != ""
}

// Complete serves req from the cache or a routed provider call.
//
// Errors are returned unchanged from the budget tracker (a
// *budget.BudgetExceededError) or the router.
func (g *Gateway) Complete(ctx context.Context, req *providers.Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := g.now()

	ctx, span := g.tracer.Start(ctx, "gateway.complete", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("request.model", req.Model),
		attribute.String("request.user", req.UserID),
	))
	defer span.End()

	g.started(req)

	if g.cache != nil {
		if resp, ok := g.cache.Lookup(ctx, req); ok {
			g.cacheHit(ctx, req, resp, start, span)
			return &Result{Response: resp}, nil
		}
	}

	// The fetch may still be running when a cancelled Fill returns.
	var fetched atomic.Pointer[fetch]
	fetchFn := func(ctx context.Context) (*providers.Response, error) {
		f := g.fetch(ctx, req)
		fetched.Store(f)
		return f.resp, f.err
	}

	var (
		resp   *providers.Response
		shared bool
		err    error
	)
	if g.cache != nil {
		resp, shared, err = g.cache.Fill(ctx, req, fetchFn)
	} else {
		resp, err = fetchFn(ctx)
	}

	if err != nil {
		g.failed(req, err, fetched.Load(), start, span)
		return nil, err
	}
	if shared {
		g.cacheHit(ctx, req, resp, start, span)
		return &Result{Response: resp}, nil
	}

	res := &Result{Response: resp}
	if f := fetched.Load(); f != nil {
		res.Route = f.route
		res.Estimate = f.estimate
		res.EstimatedCost = f.estimatedCost
	}
	g.completed(req, resp, start, span)
	return res, nil
}

// fetch is the outcome of one budgeted, routed call.
type fetch struct {
	resp          *providers.Response
	route         *routing.Result
	estimate      *tokens.Estimate
	estimatedCost *costs.CostEstimate
	status        string
	err           error
}

// fetch reserves the estimated cost, routes req and settles the reservation.
func (g *Gateway) fetch(ctx context.Context, req *providers.Request) *fetch {
	f := &fetch{}

	res, err := g.reserve(ctx, req, f)
	if err != nil {
		f.status = StatusRejected
		f.err = err
		return f
	}

	route, err := g.router.Route(ctx, req)
	if err != nil {
		f.status = g.settleFailure(ctx, req, res, route, err)
		f.err = err
		return f
	}

	f.route = route
	f.resp = route.Response
	g.commit(ctx, req, res, route.Provider, route.Model, f.resp)
	f.status = StatusSuccess
	return f
}

// reserve estimates req and reserves the estimated cost. A rejection is
// recorded in the ledger.
func (g *Gateway) reserve(ctx context.Context, req *providers.Request, f *fetch) (*budget.Reservation, error) {
	model := g.router.ResolveModel(req)
	f.estimate = g.estimator.EstimateRequest(req)
	f.estimate.Model = model
	f.estimatedCost = g.costs.EstimateCost(model, f.estimate)

	res, err := g.budget.Reserve(ctx, req.UserID, f.estimatedCost.TotalCost)
	if err != nil {
		rec := &ledger.Record{
			RequestID:   req.ID,
			Model:       model,
			UserID:      req.UserID,
			InputTokens: f.estimate.PromptTokens,
			Error:       err.Error(),
		}
		g.budget.RecordRejected(context.WithoutCancel(ctx), rec)
		return nil, err
	}
	return res, nil
}

// commit prices resp, sets resp.Cost and commits the reservation.
func (g *Gateway) commit(ctx context.Context, req *providers.Request, res *budget.Reservation, provider, model string, resp *providers.Response) {
	if resp.Model == "" {
		resp.Model = model
	}
	if resp.Provider == "" {
		resp.Provider = provider
	}
	cost := g.costs.Cost(model, resp.Usage)
	resp.Cost = cost.TotalCost
	if !cost.Known {
		g.logger.Debug("model not in catalog, priced with defaults",
			"request_id", req.ID,
			"model", model,
		)
	}

	rec := &ledger.Record{
		RequestID:      req.ID,
		Provider:       provider,
		Model:          model,
		UserID:         req.UserID,
		InputTokens:    resp.Usage.InputTokens,
		OutputTokens:   resp.Usage.OutputTokens,
		CachedTokens:   resp.Usage.CachedTokens,
		ThinkingTokens: resp.Usage.ThinkingTokens,
		Cost:           resp.Cost,
		Status:         ledger.StatusSuccess,
	}
	res.Commit(context.WithoutCancel(ctx), rec)
}

// settleFailure releases the reservation with a failed or cancelled record
// and returns the request status.
func (g *Gateway) settleFailure(ctx context.Context, req *providers.Request, res *budget.Reservation, route *routing.Result, err error) string {
	status, recStatus := StatusFailed, ledger.StatusFailed
	if isCancellation(ctx, err) {
		status, recStatus = StatusCancelled, ledger.StatusCancelled
	}

	rec := &ledger.Record{
		RequestID: req.ID,
		Model:     req.Model,
		UserID:    req.UserID,
		Status:    recStatus,
		Error:     err.Error(),
	}
	if route != nil {
		rec.Provider, rec.Model = route.Provider, route.Model
	} else if a, ok := lastAttempt(err); ok {
		rec.Provider, rec.Model = a.Provider, a.Model
	}
	res.Release(context.WithoutCancel(ctx), rec)
	return status
}

// cacheHit applies the hit usage policy and emits request-completed.
func (g *Gateway) cacheHit(ctx context.Context, req *providers.Request, resp *providers.Response, start time.Time, span trace.Span) {
	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.String("cache.layer", resp.CacheLayer),
	)

	if g.hitPolicy == HitUsageAttribute {
		rec := &ledger.Record{
			RequestID:    req.ID,
			Provider:     resp.Provider,
			Model:        resp.Model,
			UserID:       req.UserID,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Status:       ledger.StatusSuccess,
			CacheLayer:   resp.CacheLayer,
		}
		g.budget.Record(context.WithoutCancel(ctx), rec)
	}

	g.logger.Debug("request served from cache",
		"request_id", req.ID,
		"layer", resp.CacheLayer,
		"similarity", resp.Similarity,
	)
	g.emitter.Emit(events.Event{
		Kind:      events.KindRequestCompleted,
		RequestID: req.ID,
		UserID:    req.UserID,
		Provider:  resp.Provider,
		Model:     resp.Model,
		Layer:     resp.CacheLayer,
		Status:    StatusCacheHit,
		Latency:   g.now().Sub(start),
	})
}

func (g *Gateway) started(req *providers.Request) {
	g.emitter.Emit(events.Event{
		Kind:      events.KindRequestStarted,
		RequestID: req.ID,
		UserID:    req.UserID,
		Model:     req.Model,
	})
}

func (g *Gateway) completed(req *providers.Request, resp *providers.Response, start time.Time, span trace.Span) {
	latency := g.now().Sub(start)
	span.SetAttributes(
		attribute.Bool("cache.hit", false),
		attribute.String("response.provider", resp.Provider),
		attribute.String("response.model", resp.Model),
		attribute.Int("usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("usage.output_tokens", resp.Usage.OutputTokens),
		attribute.Float64("usage.cost", resp.Cost),
	)

	g.logger.Info("request completed",
		"request_id", req.ID,
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"cost", resp.Cost,
		"latency_ms", latency.Milliseconds(),
	)
	g.emitter.Emit(events.Event{
		Kind:         events.KindRequestCompleted,
		RequestID:    req.ID,
		UserID:       req.UserID,
		Provider:     resp.Provider,
		Model:        resp.Model,
		Status:       StatusSuccess,
		Latency:      latency,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         resp.Cost,
	})
}

func (g *Gateway) failed(req *providers.Request, err error, f *fetch, start time.Time, span trace.Span) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	status := StatusFailed
	switch {
	case f != nil && f.status != "":
		status = f.status
	case errors.Is(err, budget.ErrBudgetExceeded):
		status = StatusRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = StatusCancelled
	}

	level := slog.LevelWarn
	if status == StatusCancelled {
		level = slog.LevelInfo
	}
	g.logger.Log(context.Background(), level, "request failed",
		"request_id", req.ID,
		"model", req.Model,
		"status", status,
		"error", err,
	)

	e := events.Event{
		Kind:      events.KindRequestCompleted,
		RequestID: req.ID,
		UserID:    req.UserID,
		Model:     req.Model,
		Status:    status,
		Latency:   g.now().Sub(start),
		ErrorKind: errorKind(err),
		Error:     err.Error(),
	}
	if a, ok := lastAttempt(err); ok {
		e.Provider = a.Provider
		e.Attempts = len(attempts(err))
	}
	g.emitter.Emit(e)
}

// Router returns the router.
func (g *Gateway) Router() *routing.Router { return g.router }

// Cache returns the cache engine, or nil when caching is disabled.
func (g *Gateway) Cache() *cache.Engine { return g.cache }

// Budget returns the budget tracker.
func (g *Gateway) Budget() *budget.Tracker { return g.budget }

// Estimator returns the token estimator.
func (g *Gateway) Estimator() tokens.Estimator { return g.estimator }

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// attempts extracts the attempt list from router errors.
func attempts(err error) []routing.Attempt {
	var failed *routing.AllProvidersFailedError
	if errors.As(err, &failed) {
		return failed.Attempts
	}
	var aborted *routing.AbortedError
	if errors.As(err, &aborted) {
		return aborted.Attempts
	}
	return nil
}

func lastAttempt(err error) (routing.Attempt, bool) {
	a := attempts(err)
	if len(a) == 0 {
		return routing.Attempt{}, false
	}
	return a[len(a)-1], true
}

// errorKind classifies err for events and metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, budget.ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, routing.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, routing.ErrNoCandidates):
		return "no_candidates"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, routing.ErrAllProvidersFailed):
		return "all_providers_failed"
	}
	var pe *providers.Error
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "unknown"
}
