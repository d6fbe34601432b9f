package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"kageforge-hq/forge/pkg/admission"
	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/providers"
)

// DefaultMaxFailoverAttempts bounds how many providers are called per request.
const DefaultMaxFailoverAttempts = 3

// Strategy orders candidates for dispatch. It is defined here to avoid
// import cycles with the strategies package.
//
// Implementations must be thread-safe and must keep declaration order among
// equally ranked candidates.
type Strategy interface {
	Order(sel *Selection, candidates []Candidate) []Candidate
	Name() string
	Reset()
}

// Estimator returns the estimated input and output tokens of a request.
type Estimator func(req *providers.Request) (input, output int)

// Config contains router configuration.
type Config struct {
	// MaxFailoverAttempts bounds the number of adapter calls per request.
	MaxFailoverAttempts int

	// Breaker is applied to every provider.
	Breaker breaker.Config

	// Admission is applied to every provider; Provider.MaxConcurrent
	// overrides its MaxConcurrent.
	Admission admission.Config
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(em events.Emitter) Option {
	return func(r *Router) {
		if em != nil {
			r.emitter = em
		}
	}
}

// WithTracer sets the tracer used for routing spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Router) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithLatencyTracker shares a latency tracker with the performance strategy.
func WithLatencyTracker(t *LatencyTracker) Option {
	return func(r *Router) {
		if t != nil {
			r.latency = t
		}
	}
}

// WithEstimator sets the token estimator used for cost ordering.
func WithEstimator(est Estimator) Option {
	return func(r *Router) {
		if est != nil {
			r.estimate = est
		}
	}
}

// WithBreakerOptions passes options to every breaker, such as a test clock.
func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(r *Router) {
		r.breakerOpts = append(r.breakerOpts, opts...)
	}
}

// Router selects providers for requests and dispatches them with failover.
//
// For every request it builds the candidate list, drops candidates whose
// breaker is open, orders the rest with the configured strategy and calls
// them in turn until one succeeds, a non-retryable failure occurs, the
// caller cancels, or the failover budget is spent.
//
// Router is thread-safe for concurrent use.
type Router struct {
	selector  *ProviderSelector
	strategy  Strategy
	breakers  *breaker.Registry
	admission *admission.Registry
	latency   *LatencyTracker
	stats     *AtomicRoutingStats

	maxAttempts int
	estimate    Estimator
	emitter     events.Emitter
	tracer      trace.Tracer
	logger      *slog.Logger

	breakerOpts []breaker.Option
}

// NewRouter creates a router over provs, which must be enabled providers in
// declaration order.
func NewRouter(cfg Config, provs []Provider, catalog *providers.Catalog, strategy Strategy, opts ...Option) (*Router, error) {
	if strategy == nil {
		return nil, fmt.Errorf("routing strategy cannot be nil")
	}
	if len(provs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	r := &Router{
		strategy:    strategy,
		latency:     NewLatencyTracker(DefaultLatencyAlpha),
		stats:       NewAtomicRoutingStats(),
		maxAttempts: cfg.MaxFailoverAttempts,
		estimate:    func(*providers.Request) (int, int) { return 1, 1 },
		emitter:     events.Nop{},
		tracer:      noop.NewTracerProvider().Tracer("kageforge/routing"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = DefaultMaxFailoverAttempts
	}
	r.logger = r.logger.With("component", "router")

	breakerOpts := append([]breaker.Option{breaker.WithObserver(r.onTransition)}, r.breakerOpts...)
	r.breakers = breaker.NewRegistry(cfg.Breaker, breakerOpts...)
	r.admission = admission.NewRegistry()

	for _, p := range provs {
		if _, err := r.breakers.Add(p.Name()); err != nil {
			return nil, fmt.Errorf("duplicate provider %q", p.Name())
		}
		ac := cfg.Admission
		if p.MaxConcurrent > 0 {
			ac.MaxConcurrent = p.MaxConcurrent
		}
		if _, err := r.admission.Add(p.Name(), ac); err != nil {
			return nil, err
		}
	}
	r.selector = NewProviderSelector(provs, catalog, r.logger)

	return r, nil
}

// Route selects providers for req and returns the first successful response.
//
// Errors:
//   - *NoCandidatesError: no provider serves the model and capabilities
//   - *CircuitOpenError: every candidate's breaker is open; no adapter called
//   - *AbortedError: non-retryable failure or cancellation
//   - *AllProvidersFailedError: every attempt failed
func (r *Router) Route(ctx context.Context, req *providers.Request) (*Result, error) {
	res, _, err := r.dispatch(ctx, req, false)
	return res, err
}

// RouteStream is Route for streaming calls. Failover happens only until the
// first delta is received; after that, errors surface through the stream.
// The returned stream must be closed.
func (r *Router) RouteStream(ctx context.Context, req *providers.Request) (*Result, providers.Stream, error) {
	return r.dispatch(ctx, req, true)
}

func (r *Router) dispatch(ctx context.Context, req *providers.Request, stream bool) (*Result, providers.Stream, error) {
	r.stats.IncrementTotal()
	r.stats.IncrementStrategy(r.strategy.Name())

	ctx, span := r.tracer.Start(ctx, "router.route", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("request.model", req.Model),
		attribute.Bool("request.stream", stream),
		attribute.String("routing.strategy", r.strategy.Name()),
	))
	defer span.End()

	ordered, err := r.plan(ctx, req)
	if err != nil {
		r.stats.IncrementErrors()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	names := candidateNames(ordered)
	span.SetAttributes(attribute.StringSlice("routing.candidates", names))

	var attempts []Attempt
	var lastErr error
	calls := 0

	for _, c := range ordered {
		if calls >= r.maxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, r.abort(span, attempts, err)
		}

		model := c.Model.Name
		ticket, err := r.breaker(c).Allow()
		if err != nil {
			attempts = append(attempts, Attempt{Provider: c.Name(), Model: model, Kind: AttemptCircuitOpen, Message: err.Error(), Skipped: true})
			lastErr = err
			continue
		}

		release, err := r.controller(c).Acquire(ctx)
		if err != nil {
			ticket.Cancel()
			if ctx.Err() != nil {
				return nil, nil, r.abort(span, attempts, ctx.Err())
			}
			r.stats.IncrementBackpressure()
			attempts = append(attempts, Attempt{Provider: c.Name(), Model: model, Kind: AttemptBackpressure, Message: err.Error(), Skipped: true})
			lastErr = err
			continue
		}

		calls++
		creq := req.WithModel(model)
		start := time.Now()

		var (
			resp *providers.Response
			s    providers.Stream
		)
		if stream {
			s, err = r.openStream(ctx, c, creq, ticket, release, start)
		} else {
			resp, err = c.Provider.Adapter.Complete(ctx, creq)
			release()
		}
		elapsed := time.Since(start)

		if err == nil {
			if !stream {
				ticket.Success()
				r.latency.Observe(c.Name(), elapsed)
			}
			r.stats.IncrementProvider(c.Name())
			span.SetAttributes(
				attribute.String("routing.provider", c.Name()),
				attribute.String("routing.model", model),
				attribute.Int("routing.attempts", calls),
			)
			return &Result{
				Response:   resp,
				Provider:   c.Name(),
				Model:      model,
				Strategy:   r.strategy.Name(),
				Candidates: names,
				Attempts:   attempts,
			}, s, nil
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			ticket.Cancel()
			attempts = append(attempts, Attempt{Provider: c.Name(), Model: model, Kind: AttemptCancelled, Latency: elapsed})
			cause := ctx.Err()
			if cause == nil {
				cause = context.Canceled
			}
			return nil, nil, r.abort(span, attempts, cause)
		}

		attempt := attemptFor(c.Name(), model, err, elapsed)
		attempts = append(attempts, attempt)
		lastErr = err
		r.stats.IncrementProviderFailure(c.Name())
		r.emitter.Emit(events.Event{
			Kind:      events.KindProviderFailed,
			RequestID: req.ID,
			Provider:  c.Name(),
			Model:     model,
			ErrorKind: attempt.Kind,
			Error:     attempt.Message,
			Latency:   elapsed,
		})

		if !providers.IsRetryable(err) {
			if providers.KindOf(err) == providers.KindInvalidRequest {
				ticket.Cancel()
			} else {
				ticket.Failure()
			}
			r.logger.Warn("provider failed with non-retryable error",
				"request_id", req.ID,
				"provider", c.Name(),
				"model", model,
				"kind", attempt.Kind,
				"error", err,
			)
			return nil, nil, r.abort(span, attempts, err)
		}

		ticket.Failure()
		r.stats.IncrementFailover()
		r.logger.Warn("provider failed, failing over",
			"request_id", req.ID,
			"provider", c.Name(),
			"model", model,
			"kind", attempt.Kind,
			"error", err,
		)
	}

	if calls == 0 && allCircuitOpen(attempts) {
		// Every breaker was ready during planning but lost its half-open slot
		// before Allow, so no provider was called.
		r.stats.IncrementCircuitOpen()
		open := &CircuitOpenError{Breakers: r.snapshots(ordered)}
		r.logger.Warn("all candidate breakers open", "request_id", req.ID, "error", open)
		span.RecordError(open)
		span.SetStatus(codes.Error, "all breakers open")
		return nil, nil, open
	}

	r.stats.IncrementErrors()
	failed := &AllProvidersFailedError{
		Model:     req.Model,
		Attempts:  attempts,
		Breakers:  r.snapshots(ordered),
		LastError: lastErr,
	}
	span.RecordError(failed)
	span.SetStatus(codes.Error, "all providers failed")
	return nil, nil, failed
}

// plan builds, filters and orders the candidate list, and emits the
// routing decision.
func (r *Router) plan(ctx context.Context, req *providers.Request) ([]Candidate, error) {
	candidates, err := r.selector.Candidates(req)
	if err != nil {
		return nil, err
	}

	candidates, err = r.selector.FilterByBreaker(candidates, r.breakers)
	if err != nil {
		r.stats.IncrementCircuitOpen()
		r.logger.Warn("all candidate breakers open", "request_id", req.ID, "error", err)
		return nil, err
	}

	in, out := r.estimate(req)
	ordered := r.strategy.Order(&Selection{Request: req, InputTokens: in, OutputTokens: out}, candidates)

	names := candidateNames(ordered)
	r.emitter.Emit(events.Event{
		Kind:       events.KindRoutingDecision,
		RequestID:  req.ID,
		UserID:     req.UserID,
		Model:      req.Model,
		Candidates: names,
		Strategy:   r.strategy.Name(),
	})
	r.logger.Debug("routing decision",
		"request_id", req.ID,
		"strategy", r.strategy.Name(),
		"candidates", names,
	)
	return ordered, nil
}

func allCircuitOpen(attempts []Attempt) bool {
	if len(attempts) == 0 {
		return false
	}
	for _, a := range attempts {
		if a.Kind != AttemptCircuitOpen {
			return false
		}
	}
	return true
}

func (r *Router) abort(span trace.Span, attempts []Attempt, err error) error {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		r.stats.IncrementErrors()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &AbortedError{Attempts: attempts, Err: err}
}

func (r *Router) breaker(c Candidate) *breaker.Breaker {
	b, _ := r.breakers.Get(c.Name())
	return b
}

func (r *Router) controller(c Candidate) *admission.Controller {
	a, _ := r.admission.Get(c.Name())
	return a
}

func (r *Router) snapshots(candidates []Candidate) []breaker.Snapshot {
	out := make([]breaker.Snapshot, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, r.breaker(c).Snapshot())
	}
	return out
}

// onTransition forwards breaker transitions to the event surface.
func (r *Router) onTransition(t breaker.Transition) {
	var kind events.Kind
	switch t.To {
	case breaker.StateOpen:
		kind = events.KindBreakerOpened
		r.logger.Warn("circuit breaker opened", "provider", t.Provider, "failures", t.Failures)
	case breaker.StateHalfOpen:
		kind = events.KindBreakerHalfOpen
		r.logger.Info("circuit breaker half-open", "provider", t.Provider)
	case breaker.StateClosed:
		kind = events.KindBreakerClosed
		r.logger.Info("circuit breaker closed", "provider", t.Provider)
	default:
		return
	}
	r.emitter.Emit(events.Event{Kind: kind, Time: t.At, Provider: t.Provider, Attempts: t.Failures})
}

func attemptFor(provider, model string, err error, elapsed time.Duration) Attempt {
	a := Attempt{Provider: provider, Model: model, Kind: AttemptUnknown, Message: err.Error(), Latency: elapsed}
	var pe *providers.Error
	if errors.As(err, &pe) {
		a.Kind = string(pe.Kind)
		a.StatusCode = pe.StatusCode
		a.Message = pe.Message
		if a.Message == "" && pe.Cause != nil {
			a.Message = pe.Cause.Error()
		}
	}
	return a
}

// Strategy returns the name of the configured routing strategy.
func (r *Router) Strategy() string {
	return r.strategy.Name()
}

// Stats returns current routing statistics.
func (r *Router) Stats() *RoutingStats {
	return r.stats.Snapshot()
}

// Breakers returns the breaker registry.
func (r *Router) Breakers() *breaker.Registry {
	return r.breakers
}

// Admission returns the admission registry.
func (r *Router) Admission() *admission.Registry {
	return r.admission
}

// Latency returns the latency tracker.
func (r *Router) Latency() *LatencyTracker {
	return r.latency
}

// Catalog returns the model catalog.
func (r *Router) Catalog() *providers.Catalog {
	return r.selector.Catalog()
}

// Status returns every provider's breaker, admission and latency state in
// declaration order.
func (r *Router) Status() []ProviderStatus {
	provs := r.selector.Providers()
	out := make([]ProviderStatus, 0, len(provs))
	for _, p := range provs {
		st := ProviderStatus{
			Name:   p.Name(),
			Type:   p.Adapter.Type(),
			Models: p.Models,
		}
		if b, ok := r.breakers.Get(p.Name()); ok {
			st.Breaker = b.Snapshot()
		}
		if a, ok := r.admission.Get(p.Name()); ok {
			st.InFlight = a.InFlight()
			st.Queued = a.Queued()
		}
		st.Latency, _ = r.latency.Average(p.Name())
		out = append(out, st)
	}
	return out
}

// ResolveModel returns the model req would be dispatched with on its first
// candidate in declaration order: req.Model when set, otherwise that
// provider's default model. It returns "" when no provider can serve req.
func (r *Router) ResolveModel(req *providers.Request) string {
	if req.Model != "" {
		return req.Model
	}
	candidates, err := r.selector.Candidates(req)
	if err != nil || len(candidates) == 0 {
		return ""
	}
	return candidates[0].Model.Name
}
