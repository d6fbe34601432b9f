package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kageforge-hq/forge/pkg/admission"
	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/cache"
	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/gateway"
	"kageforge-hq/forge/pkg/limits/budget"
	"kageforge-hq/forge/pkg/limits/ledger"
	"kageforge-hq/forge/pkg/notify"
	"kageforge-hq/forge/pkg/processing/costs"
	"kageforge-hq/forge/pkg/processing/tokens"
	"kageforge-hq/forge/pkg/providerfactory"
	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/routing"
	"kageforge-hq/forge/pkg/routing/strategies"
	"kageforge-hq/forge/pkg/telemetry/logging"
	"kageforge-hq/forge/pkg/telemetry/metrics"
	"kageforge-hq/forge/pkg/telemetry/tracing"
)

// gatewayRuntime holds every component built from one configuration.
type gatewayRuntime struct {
	cfg    *config.Config
	logger *slog.Logger

	dispatcher *events.Dispatcher
	manager    *providerfactory.Manager
	router     *routing.Router
	ledger     ledger.Ledger
	tracker    *budget.Tracker
	cache      *cache.Engine
	gateway    *gateway.Gateway
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	retention  *ledger.RetentionScheduler

	closers []func() error
}

type runtimeOptions struct {
	// background starts the cache janitor and ledger retention scheduler.
	background bool

	// providerOpts are passed to every adapter, mainly a test transport.
	providerOpts []providers.Option
}

// newRuntime wires the gateway from cfg. On error everything already built
// is closed.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts runtimeOptions) (_ *gatewayRuntime, err error) {
	rt := &gatewayRuntime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.dispatcher = events.NewDispatcher(cfg.Events.BufferSize, logger)
	rt.onClose(rt.dispatcher.Close)
	rt.dispatcher.Subscribe(logging.NewEventLogger(logger))
	if n := notify.New(cfg.Notify, notify.WithLogger(logger)); n != nil {
		rt.dispatcher.Subscribe(n)
	}

	rt.tracer, err = tracing.New(ctx, cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	rt.onClose(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rt.tracer.Shutdown(shutdownCtx)
	})

	rt.manager = providerfactory.NewManager(providerfactory.DefaultRegistry(), logger)
	rt.onClose(rt.manager.Close)
	providerOpts := append([]providers.Option{providers.WithLogger(logger)}, opts.providerOpts...)
	if err := rt.manager.LoadFromConfig(cfg.Providers, providerOpts...); err != nil {
		return nil, err
	}

	estimator, err := tokens.New(cfg.Processing.Tokens)
	if err != nil {
		return nil, fmt.Errorf("token estimator: %w", err)
	}
	catalog := providerfactory.Catalog(cfg.Models)

	rt.router, err = rt.buildRouter(catalog, estimator)
	if err != nil {
		return nil, err
	}

	rt.ledger, err = ledger.Open(cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("usage ledger: %w", err)
	}
	rt.onClose(rt.ledger.Close)

	rt.tracker, err = budget.NewTracker(cfg.Budget, rt.ledger,
		budget.WithEmitter(rt.dispatcher),
		budget.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("budget tracker: %w", err)
	}
	if err := rt.tracker.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuild budget counters: %w", err)
	}

	if cfg.Cache.IsEnabled() {
		rt.cache, err = cache.Open(ctx, cfg.Cache,
			cache.WithLogger(logger),
			cache.WithEmitter(rt.dispatcher),
		)
		if err != nil {
			return nil, err
		}
		rt.onClose(rt.cache.Close)
	}

	rt.gateway, err = gateway.New(gateway.Deps{
		Router:    rt.router,
		Cache:     rt.cache,
		Budget:    rt.tracker,
		Estimator: estimator,
		Costs:     costs.NewCalculator(catalog, cfg.Processing.Costs),
	},
		gateway.WithLogger(logger),
		gateway.WithEmitter(rt.dispatcher),
		gateway.WithTracer(rt.tracer.Tracer()),
		gateway.WithHitUsagePolicy(cfg.Cache.HitUsagePolicy),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.Metrics.IsEnabled() {
		rt.metrics = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
		rt.metrics.RegisterBudget(rt.tracker)
		if rt.cache != nil {
			rt.metrics.RegisterCache(rt.cache)
		}
		rt.dispatcher.Subscribe(rt.metrics)
	}

	if opts.background {
		if err := rt.startBackground(ctx); err != nil {
			return nil, err
		}
	}

	return rt, nil
}

func (rt *gatewayRuntime) buildRouter(catalog *providers.Catalog, estimator tokens.Estimator) (*routing.Router, error) {
	cfg := rt.cfg

	var provs []routing.Provider
	for _, adapter := range rt.manager.Adapters() {
		pc, _ := cfg.Provider(adapter.Name())
		provs = append(provs, routing.Provider{
			Adapter:       adapter,
			Models:        pc.Models,
			DefaultModel:  pc.DefaultModel,
			Weight:        pc.Weight,
			MaxConcurrent: pc.MaxConcurrent,
		})
	}
	if len(provs) == 0 {
		return nil, errors.New("no enabled providers")
	}

	latency := routing.NewLatencyTracker(cfg.Routing.LatencyAlpha)
	strategy, err := strategies.New(cfg.Routing.Strategy, strategies.Options{
		QualityRanking: cfg.Routing.QualityRanking,
		Latency:        latency,
	})
	if err != nil {
		return nil, err
	}

	return routing.NewRouter(routing.Config{
		MaxFailoverAttempts: cfg.Routing.MaxFailoverAttempts,
		Breaker: breaker.Config{
			FailureThreshold:   cfg.Breaker.FailureThreshold,
			OpenDuration:       cfg.Breaker.OpenDuration,
			HalfOpenProbeLimit: cfg.Breaker.HalfOpenProbeLimit,
		},
		Admission: admission.Config{
			MaxConcurrent:     cfg.Admission.MaxConcurrent,
			Mode:              admission.Mode(cfg.Admission.Mode),
			QueueSize:         cfg.Admission.QueueSize,
			QueueTimeout:      cfg.Admission.QueueTimeout,
			RequestsPerSecond: cfg.Admission.RequestsPerSecond,
			Burst:             cfg.Admission.Burst,
		},
	}, provs, catalog, strategy,
		routing.WithLogger(rt.logger),
		routing.WithEmitter(rt.dispatcher),
		routing.WithTracer(rt.tracer.Tracer()),
		routing.WithLatencyTracker(latency),
		routing.WithEstimator(func(req *providers.Request) (int, int) {
			est := estimator.EstimateRequest(req)
			return est.PromptTokens, est.EstimatedCompletionTokens
		}),
	)
}

func (rt *gatewayRuntime) startBackground(ctx context.Context) error {
	if rt.cache != nil {
		if err := rt.cache.StartJanitor(ctx, rt.cfg.Cache.JanitorSchedule); err != nil {
			return err
		}
		rt.onClose(func() error { rt.cache.StopJanitor(); return nil })
	}

	if rt.cfg.Ledger.RetentionDays > 0 {
		rt.retention = ledger.NewRetentionScheduler(rt.ledger, rt.cfg.Ledger.RetentionDays, rt.cfg.Ledger.PruneSchedule, rt.logger)
		if err := rt.retention.Start(ctx); err != nil {
			return fmt.Errorf("ledger retention: %w", err)
		}
		rt.onClose(func() error { rt.retention.Stop(); return nil })
	}
	return nil
}

func (rt *gatewayRuntime) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases components in reverse construction order.
func (rt *gatewayRuntime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
