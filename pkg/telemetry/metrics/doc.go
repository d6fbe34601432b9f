// Package metrics exposes gateway activity as Prometheus metrics.
//
// The Collector subscribes to the event dispatcher and turns events into
// counters and histograms:
//
//   - requests, latency and tokens by provider, model and status
//   - provider errors, breaker state and routing decisions
//   - spend by provider and model, budget alerts by scope
//   - cache hits by layer and misses
//
// Cache entry counts and budget counters are read at scrape time through
// RegisterCache and RegisterBudget.
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	dispatcher.Subscribe(collector)
//	collector.RegisterCache(engine)
//	collector.RegisterBudget(tracker)
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Provider and model labels beyond DefaultMaxCardinality combinations are
// folded into model="other".
package metrics
