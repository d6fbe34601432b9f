package metrics

import (
	"context"

	"kageforge-hq/forge/pkg/cache"
	"kageforge-hq/forge/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks response cache lookups.
//
// Metrics:
//   - kageforge_gateway_cache_hits_total: hits by layer
//   - kageforge_gateway_cache_misses_total: lookups no layer answered
//
// Entry counts and evictions are read from the engine at scrape time, see
// RegisterCache.
type CacheMetrics struct {
	hitsTotal   *prometheus.CounterVec
	missesTotal prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits by layer",
			},
			[]string{"layer"},
		),

		missesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
		),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal)

	return cm
}

// RecordHit records a cache hit.
func (cm *CacheMetrics) RecordHit(layer string) {
	cm.hitsTotal.WithLabelValues(layer).Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss() {
	cm.missesTotal.Inc()
}

// cacheCollector reports engine state at scrape time.
type cacheCollector struct {
	engine    *cache.Engine
	entries   *prometheus.Desc
	evictions *prometheus.Desc
	errors    *prometheus.Desc
}

// RegisterCache exposes per-layer entry, eviction and error counts of e.
func (c *Collector) RegisterCache(e *cache.Engine) {
	name := func(n string) string {
		return prometheus.BuildFQName(c.config.Namespace, c.config.Subsystem, n)
	}
	c.registry.MustRegister(&cacheCollector{
		engine:    e,
		entries:   prometheus.NewDesc(name("cache_entries"), "Current entries by layer", []string{"layer"}, nil),
		evictions: prometheus.NewDesc(name("cache_evictions_total"), "Entries evicted by layer", []string{"layer"}, nil),
		errors:    prometheus.NewDesc(name("cache_errors_total"), "Absorbed layer errors", []string{"layer"}, nil),
	})
}

func (cc *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cc.entries
	ch <- cc.evictions
	ch <- cc.errors
}

func (cc *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	stats := cc.engine.Stats(context.Background())
	for layer, n := range stats.Entries {
		ch <- prometheus.MustNewConstMetric(cc.entries, prometheus.GaugeValue, float64(n), layer)
	}
	for layer, n := range stats.Evictions {
		ch <- prometheus.MustNewConstMetric(cc.evictions, prometheus.CounterValue, float64(n), layer)
	}
	for layer, n := range stats.Errors {
		ch <- prometheus.MustNewConstMetric(cc.errors, prometheus.CounterValue, float64(n), layer)
	}
}
