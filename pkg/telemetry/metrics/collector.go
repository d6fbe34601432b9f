package metrics

import (
	"sync"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxCardinality bounds the unique provider/model label sets.
const DefaultMaxCardinality = 10000

// Collector turns gateway events into Prometheus metrics. It is an event
// subscriber; register it on the dispatcher and mount Handler on the metrics
// path.
//
// Cache and budget state that is not carried by events is read at scrape
// time by the collectors registered with RegisterCache and RegisterBudget.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	providerMetrics *ProviderMetrics
	costMetrics     *CostMetrics
	cacheMetrics    *CacheMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics. A nil
// registry gets a fresh one.
//
// Example:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	dispatcher.Subscribe(collector)
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "kageforge"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		requestMetrics:     NewRequestMetrics(cfg, registry),
		providerMetrics:    NewProviderMetrics(cfg, registry),
		costMetrics:        NewCostMetrics(cfg, registry),
		cacheMetrics:       NewCacheMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxCardinality),
	}
}

// Name returns "metrics".
func (c *Collector) Name() string { return "metrics" }

// Handle records e.
func (c *Collector) Handle(e events.Event) {
	switch e.Kind {
	case events.KindRequestCompleted:
		provider, model := c.labels(e.Provider, e.Model, e.Status)
		c.requestMetrics.RecordRequest(provider, model, e.Status, e.Latency, e.InputTokens, e.OutputTokens)
		c.requestMetrics.RecordFailedAttempts(e.Attempts)
		if e.ErrorKind != "" {
			c.requestMetrics.RecordError(e.ErrorKind)
		}
		c.costMetrics.RecordRequestCost(provider, model, e.Cost)

	case events.KindRoutingDecision:
		c.providerMetrics.RecordDecision(e.Strategy)

	case events.KindProviderFailed:
		c.providerMetrics.RecordError(e.Provider, e.ErrorKind)

	case events.KindBreakerOpened:
		c.providerMetrics.UpdateBreaker(e.Provider, BreakerOpen)
	case events.KindBreakerHalfOpen:
		c.providerMetrics.UpdateBreaker(e.Provider, BreakerHalfOpen)
	case events.KindBreakerClosed:
		c.providerMetrics.UpdateBreaker(e.Provider, BreakerClosed)

	case events.KindCacheHit:
		c.cacheMetrics.RecordHit(e.Layer)
	case events.KindCacheMiss:
		c.cacheMetrics.RecordMiss()

	case events.KindBudgetWarning, events.KindBudgetExceeded, events.KindBudgetOvershoot:
		c.costMetrics.RecordBudgetAlert(e.Scope, string(e.Kind))
	}
}

// labels folds provider/model pairs beyond the cardinality limit into
// "other".
func (c *Collector) labels(provider, model, status string) (string, string) {
	if !c.cardinalityLimiter.Allow(provider + "\x00" + model + "\x00" + status) {
		return provider, "other"
	}
	return provider, model
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
