package metrics

import (
	"kageforge-hq/forge/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// ProviderMetrics tracks provider failures, breaker state and routing.
//
// Metrics:
//   - kageforge_gateway_provider_errors_total: failed calls by provider and kind
//   - kageforge_gateway_breaker_state: 0 closed, 1 half-open, 2 open
//   - kageforge_gateway_routing_decisions_total: decisions by strategy
type ProviderMetrics struct {
	errorsTotal  *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	decisions    *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_errors_total",
				Help:      "Failed provider calls by error kind",
			},
			[]string{"provider", "kind"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),

		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "routing_decisions_total",
				Help:      "Routing decisions by strategy",
			},
			[]string{"strategy"},
		),
	}

	registry.MustRegister(pm.errorsTotal, pm.breakerState, pm.decisions)

	return pm
}

// RecordError records a failed provider call.
func (pm *ProviderMetrics) RecordError(provider, kind string) {
	pm.errorsTotal.WithLabelValues(provider, kind).Inc()
}

// UpdateBreaker sets the provider's breaker state gauge.
func (pm *ProviderMetrics) UpdateBreaker(provider string, state int) {
	pm.breakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordDecision counts a routing decision.
func (pm *ProviderMetrics) RecordDecision(strategy string) {
	pm.decisions.WithLabelValues(strategy).Inc()
}
