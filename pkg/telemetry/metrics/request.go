package metrics

import (
	"time"

	"kageforge-hq/forge/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks completed gateway requests.
//
// Metrics:
//   - kageforge_gateway_requests_total: requests by provider, model, status
//   - kageforge_gateway_request_duration_seconds: end-to-end latency
//   - kageforge_gateway_tokens_total: tokens by provider, model, direction
//   - kageforge_gateway_failed_attempts_total: provider calls that failed over
//   - kageforge_gateway_request_errors_total: failed requests by error kind
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	failedAttempts  prometheus.Counter
	errorsTotal     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of completion requests",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end completion latency in seconds",
				// LLM latencies, from cache hits to long generations
				Buckets: []float64{0.005, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model", "status"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Total tokens by direction (input, output)",
			},
			[]string{"provider", "model", "direction"},
		),

		failedAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "failed_attempts_total",
				Help:      "Provider calls that failed before a request completed or gave up",
			},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_errors_total",
				Help:      "Failed or rejected requests by error kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.tokensTotal,
		rm.failedAttempts,
		rm.errorsTotal,
	)

	return rm
}

// RecordRequest records one completed request.
func (rm *RequestMetrics) RecordRequest(provider, model, status string, duration time.Duration, inputTokens, outputTokens int) {
	rm.requestsTotal.WithLabelValues(provider, model, status).Inc()
	rm.requestDuration.WithLabelValues(provider, model, status).Observe(duration.Seconds())

	if inputTokens > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordFailedAttempts adds n failed provider calls.
func (rm *RequestMetrics) RecordFailedAttempts(n int) {
	if n > 0 {
		rm.failedAttempts.Add(float64(n))
	}
}

// RecordError counts one failed request.
func (rm *RequestMetrics) RecordError(kind string) {
	rm.errorsTotal.WithLabelValues(kind).Inc()
}
