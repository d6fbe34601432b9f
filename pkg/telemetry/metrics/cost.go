package metrics

import (
	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/limits/budget"

	"github.com/prometheus/client_golang/prometheus"
)

// CostMetrics tracks spend and budget alerts.
//
// Metrics:
//   - kageforge_gateway_cost_usd_total: spend by provider and model
//   - kageforge_gateway_cost_per_request_usd: per-request cost histogram
//   - kageforge_gateway_budget_alerts_total: alerts by scope and kind
type CostMetrics struct {
	costTotal      *prometheus.CounterVec
	costPerRequest *prometheus.HistogramVec
	budgetAlerts   *prometheus.CounterVec
}

// NewCostMetrics creates and registers cost metrics with the provided registry.
func NewCostMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_usd_total",
				Help:      "Total spend in USD by provider and model",
			},
			[]string{"provider", "model"},
		),

		costPerRequest: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_per_request_usd",
				Help:      "Cost per request in USD",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"provider", "model"},
		),

		budgetAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_alerts_total",
				Help:      "Budget warnings, exhaustions and overshoots by scope",
			},
			[]string{"scope", "kind"},
		),
	}

	registry.MustRegister(cm.costTotal, cm.costPerRequest, cm.budgetAlerts)

	return cm
}

// RecordRequestCost records the cost of a single request. Zero-cost
// requests (cache hits) are not observed.
func (cm *CostMetrics) RecordRequestCost(provider, model string, costUSD float64) {
	if costUSD <= 0 {
		return
	}

	cm.costTotal.WithLabelValues(provider, model).Add(costUSD)
	cm.costPerRequest.WithLabelValues(provider, model).Observe(costUSD)
}

// RecordBudgetAlert counts a budget event.
func (cm *CostMetrics) RecordBudgetAlert(scope, kind string) {
	cm.budgetAlerts.WithLabelValues(scope, kind).Inc()
}

// budgetCollector reports budget counters at scrape time.
type budgetCollector struct {
	status func() []budget.ScopeStatus

	consumed  *prometheus.Desc
	reserved  *prometheus.Desc
	limit     *prometheus.Desc
	overshoot *prometheus.Desc
	overs     func() int64
}

// RegisterBudget exposes the tracker's per-scope consumed, reserved and
// limit gauges plus the overshoot counter. Per-user scopes carry a user
// label.
func (c *Collector) RegisterBudget(t *budget.Tracker) {
	name := func(n string) string {
		return prometheus.BuildFQName(c.config.Namespace, c.config.Subsystem, n)
	}
	labels := []string{"scope", "user"}
	c.registry.MustRegister(&budgetCollector{
		status:    t.Status,
		overs:     t.Overshoots,
		consumed:  prometheus.NewDesc(name("budget_consumed_usd"), "Spend in the current period", labels, nil),
		reserved:  prometheus.NewDesc(name("budget_reserved_usd"), "In-flight reserved spend", labels, nil),
		limit:     prometheus.NewDesc(name("budget_limit_usd"), "Configured limit", labels, nil),
		overshoot: prometheus.NewDesc(name("budget_overshoots_total"), "Commits that pushed a scope past its limit", nil, nil),
	})
}

func (b *budgetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.consumed
	ch <- b.reserved
	ch <- b.limit
	ch <- b.overshoot
}

func (b *budgetCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range b.status() {
		scope := string(s.Scope)
		ch <- prometheus.MustNewConstMetric(b.consumed, prometheus.GaugeValue, s.Consumed, scope, s.UserID)
		ch <- prometheus.MustNewConstMetric(b.reserved, prometheus.GaugeValue, s.Reserved, scope, s.UserID)
		ch <- prometheus.MustNewConstMetric(b.limit, prometheus.GaugeValue, s.Limit, scope, s.UserID)
	}
	ch <- prometheus.MustNewConstMetric(b.overshoot, prometheus.CounterValue, float64(b.overs()))
}
