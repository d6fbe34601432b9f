package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kageforge-hq/forge/pkg/cache"
	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/limits/budget"
	"kageforge-hq/forge/pkg/limits/ledger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testCollector() *Collector {
	return NewCollector(config.MetricsConfig{Namespace: "test", Subsystem: "gw"}, prometheus.NewRegistry())
}

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector(config.MetricsConfig{}, nil)
	if c.Registry() == nil {
		t.Fatal("Registry() = nil")
	}
	if c.config.Namespace != "kageforge" || c.config.Subsystem != "gateway" {
		t.Errorf("namespace/subsystem = %s/%s, want kageforge/gateway", c.config.Namespace, c.config.Subsystem)
	}
}

func TestCollector_RequestCompleted(t *testing.T) {
	c := testCollector()

	c.Handle(events.Event{
		Kind:         events.KindRequestCompleted,
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Status:       "success",
		Latency:      1200 * time.Millisecond,
		InputTokens:  100,
		OutputTokens: 40,
		Cost:         0.05,
		Attempts:     1,
	})
	c.Handle(events.Event{
		Kind:      events.KindRequestCompleted,
		Status:    "rejected",
		ErrorKind: "budget_exceeded",
	})

	rm := c.requestMetrics
	if got := testutil.ToFloat64(rm.requestsTotal.WithLabelValues("openai", "gpt-4o-mini", "success")); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.tokensTotal.WithLabelValues("openai", "gpt-4o-mini", "input")); got != 100 {
		t.Errorf("input tokens = %v, want 100", got)
	}
	if got := testutil.ToFloat64(rm.tokensTotal.WithLabelValues("openai", "gpt-4o-mini", "output")); got != 40 {
		t.Errorf("output tokens = %v, want 40", got)
	}
	if got := testutil.ToFloat64(rm.failedAttempts); got != 1 {
		t.Errorf("failed_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.errorsTotal.WithLabelValues("budget_exceeded")); got != 1 {
		t.Errorf("request_errors_total{budget_exceeded} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.costMetrics.costTotal.WithLabelValues("openai", "gpt-4o-mini")); got != 0.05 {
		t.Errorf("cost_usd_total = %v, want 0.05", got)
	}
}

func TestCollector_BreakerState(t *testing.T) {
	c := testCollector()

	tests := []struct {
		kind events.Kind
		want float64
	}{
		{events.KindBreakerOpened, BreakerOpen},
		{events.KindBreakerHalfOpen, BreakerHalfOpen},
		{events.KindBreakerClosed, BreakerClosed},
	}
	for _, tt := range tests {
		c.Handle(events.Event{Kind: tt.kind, Provider: "anthropic"})
		if got := testutil.ToFloat64(c.providerMetrics.breakerState.WithLabelValues("anthropic")); got != tt.want {
			t.Errorf("after %s breaker_state = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCollector_ProviderAndRouting(t *testing.T) {
	c := testCollector()

	c.Handle(events.Event{Kind: events.KindProviderFailed, Provider: "openai", ErrorKind: "timeout"})
	c.Handle(events.Event{Kind: events.KindProviderFailed, Provider: "openai", ErrorKind: "timeout"})
	c.Handle(events.Event{Kind: events.KindRoutingDecision, Strategy: "cost"})

	if got := testutil.ToFloat64(c.providerMetrics.errorsTotal.WithLabelValues("openai", "timeout")); got != 2 {
		t.Errorf("provider_errors_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.providerMetrics.decisions.WithLabelValues("cost")); got != 1 {
		t.Errorf("routing_decisions_total = %v, want 1", got)
	}
}

func TestCollector_CacheAndBudgetEvents(t *testing.T) {
	c := testCollector()

	c.Handle(events.Event{Kind: events.KindCacheHit, Layer: "memory"})
	c.Handle(events.Event{Kind: events.KindCacheHit, Layer: "similarity"})
	c.Handle(events.Event{Kind: events.KindCacheMiss})
	c.Handle(events.Event{Kind: events.KindBudgetWarning, Scope: "daily"})

	if got := testutil.ToFloat64(c.cacheMetrics.hitsTotal.WithLabelValues("memory")); got != 1 {
		t.Errorf("cache_hits_total{memory} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cacheMetrics.missesTotal); got != 1 {
		t.Errorf("cache_misses_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.costMetrics.budgetAlerts.WithLabelValues("daily", "budget-warning")); got != 1 {
		t.Errorf("budget_alerts_total = %v, want 1", got)
	}
}

func TestCollector_RegisterBudget(t *testing.T) {
	c := testCollector()
	tracker, err := budget.NewTracker(config.BudgetConfig{Daily: 10, AlertThreshold: 0.8}, ledger.NewMemoryLedger())
	if err != nil {
		t.Fatal(err)
	}
	c.RegisterBudget(tracker)

	res, err := tracker.Reserve(context.Background(), "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Commit(context.Background(), &ledger.Record{Cost: 3}); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP test_gw_budget_consumed_usd Spend in the current period
# TYPE test_gw_budget_consumed_usd gauge
test_gw_budget_consumed_usd{scope="daily",user=""} 3
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "test_gw_budget_consumed_usd"); err != nil {
		t.Error(err)
	}
}

func TestCollector_RegisterCache(t *testing.T) {
	c := testCollector()
	mem, err := cache.NewMemoryLayer(10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	engine := cache.New([]cache.Layer{mem}, nil)
	defer engine.Close()
	c.RegisterCache(engine)

	if n := testutil.CollectAndCount(c.Registry(), "test_gw_cache_entries"); n == 0 {
		t.Error("cache_entries not exported")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := testCollector()
	c.Handle(events.Event{Kind: events.KindCacheMiss})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_gw_cache_misses_total") {
		t.Errorf("body missing cache_misses_total:\n%s", rec.Body.String())
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("first two label sets should be allowed")
	}
	if cl.Allow("c") {
		t.Error("third label set allowed past the limit")
	}
	if !cl.Allow("a") {
		t.Error("existing label set rejected")
	}
	if got := cl.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestCollector_CardinalityFoldsModel(t *testing.T) {
	c := testCollector()
	c.cardinalityLimiter = NewCardinalityLimiter(1)

	c.Handle(events.Event{Kind: events.KindRequestCompleted, Provider: "p", Model: "m1", Status: "success"})
	c.Handle(events.Event{Kind: events.KindRequestCompleted, Provider: "p", Model: "m2", Status: "success"})

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("p", "other", "success")); got != 1 {
		t.Errorf("requests_total{model=other} = %v, want 1", got)
	}
}
