package routing

import (
	"time"

	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/providers"
)

// Provider is the router's view of one enabled provider.
type Provider struct {
	// Adapter performs the calls.
	Adapter providers.Adapter

	// Models lists the catalog models this provider serves.
	Models []string

	// DefaultModel is used when a request names no model.
	DefaultModel string

	// Weight is used by the weighted strategy (default 1).
	Weight int

	// MaxConcurrent overrides the admission in-flight cap when > 0.
	MaxConcurrent int
}

// Name returns the adapter name.
func (p Provider) Name() string {
	return p.Adapter.Name()
}

// Candidate is a provider eligible for one request, with the catalog model
// it would be called with.
type Candidate struct {
	Provider Provider
	Model    providers.Model

	// Known is false when the model is missing from the catalog; pricing
	// and capabilities are then unknown.
	Known bool

	// Order is the provider's declaration index.
	Order int
}

// Name returns the provider name.
func (c Candidate) Name() string {
	return c.Provider.Name()
}

// Selection is the input a strategy orders candidates for.
type Selection struct {
	Request *providers.Request

	// InputTokens and OutputTokens are the estimated token counts used by
	// cost ordering.
	InputTokens  int
	OutputTokens int
}

// Attempt records one candidate the router tried or skipped.
type Attempt struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model,omitempty"`
	Kind       string        `json:"kind"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`

	// Skipped is true when no adapter call was made (breaker or
	// backpressure rejection at dispatch time).
	Skipped bool `json:"skipped,omitempty"`
}

// Attempt kinds for failures that are not provider errors.
const (
	AttemptCircuitOpen  = "circuit_open"
	AttemptBackpressure = "backpressure"
	AttemptCancelled    = "cancelled"
	AttemptUnknown      = "unknown"
)

// Result is the outcome of a successful Route.
type Result struct {
	// Response is the adapter response.
	Response *providers.Response

	// Provider is the provider that served the request.
	Provider string

	// Model is the model the provider was called with.
	Model string

	// Strategy is the ordering strategy used.
	Strategy string

	// Candidates is the ordered candidate list.
	Candidates []string

	// Attempts lists the failed or skipped candidates before success.
	Attempts []Attempt
}

// Failovers returns the number of failed attempts before success.
func (r *Result) Failovers() int {
	n := 0
	for _, a := range r.Attempts {
		if !a.Skipped {
			n++
		}
	}
	return n
}

// RoutingStats contains statistics about routing decisions.
type RoutingStats struct {
	// TotalRequests is the total number of routing requests processed.
	TotalRequests int64 `json:"total_requests"`

	// RequestsPerProvider counts successful dispatches per provider.
	RequestsPerProvider map[string]int64 `json:"requests_per_provider"`

	// FailuresPerProvider counts failed adapter calls per provider.
	FailuresPerProvider map[string]int64 `json:"failures_per_provider"`

	// StrategyUseCount tracks how many times each strategy was used.
	StrategyUseCount map[string]int64 `json:"strategy_use_count"`

	// Failovers is the number of times a request moved to another provider.
	Failovers int64 `json:"failovers"`

	// CircuitOpenRejections counts requests rejected because every
	// candidate's breaker was open.
	CircuitOpenRejections int64 `json:"circuit_open_rejections"`

	// BackpressureSkips counts candidates skipped by admission control.
	BackpressureSkips int64 `json:"backpressure_skips"`

	// Errors is the total number of routing errors.
	Errors int64 `json:"errors"`

	// LastResetTime is when statistics were last reset.
	LastResetTime time.Time `json:"last_reset_time"`
}

// ProviderStatus combines a provider's breaker, admission and latency state.
type ProviderStatus struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Models   []string         `json:"models"`
	Breaker  breaker.Snapshot `json:"breaker"`
	InFlight int64            `json:"in_flight"`
	Queued   int64            `json:"queued"`
	Latency  time.Duration    `json:"avg_latency"`
}
