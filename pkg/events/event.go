package events

import "time"

// Kind names an event.
type Kind string

// Event kinds.
const (
	KindRequestStarted   Kind = "request-started"
	KindRequestCompleted Kind = "request-completed"
	KindRoutingDecision  Kind = "routing-decision"
	KindCacheHit         Kind = "cache-hit"
	KindCacheMiss        Kind = "cache-miss"
	KindBreakerOpened    Kind = "breaker-opened"
	KindBreakerClosed    Kind = "breaker-closed"
	KindBreakerHalfOpen  Kind = "breaker-half-open"
	KindBudgetWarning    Kind = "budget-warning"
	KindBudgetExceeded   Kind = "budget-exceeded"
	KindBudgetOvershoot  Kind = "budget-overshoot"
	KindProviderFailed   Kind = "provider-failed"
)

// Event is a single notification. Fields not relevant to a kind are zero.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`

	// Routing
	Candidates []string `json:"candidates,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
	Attempts   int      `json:"attempts,omitempty"`

	// Cache
	Layer      string  `json:"layer,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`

	// Completion
	Status       string        `json:"status,omitempty"`
	Latency      time.Duration `json:"latency,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Cost         float64       `json:"cost,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Error        string        `json:"error,omitempty"`

	// Budget
	Scope    string  `json:"scope,omitempty"`
	Limit    float64 `json:"limit,omitempty"`
	Consumed float64 `json:"consumed,omitempty"`
}

// Tag returns the kind, qualified by cache layer for cache hits
// ("cache-hit:memory", "cache-hit:similarity").
func (e Event) Tag() string {
	if e.Kind == KindCacheHit && e.Layer != "" {
		return string(e.Kind) + ":" + e.Layer
	}
	return string(e.Kind)
}

// Subscriber receives events. Handle must not retain e beyond the call.
type Subscriber interface {
	Name() string
	Handle(e Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc struct {
	ID string
	Fn func(Event)
}

// Name returns the subscriber id.
func (f SubscriberFunc) Name() string { return f.ID }

// Handle calls Fn.
func (f SubscriberFunc) Handle(e Event) { f.Fn(e) }

// Emitter is the publishing side used by components.
type Emitter interface {
	// Emit queues e for every subscriber without blocking.
	Emit(e Event)

	// EmitSync delivers e to every subscriber before returning.
	EmitSync(e Event)
}

// Nop discards every event.
type Nop struct{}

// Emit discards e.
func (Nop) Emit(Event) {}

// EmitSync discards e.
func (Nop) EmitSync(Event) {}
