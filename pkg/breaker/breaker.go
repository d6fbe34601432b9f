package breaker

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State string

// Breaker states.
const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int

	// OpenDuration is how long the breaker stays open before admitting probes.
	OpenDuration time.Duration

	// HalfOpenProbeLimit is the number of concurrent probes while half-open.
	HalfOpenProbeLimit int
}

func (c Config) normalized() Config {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 1
	}
	if c.HalfOpenProbeLimit < 1 {
		c.HalfOpenProbeLimit = 1
	}
	return c
}

// Transition describes a state change.
type Transition struct {
	Provider string
	From     State
	To       State
	At       time.Time

	// Failures is the consecutive failure count that caused an opening.
	Failures int
}

// Observer is notified after every state transition, outside the breaker lock.
type Observer func(Transition)

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(b *Breaker) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

// Snapshot is a point-in-time copy of a breaker's state.
type Snapshot struct {
	Provider             string    `json:"provider"`
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailure          time.Time `json:"last_failure,omitempty"`
	OpenedAt             time.Time `json:"opened_at,omitempty"`
	ProbesInFlight       int       `json:"probes_in_flight"`
}

// Breaker is a per-provider circuit breaker. All transitions happen under a
// single mutex, so the state machine is linearizable.
type Breaker struct {
	name      string
	cfg       Config
	now       func() time.Time
	observers []Observer

	mu          sync.Mutex
	state       State
	generation  uint64
	failures    int
	successes   int
	lastFailure time.Time
	openedAt    time.Time
	probes      int
}

// New creates a closed breaker for the named provider.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:  name,
		cfg:   cfg.normalized(),
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the provider name.
func (b *Breaker) Name() string {
	return b.name
}

// Allow asks permission for one call. On success the caller must report
// exactly one outcome on the returned ticket. When the breaker is open, or
// half-open with every probe slot taken, it returns an *OpenError.
func (b *Breaker) Allow() (*Ticket, error) {
	b.mu.Lock()
	now := b.now()

	var transitions []Transition
	if b.state == StateOpen && b.dueLocked(now) {
		transitions = append(transitions, b.setStateLocked(StateHalfOpen, now))
	}

	var (
		ticket *Ticket
		err    error
	)
	switch b.state {
	case StateClosed:
		ticket = &Ticket{b: b, generation: b.generation}
	case StateHalfOpen:
		if b.probes < b.cfg.HalfOpenProbeLimit {
			b.probes++
			ticket = &Ticket{b: b, generation: b.generation, probe: true}
		} else {
			err = b.openErrorLocked()
		}
	default:
		err = b.openErrorLocked()
	}
	b.mu.Unlock()

	b.notify(transitions)
	return ticket, err
}

// Ready reports whether Allow would currently admit a call, without
// changing state. An open breaker that is due for a probe is ready.
func (b *Breaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return b.probes < b.cfg.HalfOpenProbeLimit
	default:
		return b.dueLocked(b.now())
	}
}

// State returns the current state. An open breaker past its open duration
// still reports open until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker's counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Provider:             b.name,
		State:                b.state,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		LastFailure:          b.lastFailure,
		OpenedAt:             b.openedAt,
		ProbesInFlight:       b.probes,
	}
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var transitions []Transition
	if b.state != StateClosed {
		transitions = append(transitions, b.setStateLocked(StateClosed, b.now()))
	}
	b.failures = 0
	b.successes = 0
	b.mu.Unlock()

	b.notify(transitions)
}

func (b *Breaker) dueLocked(now time.Time) bool {
	return !now.Before(b.openedAt.Add(b.cfg.OpenDuration))
}

func (b *Breaker) openErrorLocked() *OpenError {
	return &OpenError{
		Provider: b.name,
		State:    b.state,
		OpenedAt: b.openedAt,
		RetryAt:  b.openedAt.Add(b.cfg.OpenDuration),
	}
}

// setStateLocked moves to state and starts a new generation. Tickets from an
// older generation no longer affect counters.
func (b *Breaker) setStateLocked(to State, now time.Time) Transition {
	t := Transition{Provider: b.name, From: b.state, To: to, At: now, Failures: b.failures}

	b.state = to
	b.generation++
	b.probes = 0

	switch to {
	case StateOpen:
		b.openedAt = now
		b.successes = 0
	case StateClosed:
		b.failures = 0
		b.successes = 0
		b.openedAt = time.Time{}
	}
	return t
}

func (b *Breaker) report(t *Ticket, outcome outcome) {
	b.mu.Lock()
	now := b.now()

	var transitions []Transition
	current := t.generation == b.generation

	if current && t.probe && b.probes > 0 {
		b.probes--
	}

	switch outcome {
	case outcomeSuccess:
		if !current {
			break
		}
		if b.state == StateHalfOpen {
			transitions = append(transitions, b.setStateLocked(StateClosed, now))
			break
		}
		b.failures = 0
		b.successes++
	case outcomeFailure:
		b.lastFailure = now
		if !current {
			break
		}
		b.failures++
		b.successes = 0
		switch b.state {
		case StateHalfOpen:
			transitions = append(transitions, b.setStateLocked(StateOpen, now))
		case StateClosed:
			if b.failures >= b.cfg.FailureThreshold {
				transitions = append(transitions, b.setStateLocked(StateOpen, now))
			}
		}
	}
	b.mu.Unlock()

	b.notify(transitions)
}

func (b *Breaker) notify(transitions []Transition) {
	for _, t := range transitions {
		for _, o := range b.observers {
			o(t)
		}
	}
}
