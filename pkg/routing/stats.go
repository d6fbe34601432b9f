package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// AtomicRoutingStats implements thread-safe routing statistics using atomic operations.
type AtomicRoutingStats struct {
	totalRequests atomic.Int64

	// map[string]*atomic.Int64
	requestsPerProvider sync.Map
	failuresPerProvider sync.Map
	strategyUseCount    sync.Map

	failovers             atomic.Int64
	circuitOpenRejections atomic.Int64
	backpressureSkips     atomic.Int64
	errors                atomic.Int64

	mu            sync.RWMutex
	lastResetTime time.Time
}

// NewAtomicRoutingStats creates a new atomic routing statistics tracker.
func NewAtomicRoutingStats() *AtomicRoutingStats {
	return &AtomicRoutingStats{
		lastResetTime: time.Now(),
	}
}

// IncrementTotal increments the total request counter.
func (s *AtomicRoutingStats) IncrementTotal() {
	s.totalRequests.Add(1)
}

// IncrementProvider counts a successful dispatch to a provider.
func (s *AtomicRoutingStats) IncrementProvider(providerName string) {
	increment(&s.requestsPerProvider, providerName)
}

// IncrementProviderFailure counts a failed call to a provider.
func (s *AtomicRoutingStats) IncrementProviderFailure(providerName string) {
	increment(&s.failuresPerProvider, providerName)
}

// IncrementStrategy increments the counter for a specific strategy.
func (s *AtomicRoutingStats) IncrementStrategy(strategyName string) {
	increment(&s.strategyUseCount, strategyName)
}

// IncrementFailover counts a move to the next candidate.
func (s *AtomicRoutingStats) IncrementFailover() {
	s.failovers.Add(1)
}

// IncrementCircuitOpen counts an all-breakers-open rejection.
func (s *AtomicRoutingStats) IncrementCircuitOpen() {
	s.circuitOpenRejections.Add(1)
}

// IncrementBackpressure counts a candidate skipped by admission control.
func (s *AtomicRoutingStats) IncrementBackpressure() {
	s.backpressureSkips.Add(1)
}

// IncrementErrors increments the error counter.
func (s *AtomicRoutingStats) IncrementErrors() {
	s.errors.Add(1)
}

func increment(m *sync.Map, key string) {
	val, _ := m.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func load(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Snapshot returns a point-in-time snapshot of the statistics.
func (s *AtomicRoutingStats) Snapshot() *RoutingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &RoutingStats{
		TotalRequests:         s.totalRequests.Load(),
		RequestsPerProvider:   load(&s.requestsPerProvider),
		FailuresPerProvider:   load(&s.failuresPerProvider),
		StrategyUseCount:      load(&s.strategyUseCount),
		Failovers:             s.failovers.Load(),
		CircuitOpenRejections: s.circuitOpenRejections.Load(),
		BackpressureSkips:     s.backpressureSkips.Load(),
		Errors:                s.errors.Load(),
		LastResetTime:         s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *AtomicRoutingStats) Reset() {
	s.totalRequests.Store(0)
	s.failovers.Store(0)
	s.circuitOpenRejections.Store(0)
	s.backpressureSkips.Store(0)
	s.errors.Store(0)

	for _, m := range []*sync.Map{&s.requestsPerProvider, &s.failuresPerProvider, &s.strategyUseCount} {
		m.Range(func(key, value interface{}) bool {
			m.Delete(key)
			return true
		})
	}

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
