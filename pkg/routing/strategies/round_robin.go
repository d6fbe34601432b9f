package strategies

import (
	"sync/atomic"

	"kageforge-hq/forge/pkg/routing"
)

// RoundRobinStrategy rotates the starting candidate on every request. The
// remaining candidates follow in declaration order, wrapping around, so
// failover still reaches every provider.
//
// The strategy is thread-safe and uses an atomic counter for concurrent access.
// The counter is reset on overflow to prevent unbounded growth.
type RoundRobinStrategy struct {
	counter atomic.Int64
}

// NewRoundRobinStrategy creates a new round-robin strategy.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

// Order returns candidates rotated by the request counter.
//
// Algorithm:
//  1. Take the counter value and increment it atomically
//  2. Start at counter % len(candidates)
//  3. Append the rest in declaration order, wrapping around
func (s *RoundRobinStrategy) Order(_ *routing.Selection, candidates []routing.Candidate) []routing.Candidate {
	n := len(candidates)
	if n <= 1 {
		return append([]routing.Candidate(nil), candidates...)
	}

	count := s.counter.Add(1) - 1 // Get value before increment

	// Handle overflow by resetting the counter
	if count >= 1_000_000_000 {
		s.counter.CompareAndSwap(count+1, 0)
		count = 0
	}

	start := int(count % int64(n))
	out := make([]routing.Candidate, 0, n)
	out = append(out, candidates[start:]...)
	out = append(out, candidates[:start]...)
	return out
}

// Name returns the strategy name.
func (s *RoundRobinStrategy) Name() string {
	return NameRoundRobin
}

// Reset resets the round-robin counter.
// This is primarily used for testing.
func (s *RoundRobinStrategy) Reset() {
	s.counter.Store(0)
}
