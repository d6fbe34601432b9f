package strategies

import (
	"math"

	"kageforge-hq/forge/pkg/routing"
)

// PerformanceStrategy orders candidates by rolling-average latency, fastest
// first. Providers without observations go first so they get measured.
type PerformanceStrategy struct {
	latency *routing.LatencyTracker
}

// NewPerformanceStrategy creates a performance strategy reading tracker.
func NewPerformanceStrategy(tracker *routing.LatencyTracker) *PerformanceStrategy {
	if tracker == nil {
		tracker = routing.NewLatencyTracker(routing.DefaultLatencyAlpha)
	}
	return &PerformanceStrategy{latency: tracker}
}

// Order sorts candidates by average latency.
func (s *PerformanceStrategy) Order(_ *routing.Selection, candidates []routing.Candidate) []routing.Candidate {
	return sortStable(candidates, func(c routing.Candidate) float64 {
		avg, ok := s.latency.Average(c.Name())
		if !ok {
			return math.Inf(-1)
		}
		return float64(avg)
	})
}

// Tracker returns the latency tracker the strategy reads.
func (s *PerformanceStrategy) Tracker() *routing.LatencyTracker {
	return s.latency
}

// Name returns the strategy name.
func (s *PerformanceStrategy) Name() string {
	return NamePerformance
}

// Reset clears the latency observations.
func (s *PerformanceStrategy) Reset() {
	s.latency.Reset()
}
