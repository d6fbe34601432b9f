package strategies

import (
	"math"

	"kageforge-hq/forge/pkg/routing"
)

// CostStrategy orders candidates by estimated request cost, cheapest first.
// Candidates whose model has no catalog pricing go last.
type CostStrategy struct{}

// NewCostStrategy creates a cost strategy.
func NewCostStrategy() *CostStrategy {
	return &CostStrategy{}
}

// Order sorts candidates by estimated cost.
func (s *CostStrategy) Order(sel *routing.Selection, candidates []routing.Candidate) []routing.Candidate {
	in, out := 1, 1
	if sel != nil {
		in, out = max(sel.InputTokens, 0), max(sel.OutputTokens, 0)
	}
	return sortStable(candidates, func(c routing.Candidate) float64 {
		if !c.Known {
			return math.Inf(1)
		}
		return EstimateCost(c, in, out)
	})
}

// EstimateCost returns the USD cost of in input and out output tokens on
// the candidate's model.
func EstimateCost(c routing.Candidate, in, out int) float64 {
	p := c.Model.Pricing
	return (float64(in)*p.Input + float64(out)*p.Output) / 1_000_000
}

// Name returns the strategy name.
func (s *CostStrategy) Name() string {
	return NameCost
}

// Reset is a no-op; the strategy is stateless.
func (s *CostStrategy) Reset() {}
