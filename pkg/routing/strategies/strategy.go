package strategies

import (
	"slices"

	"kageforge-hq/forge/pkg/routing"
)

// Strategy names.
const (
	NameCost        = "cost"
	NamePerformance = "performance"
	NameQuality     = "quality"
	NameRoundRobin  = "round-robin"
	NameWeighted    = "weighted"
)

// Names returns every supported strategy name.
func Names() []string {
	return []string{NameCost, NamePerformance, NameQuality, NameRoundRobin, NameWeighted}
}

// Options carries the inputs some strategies need.
type Options struct {
	// QualityRanking lists provider names from most to least preferred.
	QualityRanking []string

	// Latency is the router's latency tracker, read by the performance
	// strategy.
	Latency *routing.LatencyTracker

	// Seed seeds the weighted strategy. Zero picks a random seed.
	Seed uint64
}

// New creates the named strategy.
//
// Example usage:
//
//	latency := routing.NewLatencyTracker(cfg.Routing.LatencyAlpha)
//	strategy, err := strategies.New(cfg.Routing.Strategy, strategies.Options{Latency: latency})
//	if err != nil {
//	    return err
//	}
//	router, err := routing.NewRouter(rc, provs, catalog, strategy, routing.WithLatencyTracker(latency))
func New(name string, opts Options) (routing.Strategy, error) {
	switch name {
	case NameCost:
		return NewCostStrategy(), nil
	case NamePerformance:
		return NewPerformanceStrategy(opts.Latency), nil
	case NameQuality:
		return NewQualityStrategy(opts.QualityRanking), nil
	case NameRoundRobin:
		return NewRoundRobinStrategy(), nil
	case NameWeighted:
		return NewWeightedStrategy(opts.Seed), nil
	default:
		return nil, &routing.InvalidStrategyError{Strategy: name, AvailableStrategies: Names()}
	}
}

// sortStable orders a copy of candidates by key; equal candidates keep
// declaration order.
func sortStable(candidates []routing.Candidate, key func(routing.Candidate) float64) []routing.Candidate {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b routing.Candidate) int {
		ka, kb := key(a), key(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return a.Order - b.Order
		}
	})
	return out
}
