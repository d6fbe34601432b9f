package strategies

import (
	"math/rand/v2"
	"sync"

	"kageforge-hq/forge/pkg/routing"
)

// WeightedStrategy draws candidates at random, proportionally to their
// provider weight, without replacement. Providers with weight <= 0 are only
// used after every weighted provider, in declaration order.
type WeightedStrategy struct {
	seed uint64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedStrategy creates a weighted strategy. A zero seed picks a
// random one.
func NewWeightedStrategy(seed uint64) *WeightedStrategy {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &WeightedStrategy{seed: seed, rng: newRand(seed)}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Order returns a weighted random permutation of candidates.
func (s *WeightedStrategy) Order(_ *routing.Selection, candidates []routing.Candidate) []routing.Candidate {
	pool := make([]routing.Candidate, 0, len(candidates))
	var zero []routing.Candidate
	total := 0
	for _, c := range candidates {
		if c.Provider.Weight > 0 {
			pool = append(pool, c)
			total += c.Provider.Weight
		} else {
			zero = append(zero, c)
		}
	}

	out := make([]routing.Candidate, 0, len(candidates))

	s.mu.Lock()
	for len(pool) > 0 {
		pick := s.rng.IntN(total)
		i := 0
		for ; i < len(pool)-1; i++ {
			pick -= pool[i].Provider.Weight
			if pick < 0 {
				break
			}
		}
		out = append(out, pool[i])
		total -= pool[i].Provider.Weight
		pool = append(pool[:i], pool[i+1:]...)
	}
	s.mu.Unlock()

	return append(out, zero...)
}

// Name returns the strategy name.
func (s *WeightedStrategy) Name() string {
	return NameWeighted
}

// Reset reseeds the generator with the original seed.
func (s *WeightedStrategy) Reset() {
	s.mu.Lock()
	s.rng = newRand(s.seed)
	s.mu.Unlock()
}
