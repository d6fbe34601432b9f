package strategies

import (
	"kageforge-hq/forge/pkg/routing"
)

// QualityStrategy orders candidates by a configured provider ranking.
// Unranked providers follow ranked ones in declaration order.
type QualityStrategy struct {
	rank map[string]int
}

// NewQualityStrategy creates a quality strategy from names ordered most to
// least preferred.
func NewQualityStrategy(ranking []string) *QualityStrategy {
	rank := make(map[string]int, len(ranking))
	for i, name := range ranking {
		if _, dup := rank[name]; !dup {
			rank[name] = i
		}
	}
	return &QualityStrategy{rank: rank}
}

// Order sorts candidates by rank.
func (s *QualityStrategy) Order(_ *routing.Selection, candidates []routing.Candidate) []routing.Candidate {
	unranked := float64(len(s.rank))
	return sortStable(candidates, func(c routing.Candidate) float64 {
		if r, ok := s.rank[c.Name()]; ok {
			return float64(r)
		}
		return unranked
	})
}

// Name returns the strategy name.
func (s *QualityStrategy) Name() string {
	return NameQuality
}

// Reset is a no-op; the ranking is static.
func (s *QualityStrategy) Reset() {}
