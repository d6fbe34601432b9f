package cache

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"kageforge-hq/forge/pkg/providers"
)

// Metric names a vector similarity measure.
type Metric string

// Supported metrics. Both map unit vectors into [0, 1].
const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

// SimilarityConfig configures the similarity index.
type SimilarityConfig struct {
	Metric     Metric
	Threshold  float64
	MaxEntries int
	Dimensions int
	TTL        time.Duration
}

// SimilarityIndex is a bounded index of recent requests, searched linearly
// when every exact layer misses.
type SimilarityIndex struct {
	cfg SimilarityConfig
	now func() time.Time

	mu      sync.RWMutex
	entries []indexed
}

type indexed struct {
	scope string
	entry *Entry
}

// NewSimilarityIndex creates an index.
func NewSimilarityIndex(cfg SimilarityConfig) (*SimilarityIndex, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Metric != MetricCosine && cfg.Metric != MetricEuclidean {
		return nil, fmt.Errorf("unknown similarity metric %q", cfg.Metric)
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in (0, 1], got %v", cfg.Threshold)
	}
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("similarity index size must be positive, got %d", cfg.MaxEntries)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 256
	}
	return &SimilarityIndex{cfg: cfg, now: time.Now}, nil
}

// Threshold returns the minimum score for a hit.
func (s *SimilarityIndex) Threshold() float64 {
	return s.cfg.Threshold
}

// TTL returns the index entry lifetime.
func (s *SimilarityIndex) TTL() time.Duration {
	return s.cfg.TTL
}

// Embed returns the unit-length feature-hashed embedding of req's
// conversation text.
func (s *SimilarityIndex) Embed(req *providers.Request) []float32 {
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Role)
		b.WriteByte(' ')
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return Embed(b.String(), s.cfg.Dimensions)
}

// Add indexes e under scope, replacing an entry with the same key. It returns
// how many entries were dropped to stay within bounds.
func (s *SimilarityIndex) Add(scope string, e *Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.entries[:0]
	dropped := 0
	for _, ix := range s.entries {
		switch {
		case ix.entry.Key == e.Key:
		case ix.entry.Expired(now):
			dropped++
		default:
			kept = append(kept, ix)
		}
	}
	kept = append(kept, indexed{scope: scope, entry: e})
	if over := len(kept) - s.cfg.MaxEntries; over > 0 {
		clear(kept[:over])
		kept = kept[over:]
		dropped += over
	}
	s.entries = kept
	return dropped
}

// Search returns the most similar live entry in scope whose score reaches
// the threshold.
func (s *SimilarityIndex) Search(scope string, vec []float32) (*Entry, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var (
		best      *Entry
		bestScore float64
	)
	for _, ix := range s.entries {
		if ix.scope != scope || ix.entry.Expired(now) {
			continue
		}
		score := s.score(vec, ix.entry.Embedding)
		if score > bestScore {
			best, bestScore = ix.entry, score
		}
	}
	if best == nil || bestScore < s.cfg.Threshold {
		return nil, bestScore, false
	}
	return best, bestScore, true
}

// PurgeExpired drops expired entries.
func (s *SimilarityIndex) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, ix := range s.entries {
		if !ix.entry.Expired(now) {
			kept = append(kept, ix)
		}
	}
	n := len(s.entries) - len(kept)
	clear(s.entries[len(kept):])
	s.entries = kept
	return n
}

// Purge empties the index.
func (s *SimilarityIndex) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len returns the number of indexed entries.
func (s *SimilarityIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *SimilarityIndex) score(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	switch s.cfg.Metric {
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		// Unit vectors are at most 2 apart.
		return math.Max(0, 1-math.Sqrt(sum)/2)
	default:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return math.Max(0, math.Min(1, dot))
	}
}

// Embed hashes the lowercased words and word bigrams of text into a signed
// vector of dims buckets and scales it to unit length.
func Embed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	add := func(feature string) {
		h := xxhash.Sum64String(feature)
		i := h % uint64(dims)
		if h>>63 == 1 {
			vec[i]--
		} else {
			vec[i]++
		}
	}
	for i, w := range words {
		add(w)
		if i > 0 {
			add(words[i-1] + " " + w)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
