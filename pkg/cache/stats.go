package cache

import (
	"sync/atomic"
	"time"
)

// Stats is a read-only snapshot of cache counters.
type Stats struct {
	Hits      map[string]int64 `json:"hits"`
	Misses    int64            `json:"misses"`
	Evictions map[string]int64 `json:"evictions"`
	Writes    int64            `json:"writes"`
	Errors    map[string]int64 `json:"errors"`
	Entries   map[string]int   `json:"entries"`

	// HitRate is hits / (hits + misses), zero before any lookup.
	HitRate float64 `json:"hit_rate"`

	LastResetTime time.Time `json:"last_reset_time"`
}

// TotalHits sums hits across layers.
func (s *Stats) TotalHits() int64 {
	var n int64
	for _, v := range s.Hits {
		n += v
	}
	return n
}

type layerCounters struct {
	hits      atomic.Int64
	evictions atomic.Int64
	errors    atomic.Int64
}

// counters holds the engine's atomic counters. The per-layer map is built
// once and only read afterwards.
type counters struct {
	layers map[string]*layerCounters
	misses atomic.Int64
	writes atomic.Int64
	reset  atomic.Value // time.Time
}

func newCounters(names []string) *counters {
	c := &counters{layers: make(map[string]*layerCounters, len(names))}
	for _, n := range names {
		c.layers[n] = &layerCounters{}
	}
	c.reset.Store(time.Now())
	return c
}

func (c *counters) layer(name string) *layerCounters {
	if lc, ok := c.layers[name]; ok {
		return lc
	}
	// Unknown names share a throwaway counter rather than racing on the map.
	return &layerCounters{}
}

func (c *counters) snapshot() *Stats {
	s := &Stats{
		Hits:          make(map[string]int64, len(c.layers)),
		Evictions:     make(map[string]int64, len(c.layers)),
		Errors:        make(map[string]int64, len(c.layers)),
		Entries:       make(map[string]int, len(c.layers)),
		Misses:        c.misses.Load(),
		Writes:        c.writes.Load(),
		LastResetTime: c.reset.Load().(time.Time),
	}
	for name, lc := range c.layers {
		s.Hits[name] = lc.hits.Load()
		s.Evictions[name] = lc.evictions.Load()
		s.Errors[name] = lc.errors.Load()
	}
	if total := s.TotalHits() + s.Misses; total > 0 {
		s.HitRate = float64(s.TotalHits()) / float64(total)
	}
	return s
}

func (c *counters) resetAll() {
	for _, lc := range c.layers {
		lc.hits.Store(0)
		lc.evictions.Store(0)
		lc.errors.Store(0)
	}
	c.misses.Store(0)
	c.writes.Store(0)
	c.reset.Store(time.Now())
}
