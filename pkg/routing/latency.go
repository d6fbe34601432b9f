package routing

import (
	"sync"
	"time"
)

// DefaultLatencyAlpha is the EWMA smoothing factor.
const DefaultLatencyAlpha = 0.2

// LatencyTracker keeps an exponentially weighted moving average of
// successful call latency per provider.
type LatencyTracker struct {
	alpha float64

	mu      sync.RWMutex
	average map[string]float64
	samples map[string]int64
}

// NewLatencyTracker creates a tracker. alpha outside (0, 1] uses
// DefaultLatencyAlpha.
func NewLatencyTracker(alpha float64) *LatencyTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultLatencyAlpha
	}
	return &LatencyTracker{
		alpha:   alpha,
		average: make(map[string]float64),
		samples: make(map[string]int64),
	}
}

// Observe folds one latency sample into the provider's average.
func (t *LatencyTracker) Observe(provider string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := float64(d)
	if t.samples[provider] == 0 {
		t.average[provider] = v
	} else {
		t.average[provider] = t.alpha*v + (1-t.alpha)*t.average[provider]
	}
	t.samples[provider]++
}

// Average returns the provider's rolling average and whether it has been
// observed at all.
func (t *LatencyTracker) Average(provider string) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.samples[provider] == 0 {
		return 0, false
	}
	return time.Duration(t.average[provider]), true
}

// Reset clears every observation.
func (t *LatencyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.average = make(map[string]float64)
	t.samples = make(map[string]int64)
}
