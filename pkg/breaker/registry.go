package breaker

import (
	"fmt"
	"sync"
)

// Registry holds one breaker per provider in declaration order.
type Registry struct {
	cfg  Config
	opts []Option

	mu       sync.RWMutex
	order    []string
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share cfg and opts.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{
		cfg:      cfg,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Add creates the breaker for provider. Adding a name twice is an error.
func (r *Registry) Add(provider string) (*Breaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.breakers[provider]; ok {
		return nil, fmt.Errorf("breaker for provider %q already exists", provider)
	}
	b := New(provider, r.cfg, r.opts...)
	r.breakers[provider] = b
	r.order = append(r.order, provider)
	return b, nil
}

// Get returns the breaker for provider.
func (r *Registry) Get(provider string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.breakers[provider]
	return b, ok
}

// Snapshots returns every breaker's snapshot in declaration order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.breakers[name].Snapshot())
	}
	return out
}

// Reset closes every breaker.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}
