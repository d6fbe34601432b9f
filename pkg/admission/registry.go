package admission

import (
	"fmt"
	"sync"
)

// Registry holds one controller per provider in declaration order.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	controllers map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*Controller)}
}

// Add creates the controller for provider.
func (r *Registry) Add(provider string, cfg Config) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.controllers[provider]; ok {
		return nil, fmt.Errorf("admission controller for provider %q already exists", provider)
	}
	c := New(provider, cfg)
	r.controllers[provider] = c
	r.order = append(r.order, provider)
	return c, nil
}

// Get returns the controller for provider.
func (r *Registry) Get(provider string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.controllers[provider]
	return c, ok
}

// Snapshots returns every controller's snapshot in declaration order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.controllers[name].Snapshot())
	}
	return out
}
