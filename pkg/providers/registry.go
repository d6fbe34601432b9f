package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an adapter from its configuration.
type Constructor func(cfg ProviderConfig, opts ...Option) (Adapter, error)

// Registry maps adapter type names to constructors.
// It is built explicitly by the caller; there is no package-level registry.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for typ.
func (r *Registry) Register(typ string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[typ] = ctor
}

// Build constructs an adapter for cfg using its Type.
func (r *Registry) Build(cfg ProviderConfig, opts ...Option) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, &ConfigError{
			Provider: cfg.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type %q (supported: %v)", cfg.Type, r.Types()),
		}
	}

	adapter, err := ctor(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", cfg.Name, err)
	}
	return adapter, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.ctors))
	for t := range r.ctors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
