package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/providers"
)

// Manager owns the adapters built at startup, in declaration order.
//
// Manager is thread-safe and can be used concurrently.
type Manager struct {
	registry *providers.Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	adapters []providers.Adapter
	byName   map[string]providers.Adapter
}

// NewManager creates a manager that builds adapters with registry.
func NewManager(registry *providers.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		logger:   logger.With("component", "providers"),
		byName:   make(map[string]providers.Adapter),
	}
}

// Add registers an already constructed adapter. A duplicate name is an error.
func (m *Manager) Add(adapter providers.Adapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[adapter.Name()]; ok {
		return fmt.Errorf("provider %q already registered", adapter.Name())
	}
	m.adapters = append(m.adapters, adapter)
	m.byName[adapter.Name()] = adapter
	return nil
}

// LoadFromConfig builds an adapter for every enabled provider. Disabled
// providers are skipped. Any errors are collected and returned together.
func (m *Manager) LoadFromConfig(configs []config.ProviderConfig, opts ...providers.Option) error {
	var errs []error

	for _, pc := range configs {
		if !pc.IsEnabled() {
			m.logger.Info("provider disabled, skipping", "provider", pc.Name)
			continue
		}

		adapter, err := m.registry.Build(AdapterConfig(pc), opts...)
		if err != nil {
			m.logger.Error("failed to load provider", "provider", pc.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := m.Add(adapter); err != nil {
			adapter.Close()
			errs = append(errs, err)
			continue
		}

		m.logger.Info("provider loaded", "provider", pc.Name, "type", pc.Type)
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to load %d provider(s): %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Get returns an adapter by name.
func (m *Manager) Get(name string) (providers.Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byName[name]
	return a, ok
}

// Adapters returns every adapter in declaration order.
func (m *Manager) Adapters() []providers.Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]providers.Adapter(nil), m.adapters...)
}

// Names returns the adapter names in declaration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.adapters))
	for i, a := range m.adapters {
		names[i] = a.Name()
	}
	return names
}

// Count returns the number of adapters.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.adapters)
}

// Close closes every adapter.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, a := range m.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", a.Name(), err))
		}
	}
	m.adapters = nil
	m.byName = make(map[string]providers.Adapter)

	m.logger.Info("provider manager closed")
	return errors.Join(errs...)
}
