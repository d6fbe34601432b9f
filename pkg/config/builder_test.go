package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with one stub provider and one
// catalog model. The resulting configuration is valid.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{
		Models: []ModelConfig{
			{
				Name:          "stub-small",
				ContextWindow: 8192,
				Capabilities:  []string{"streaming"},
				Pricing:       PricingConfig{Input: 1, Output: 2},
			},
		},
		Providers: []ProviderConfig{
			{Name: "stub", Type: "stub", Models: []string{"stub-small"}},
		},
		Ledger: LedgerConfig{Backend: "memory"},
	}
	ApplyDefaults(&cfg)

	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithProvider appends a provider and applies provider defaults.
func (b *ConfigBuilder) WithProvider(p ProviderConfig) *ConfigBuilder {
	if p.Timeout == 0 {
		p.Timeout = DefaultProviderTimeout
	}
	if p.Weight == 0 {
		p.Weight = DefaultProviderWeight
	}
	if p.DefaultModel == "" && len(p.Models) > 0 {
		p.DefaultModel = p.Models[0]
	}
	b.cfg.Providers = append(b.cfg.Providers, p)
	return b
}

// WithModel appends a catalog model.
func (b *ConfigBuilder) WithModel(m ModelConfig) *ConfigBuilder {
	b.cfg.Models = append(b.cfg.Models, m)
	return b
}

// WithStrategy sets the routing strategy.
func (b *ConfigBuilder) WithStrategy(strategy string) *ConfigBuilder {
	b.cfg.Routing.Strategy = strategy
	return b
}

// WithBreaker sets circuit breaker parameters.
func (b *ConfigBuilder) WithBreaker(threshold int, open time.Duration, probes int) *ConfigBuilder {
	b.cfg.Breaker = BreakerConfig{
		FailureThreshold:   threshold,
		OpenDuration:       open,
		HalfOpenProbeLimit: probes,
	}
	return b
}

// WithBudget sets budget limits.
func (b *ConfigBuilder) WithBudget(daily, monthly, perUser float64) *ConfigBuilder {
	b.cfg.Budget.Daily = daily
	b.cfg.Budget.Monthly = monthly
	b.cfg.Budget.PerUserDaily = perUser
	return b
}

// MinimalConfig returns the smallest valid configuration.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
