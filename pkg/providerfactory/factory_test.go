package providerfactory

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/providers"
)

func TestDefaultRegistry_Types(t *testing.T) {
	got := DefaultRegistry().Types()
	want := []string{"anthropic", "generic", "openai", "stub"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}
}

func TestDefaultRegistry_Build(t *testing.T) {
	tests := []struct {
		name string
		cfg  providers.ProviderConfig
	}{
		{"openai", providers.ProviderConfig{Name: "openai", Type: "openai", APIKey: "k", Timeout: time.Second}},
		{"anthropic", providers.ProviderConfig{Name: "anthropic", Type: "anthropic", APIKey: "k"}},
		{"generic", providers.ProviderConfig{Name: "ollama", Type: "generic", BaseURL: "http://localhost:11434/v1"}},
		{"stub", providers.ProviderConfig{Name: "stub", Type: "stub"}},
	}

	reg := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := reg.Build(tt.cfg)
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			defer adapter.Close()

			if adapter.Name() != tt.cfg.Name {
				t.Errorf("name = %q, want %q", adapter.Name(), tt.cfg.Name)
			}
			if adapter.Type() != tt.cfg.Type {
				t.Errorf("type = %q, want %q", adapter.Type(), tt.cfg.Type)
			}
		})
	}
}

func TestDefaultRegistry_UnsupportedType(t *testing.T) {
	_, err := DefaultRegistry().Build(providers.ProviderConfig{Name: "x", Type: "gemini-v0"})

	var cfgErr *providers.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestCatalog(t *testing.T) {
	cat := Catalog([]config.ModelConfig{{
		Name:         "gpt-4o-mini",
		Capabilities: []string{"vision", "tools"},
		Pricing:      config.PricingConfig{Input: 0.15, Output: 0.6},
	}})

	m, ok := cat.Lookup("gpt-4o-mini")
	if !ok {
		t.Fatal("expected model in catalog")
	}
	if !m.Supports(providers.CapabilityVision, providers.CapabilityTools) {
		t.Error("capabilities not converted")
	}
	if m.Pricing.Output != 0.6 {
		t.Errorf("output price = %v", m.Pricing.Output)
	}
}
