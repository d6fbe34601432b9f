package costs

import (
	"math"
	"testing"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/processing/tokens"
	"kageforge-hq/forge/pkg/providers"
)

func newCalculator() *Calculator {
	catalog := providers.NewCatalog([]providers.Model{
		{Name: "gpt-4o", Pricing: providers.Pricing{Input: 2.5, Output: 10, CachedInput: 1.25}},
		{Name: "o3", Pricing: providers.Pricing{Input: 2, Output: 8, Thinking: 8}},
		{Name: "haiku", Pricing: providers.Pricing{Input: 1, Output: 5}},
	})
	return NewCalculator(catalog, config.CostsConfig{
		DefaultPricing: config.PricingConfig{Input: 10, Output: 30},
	})
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestCalculator_Cost(t *testing.T) {
	c := newCalculator()

	tests := []struct {
		name      string
		model     string
		usage     providers.Usage
		wantTotal float64
		wantKnown bool
	}{
		{
			name:      "input and output",
			model:     "gpt-4o",
			usage:     providers.Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
			wantTotal: 2.5 + 1.0,
			wantKnown: true,
		},
		{
			name:      "cached input at discount",
			model:     "gpt-4o",
			usage:     providers.Usage{InputTokens: 200_000, CachedTokens: 800_000},
			wantTotal: 0.5 + 1.0,
			wantKnown: true,
		},
		{
			name:      "cached price falls back to input",
			model:     "haiku",
			usage:     providers.Usage{CachedTokens: 1_000_000},
			wantTotal: 1,
			wantKnown: true,
		},
		{
			name:      "thinking priced",
			model:     "o3",
			usage:     providers.Usage{OutputTokens: 500_000, ThinkingTokens: 500_000},
			wantTotal: 4 + 4,
			wantKnown: true,
		},
		{
			name:      "thinking price falls back to output",
			model:     "haiku",
			usage:     providers.Usage{ThinkingTokens: 1_000_000},
			wantTotal: 5,
			wantKnown: true,
		},
		{
			name:      "unknown model uses default pricing",
			model:     "mystery",
			usage:     providers.Usage{InputTokens: 1000, OutputTokens: 1000},
			wantTotal: 0.01 + 0.03,
		},
		{
			name:      "zero usage",
			model:     "gpt-4o",
			usage:     providers.Usage{},
			wantTotal: 0,
			wantKnown: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Cost(tt.model, tt.usage)
			if !almostEqual(got.TotalCost, tt.wantTotal) {
				t.Errorf("TotalCost = %v, want %v", got.TotalCost, tt.wantTotal)
			}
			if got.Known != tt.wantKnown {
				t.Errorf("Known = %v, want %v", got.Known, tt.wantKnown)
			}
			sum := got.InputCost + got.CachedCost + got.OutputCost + got.ThinkingCost
			if !almostEqual(sum, got.TotalCost) {
				t.Errorf("components sum to %v, total %v", sum, got.TotalCost)
			}
		})
	}
}

func TestCalculator_EstimateCost(t *testing.T) {
	c := newCalculator()

	got := c.EstimateCost("haiku", &tokens.Estimate{PromptTokens: 2_000_000, EstimatedCompletionTokens: 1_000_000})
	if !almostEqual(got.TotalCost, 2+5) {
		t.Errorf("TotalCost = %v, want 7", got.TotalCost)
	}

	if got := c.EstimateCost("haiku", nil); got.TotalCost != 0 {
		t.Errorf("EstimateCost(nil) = %v, want 0", got.TotalCost)
	}
}

func TestCalculator_Pricing(t *testing.T) {
	c := newCalculator()

	if p, ok := c.Pricing("o3"); !ok || p.Thinking != 8 {
		t.Errorf("Pricing(o3) = %+v, %v", p, ok)
	}
	if p, ok := c.Pricing("nope"); ok || p.Input != 10 {
		t.Errorf("Pricing(nope) = %+v, %v", p, ok)
	}
}
