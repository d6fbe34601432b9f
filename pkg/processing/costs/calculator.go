package costs

import (
	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/processing/tokens"
	"kageforge-hq/forge/pkg/providers"
)

// Calculator prices token usage with the model catalog.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	catalog        *providers.Catalog
	defaultPricing providers.Pricing
}

// NewCalculator creates a calculator. Models missing from catalog are
// priced with cfg.DefaultPricing.
func NewCalculator(catalog *providers.Catalog, cfg config.CostsConfig) *Calculator {
	if catalog == nil {
		catalog = providers.NewCatalog(nil)
	}
	return &Calculator{
		catalog: catalog,
		defaultPricing: providers.Pricing{
			Input:       cfg.DefaultPricing.Input,
			Output:      cfg.DefaultPricing.Output,
			CachedInput: cfg.DefaultPricing.CachedInput,
			Thinking:    cfg.DefaultPricing.Thinking,
		},
	}
}

// Pricing returns the pricing for model and whether it came from the catalog.
func (c *Calculator) Pricing(model string) (providers.Pricing, bool) {
	if m, ok := c.catalog.Lookup(model); ok {
		return m.Pricing, true
	}
	return c.defaultPricing, false
}

// EstimateCost prices a token estimate for model. The estimate is charged
// entirely at the uncached input and output rates.
func (c *Calculator) EstimateCost(model string, est *tokens.Estimate) *CostEstimate {
	if est == nil {
		return &CostEstimate{Model: model}
	}
	return c.Cost(model, providers.Usage{
		InputTokens:  est.PromptTokens,
		OutputTokens: est.EstimatedCompletionTokens,
	})
}

// Cost prices actual usage for model. Usage buckets are disjoint: cached
// tokens are not included in InputTokens, thinking tokens not in
// OutputTokens. An unset cached price falls back to the input price and an
// unset thinking price to the output price.
func (c *Calculator) Cost(model string, usage providers.Usage) *CostEstimate {
	p, known := c.Pricing(model)

	cached := p.CachedInput
	if cached == 0 {
		cached = p.Input
	}
	thinking := p.Thinking
	if thinking == 0 {
		thinking = p.Output
	}

	est := &CostEstimate{
		Model:        model,
		Known:        known,
		InputCost:    perMillion(usage.InputTokens, p.Input),
		CachedCost:   perMillion(usage.CachedTokens, cached),
		OutputCost:   perMillion(usage.OutputTokens, p.Output),
		ThinkingCost: perMillion(usage.ThinkingTokens, thinking),
	}
	est.TotalCost = est.InputCost + est.CachedCost + est.OutputCost + est.ThinkingCost
	return est
}

// perMillion calculates the cost for tokens at a USD per million rate.
func perMillion(tokens int, rate float64) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) / 1e6 * rate
}
