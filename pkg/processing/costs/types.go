package costs

// CostEstimate contains cost calculations in USD.
type CostEstimate struct {
	// InputCost is the cost of uncached prompt tokens.
	InputCost float64 `json:"input_cost"`

	// CachedCost is the cost of prompt tokens served from the provider's
	// prompt cache.
	CachedCost float64 `json:"cached_cost"`

	// OutputCost is the cost of completion tokens.
	OutputCost float64 `json:"output_cost"`

	// ThinkingCost is the cost of reasoning tokens.
	ThinkingCost float64 `json:"thinking_cost"`

	// TotalCost is the total cost in USD.
	TotalCost float64 `json:"total_cost"`

	Model string `json:"model"`

	// Known is false when the model is missing from the catalog and the
	// default pricing was used.
	Known bool `json:"known"`
}
