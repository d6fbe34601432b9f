// Package costs prices token usage in USD.
//
// Prices come from the model catalog (USD per million tokens for input,
// cached input, output and thinking tokens). Models missing from the catalog
// use the configured default pricing.
//
// # Usage
//
//	calc := costs.NewCalculator(catalog, cfg.Processing.Costs)
//
//	// Before dispatch, for the budget reservation
//	reserve := calc.EstimateCost(req.Model, estimator.EstimateRequest(req)).TotalCost
//
//	// After the provider answers
//	actual := calc.Cost(resp.Model, resp.Usage).TotalCost
package costs
