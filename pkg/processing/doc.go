// Package processing holds the request accounting helpers shared by the
// router, the budget tracker and the gateway.
//
//   - tokens: token estimation (tiktoken with a character heuristic fallback)
//   - costs: cost calculation from catalog pricing
package processing
