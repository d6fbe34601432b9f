// Package tokens estimates token counts for requests before they are sent.
//
// Estimates feed the budget pre-check, which reserves the estimated cost of
// a request before dispatch, and the cost routing strategy.
//
// Two estimators are available:
//
//   - simple: rune count divided by a characters-per-token ratio (default 4)
//   - tiktoken: exact BPE counts with a tiktoken encoding (default cl100k_base)
//
// Images are charged a flat ImageTokens each. When a request sets no
// max_tokens, the completion is assumed to use the configured default.
//
// # Usage
//
//	est, err := tokens.New(cfg.Processing.Tokens)
//	if err != nil {
//		return err
//	}
//	e := est.EstimateRequest(req)
//	fmt.Printf("prompt=%d completion=%d\n", e.PromptTokens, e.EstimatedCompletionTokens)
package tokens
