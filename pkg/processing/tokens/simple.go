package tokens

import (
	"unicode/utf8"

	"kageforge-hq/forge/pkg/providers"
)

// SimpleEstimator implements character-based token estimation.
// It divides the rune count by a fixed characters-per-token ratio, which is
// within a few percent for English prose and very fast.
type SimpleEstimator struct {
	charsPerToken     float64
	defaultCompletion int
}

// NewSimpleEstimator creates a character-based estimator. Non-positive
// arguments fall back to 4 characters per token and 512 completion tokens.
func NewSimpleEstimator(charsPerToken float64, defaultCompletion int) *SimpleEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	if defaultCompletion <= 0 {
		defaultCompletion = 512
	}
	return &SimpleEstimator{
		charsPerToken:     charsPerToken,
		defaultCompletion: defaultCompletion,
	}
}

// EstimateText estimates tokens for a single text string.
func (e *SimpleEstimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}

	tokens := float64(utf8.RuneCountInString(text)) / e.charsPerToken
	if tokens < 1.0 {
		tokens = 1.0 // Minimum 1 token for non-empty text
	}
	return int(tokens + 0.5)
}

// EstimateRequest estimates all tokens for a complete request.
func (e *SimpleEstimator) EstimateRequest(req *providers.Request) *Estimate {
	return estimateRequest(req, e.EstimateText, e.defaultCompletion, 0.95)
}
