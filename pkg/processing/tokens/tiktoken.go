package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"kageforge-hq/forge/pkg/providers"
)

// TiktokenEstimator counts tokens with a BPE encoding. Counts are exact for
// OpenAI models and a close approximation for others.
type TiktokenEstimator struct {
	enc               *tiktoken.Tiktoken
	defaultCompletion int
}

// NewTiktokenEstimator loads the named encoding ("cl100k_base" when empty).
// The first load fetches the BPE ranks unless TIKTOKEN_CACHE_DIR holds them.
func NewTiktokenEstimator(encoding string, defaultCompletion int) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if defaultCompletion <= 0 {
		defaultCompletion = 512
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc, defaultCompletion: defaultCompletion}, nil
}

// EstimateText returns the exact BPE token count of text.
func (e *TiktokenEstimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}

// EstimateRequest estimates all tokens for a complete request.
func (e *TiktokenEstimator) EstimateRequest(req *providers.Request) *Estimate {
	return estimateRequest(req, e.EstimateText, e.defaultCompletion, 0.99)
}
