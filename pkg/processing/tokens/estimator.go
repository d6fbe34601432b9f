package tokens

import (
	"encoding/json"
	"fmt"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/providers"
)

// Estimator names.
const (
	EstimatorSimple   = "simple"
	EstimatorTiktoken = "tiktoken"
)

// ImageTokens is the flat estimate charged per attached image.
const ImageTokens = 1000

// Estimator estimates token counts for text and requests.
// Implementations may use different algorithms (character-based, BPE, etc.).
type Estimator interface {
	// EstimateText estimates tokens for a single text string.
	EstimateText(text string) int

	// EstimateRequest estimates all tokens for a complete request,
	// including messages, tools and formatting overhead.
	EstimateRequest(req *providers.Request) *Estimate
}

// Estimate contains detailed token estimation results.
type Estimate struct {
	// PromptTokens is the estimated number of tokens in the prompt.
	PromptTokens int

	// EstimatedCompletionTokens is MaxTokens when set, otherwise the
	// configured default.
	EstimatedCompletionTokens int

	// TotalTokens is prompt plus completion.
	TotalTokens int

	// SystemPromptTokens is the token count for system messages.
	SystemPromptTokens int

	// MessageTokens is the token count for non-system messages.
	MessageTokens int

	// ToolTokens is the token count for tool definitions.
	ToolTokens int

	// ImageTokens is the flat charge for attached images.
	ImageTokens int

	// OverheadTokens are additional tokens for formatting and special tokens.
	OverheadTokens int

	Model string

	// Confidence is the estimation confidence from 0.0 (low) to 1.0 (high).
	Confidence float64
}

// New builds the estimator selected by cfg.
func New(cfg config.TokensConfig) (Estimator, error) {
	switch cfg.Estimator {
	case "", EstimatorSimple:
		return NewSimpleEstimator(cfg.CharsPerToken, cfg.DefaultCompletionTokens), nil
	case EstimatorTiktoken:
		return NewTiktokenEstimator(cfg.Encoding, cfg.DefaultCompletionTokens)
	default:
		return nil, fmt.Errorf("unknown token estimator %q", cfg.Estimator)
	}
}

// estimateRequest applies the shared message, tool and overhead accounting
// with count as the text tokenizer.
func estimateRequest(req *providers.Request, count func(string) int, defaultCompletion int, confidence float64) *Estimate {
	est := &Estimate{Model: req.Model, Confidence: confidence}

	for _, msg := range req.Messages {
		// ~1 token for the role, ~3 for message framing
		n := 1 + count(msg.Content) + 3
		if msg.Name != "" {
			n += count(msg.Name)
		}
		if msg.ToolCallID != "" {
			n += 10
		}
		est.ImageTokens += len(msg.Images) * ImageTokens

		if msg.Role == "system" {
			est.SystemPromptTokens += n
		} else {
			est.MessageTokens += n
		}
	}

	for _, tool := range req.Tools {
		n := count(tool.Name) + 10
		if tool.Description != "" {
			n += count(tool.Description)
		}
		if tool.Parameters != nil {
			if params, err := json.Marshal(tool.Parameters); err == nil {
				n += count(string(params))
			}
		}
		est.ToolTokens += n
	}

	// Conversation framing and special tokens.
	est.OverheadTokens = 3 + 5

	est.PromptTokens = est.SystemPromptTokens +
		est.MessageTokens +
		est.ToolTokens +
		est.ImageTokens +
		est.OverheadTokens

	if req.MaxTokens > 0 {
		est.EstimatedCompletionTokens = req.MaxTokens
	} else {
		est.EstimatedCompletionTokens = defaultCompletion
	}
	est.TotalTokens = est.PromptTokens + est.EstimatedCompletionTokens
	return est
}
