package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"kageforge-hq/forge/pkg/providers"
)

type keyMessage struct {
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	Name       string   `json:"name,omitempty"`
	Images     []string `json:"images,omitempty"`
	ToolCallID string   `json:"tool_call_id,omitempty"`
}

type keyOptions struct {
	Model        string                 `json:"model"`
	Temperature  *float64               `json:"temperature,omitempty"`
	MaxTokens    int                    `json:"max_tokens,omitempty"`
	TopP         *float64               `json:"top_p,omitempty"`
	Stop         []string               `json:"stop,omitempty"`
	Capabilities []providers.Capability `json:"capabilities,omitempty"`
	Tools        []providers.Tool       `json:"tools,omitempty"`
}

type keyDocument struct {
	Messages []keyMessage `json:"messages"`
	Options  keyOptions   `json:"options"`
}

// Key returns the cache key of req: the hex SHA-256 of the canonical JSON of
// its normalized messages, model and output-affecting options.
//
// Streaming is not part of the key; a streamed and a buffered request for
// the same conversation share cached answers.
func Key(req *providers.Request) string {
	doc := keyDocument{
		Messages: make([]keyMessage, len(req.Messages)),
		Options:  optionsOf(req),
	}
	for i, m := range req.Messages {
		doc.Messages[i] = keyMessage{
			Role:       m.Role,
			Content:    Normalize(m.Content),
			Name:       m.Name,
			Images:     m.Images,
			ToolCallID: m.ToolCallID,
		}
	}
	return digest(doc)
}

// OptionsKey returns a key over everything Key covers except message
// content. Similarity lookups only compare requests with equal options keys.
func OptionsKey(req *providers.Request) string {
	roles := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	return digest(struct {
		Roles   []string   `json:"roles"`
		Options keyOptions `json:"options"`
	}{roles, optionsOf(req)})
}

// Normalize trims s and collapses every run of whitespace to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func optionsOf(req *providers.Request) keyOptions {
	var caps []providers.Capability
	for _, c := range req.RequiredCapabilities() {
		if c != providers.CapabilityStreaming {
			caps = append(caps, c)
		}
	}
	return keyOptions{
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		TopP:         req.TopP,
		Stop:         req.Stop,
		Capabilities: caps,
		Tools:        req.Tools,
	}
}

func digest(v any) string {
	// Marshal cannot fail for these plain structs; map keys in tool
	// parameters are sorted by encoding/json.
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
