package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor removes provider credentials from log output.
type Redactor struct {
	patterns []redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor for API keys and bearer tokens.
func NewRedactor() *Redactor {
	return &Redactor{patterns: []redactPattern{
		// OpenAI and Anthropic keys (sk-..., sk-ant-...)
		{regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{8,}`), "sk-***"},
		{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
		{regexp.MustCompile(`(?i)(x-api-key|api[-_]?key)([=:]\s*)[^\s&"]+`), "$1$2***"},
	}}
}

// RedactString redacts credentials from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr redacts a, recursing into groups. Values under sensitive keys
// are replaced entirely.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch {
	case v.Kind() == slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case isSensitiveKey(a.Key):
		return slog.String(a.Key, RedactAPIKey(v.String()))
	case v.Kind() == slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case v.Kind() == slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// isSensitiveKey checks if a key name indicates a credential.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range []string{"api_key", "apikey", "authorization", "secret", "password", "token"} {
		if strings.Contains(lowerKey, sensitive) {
			return !strings.HasSuffix(lowerKey, "_tokens")
		}
	}
	return false
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}
