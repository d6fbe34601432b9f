package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}},
		{name: "debug text", cfg: config.LoggingConfig{Level: "debug", Format: "text"}},
		{name: "console alias", cfg: config.LoggingConfig{Level: "warning", Format: "console"}},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	return m
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug"}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithUser(WithRequestID(context.Background(), "req-42"), "alice")
	logger.InfoContext(ctx, "routing")

	m := decode(t, &buf)
	if m["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", m["request_id"])
	}
	if m["user_id"] != "alice" {
		t.Errorf("user_id = %v, want alice", m["user_id"])
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	logger.With("api_key", "sk-live-0123456789abcdef").Info("calling sk-proj-abcdefghijkl",
		"header", "Bearer abc.def.ghi",
		"error", errors.New("401 for key sk-ant-zzzzzzzzzzzz"),
		"input_tokens", 12,
	)

	out := buf.String()
	for _, secret := range []string{"0123456789abcdef", "abcdefghijkl", "abc.def.ghi", "zzzzzzzzzzzz"} {
		if strings.Contains(out, secret) {
			t.Errorf("log output leaks %q: %s", secret, out)
		}
	}

	m := decode(t, &buf)
	if m["api_key"] != "sk-l***" {
		t.Errorf("api_key = %v, want sk-l***", m["api_key"])
	}
	if m["input_tokens"] != float64(12) {
		t.Errorf("input_tokens = %v, want 12", m["input_tokens"])
	}
}

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor()
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"key sk-abcdefghij", "key sk-***"},
		{"Authorization: Bearer tok123", "Authorization: Bearer ***"},
		{"url?api_key=secret&x=1", "url?api_key=***&x=1"},
	}
	for _, tt := range tests {
		if got := r.RedactString(tt.input); got != tt.want {
			t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"api_key":       true,
		"Authorization": true,
		"client_secret": true,
		"token":         true,
		"output_tokens": false,
		"model":         false,
	}
	for key, want := range tests {
		if got := isSensitiveKey(key); got != want {
			t.Errorf("isSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug"}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	l := NewEventLogger(logger)
	l.Handle(events.Event{
		Kind:     events.KindBudgetExceeded,
		Scope:    "daily",
		Limit:    10,
		Consumed: 10.5,
	})

	m := decode(t, &buf)
	if m["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", m["level"])
	}
	if m["kind"] != "budget-exceeded" || m["scope"] != "daily" {
		t.Errorf("event fields = %v", m)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		event events.Event
		want  slog.Level
	}{
		{events.Event{Kind: events.KindBudgetWarning}, slog.LevelWarn},
		{events.Event{Kind: events.KindBudgetExceeded}, slog.LevelError},
		{events.Event{Kind: events.KindBreakerOpened}, slog.LevelError},
		{events.Event{Kind: events.KindRequestCompleted, Status: "success"}, slog.LevelInfo},
		{events.Event{Kind: events.KindRequestCompleted, Status: "failed"}, slog.LevelWarn},
		{events.Event{Kind: events.KindCacheHit}, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := Level(tt.event); got != tt.want {
			t.Errorf("Level(%s/%s) = %v, want %v", tt.event.Kind, tt.event.Status, got, tt.want)
		}
	}
}
