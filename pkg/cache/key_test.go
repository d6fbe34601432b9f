package cache

import (
	"testing"

	"kageforge-hq/forge/pkg/providers"
)

func request(content string) *providers.Request {
	return &providers.Request{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: "user", Content: content}},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  hello  ", "hello"},
		{"hello \n\n  world\t!", "hello world !"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	temp := 0.2
	otherTemp := 0.7

	base := request("What is Go?")
	tests := []struct {
		name string
		mod  func(r *providers.Request)
		same bool
	}{
		{name: "identical", mod: func(*providers.Request) {}, same: true},
		{name: "whitespace only", mod: func(r *providers.Request) { r.Messages[0].Content = "  What   is\nGo?  " }, same: true},
		{name: "stream flag", mod: func(r *providers.Request) { r.Stream = true }, same: true},
		{name: "request id", mod: func(r *providers.Request) { r.ID = "other" }, same: true},
		{name: "user", mod: func(r *providers.Request) { r.UserID = "bob" }, same: true},
		{name: "content", mod: func(r *providers.Request) { r.Messages[0].Content = "What is Rust?" }},
		{name: "model", mod: func(r *providers.Request) { r.Model = "gpt-4o" }},
		{name: "role", mod: func(r *providers.Request) { r.Messages[0].Role = "system" }},
		{name: "temperature", mod: func(r *providers.Request) { r.Temperature = &otherTemp }},
		{name: "max tokens", mod: func(r *providers.Request) { r.MaxTokens = 10 }},
		{name: "stop", mod: func(r *providers.Request) { r.Stop = []string{"\n"} }},
		{name: "thinking", mod: func(r *providers.Request) { r.Thinking = true }},
		{name: "tools", mod: func(r *providers.Request) { r.Tools = []providers.Tool{{Name: "search"}} }},
	}

	base.Temperature = &temp
	want := Key(base)
	if len(want) != 64 {
		t.Fatalf("Key() length = %d, want 64 hex chars", len(want))
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := request("What is Go?")
			r.Temperature = &temp
			tt.mod(r)
			got := Key(r)
			if (got == want) != tt.same {
				t.Errorf("Key() equal = %v, want %v", got == want, tt.same)
			}
		})
	}
}

func TestKey_ToolParameterOrder(t *testing.T) {
	a := request("x")
	a.Tools = []providers.Tool{{Name: "f", Parameters: map[string]interface{}{"a": 1, "b": 2}}}
	b := request("x")
	b.Tools = []providers.Tool{{Name: "f", Parameters: map[string]interface{}{"b": 2, "a": 1}}}

	if Key(a) != Key(b) {
		t.Error("Key() depends on map order")
	}
}

func TestOptionsKey(t *testing.T) {
	a := request("What is Go?")
	b := request("Tell me about Go")
	if OptionsKey(a) != OptionsKey(b) {
		t.Error("OptionsKey() differs for requests differing only in content")
	}

	b.Model = "other"
	if OptionsKey(a) == OptionsKey(b) {
		t.Error("OptionsKey() ignores model")
	}
}
