package providers

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEReader(t *testing.T) {
	input := ": keep-alive\n\n" +
		"event: message_start\ndata: {\"a\":1}\n\n" +
		"data: line one\ndata: line two\n\n" +
		"data: [DONE]"

	r := NewSSEReader(strings.NewReader(input))

	want := []struct{ event, data string }{
		{"message_start", `{"a":1}`},
		{"", "line one\nline two"},
		{"", "[DONE]"},
	}
	for i, w := range want {
		event, data, err := r.Next()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if event != w.event || data != w.data {
			t.Errorf("event %d = (%q, %q), want (%q, %q)", i, event, data, w.event, w.data)
		}
	}

	if _, _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
