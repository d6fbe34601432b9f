package stub

import (
	"context"
	"errors"
	"testing"
	"time"

	testhelpers "kageforge-hq/forge/internal/providers"
	"kageforge-hq/forge/pkg/providers"
)

func TestStub_Echo(t *testing.T) {
	adapter, err := New(providers.ProviderConfig{Name: "stub", Type: "stub", DefaultModel: "stub-small"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := adapter.Complete(context.Background(), testhelpers.UserRequest("", "ping"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "echo: ping" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Model != "stub-small" {
		t.Errorf("model = %q, want default", resp.Model)
	}
	if resp.Usage.InputTokens != 1 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestStub_StreamReassembles(t *testing.T) {
	adapter, _ := New(providers.ProviderConfig{
		Name:    "stub",
		Options: map[string]string{"reply": "one two three"},
	})

	s, err := adapter.CompleteStream(context.Background(), testhelpers.UserRequest("m", "x"))
	if err != nil {
		t.Fatal(err)
	}
	deltas := testhelpers.CollectDeltas(t, s)
	if len(deltas) != 3 {
		t.Fatalf("deltas = %d, want 3", len(deltas))
	}

	var joined string
	for _, d := range deltas {
		joined += d.Content
	}
	if joined != "one two three" {
		t.Errorf("joined = %q", joined)
	}
	if deltas[2].FinishReason != providers.FinishReasonStop {
		t.Error("last delta should carry the finish reason")
	}
}

func TestStub_LatencyHonorsContext(t *testing.T) {
	adapter, err := New(providers.ProviderConfig{
		Name:    "slow",
		Options: map[string]string{"latency": "1s"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := adapter.Complete(ctx, testhelpers.UserRequest("m", "x")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = adapter.Complete(ctx, testhelpers.UserRequest("m", "x"))
	if providers.KindOf(err) != providers.KindTimeout {
		t.Errorf("kind = %s, want timeout", providers.KindOf(err))
	}
}

func TestStub_BadLatency(t *testing.T) {
	_, err := New(providers.ProviderConfig{Name: "s", Options: map[string]string{"latency": "soon"}})
	if err == nil {
		t.Error("expected config error")
	}
}
