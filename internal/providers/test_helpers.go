package providers

import (
	"errors"
	"io"
	"testing"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// TestConfig returns a provider configuration pointing at baseURL with fast
// retries.
func TestConfig(name, providerType, baseURL string) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:         name,
		Type:         providerType,
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Timeout:      2 * time.Second,
		MaxRetries:   1,
		DefaultModel: "test-model",
	}
}

// FastRetry keeps retry backoff short in tests.
func FastRetry() providers.Option {
	return providers.WithBackOff(time.Millisecond, 2*time.Millisecond)
}

// UserRequest creates a single-message request.
func UserRequest(model, content string) *providers.Request {
	return &providers.Request{
		Model:    model,
		Messages: []providers.Message{{Role: providers.RoleUser, Content: content}},
	}
}

// CollectDeltas reads a stream to the end and returns every delta.
func CollectDeltas(t *testing.T, s providers.Stream) []*providers.Delta {
	t.Helper()
	defer s.Close()

	var deltas []*providers.Delta
	for {
		d, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return deltas
		}
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		deltas = append(deltas, d)
	}
}
