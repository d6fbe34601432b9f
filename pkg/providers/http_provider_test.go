package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string, maxRetries int, timeout time.Duration) *HTTPClient {
	return NewHTTPClient(ProviderConfig{
		Name:       "test-provider",
		Type:       "generic",
		BaseURL:    url,
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}, WithBackOff(time.Millisecond, 5*time.Millisecond))
}

func TestHTTPClient_RetryOn5xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": "internal server error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message": "success"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3, 5*time.Second)

	var out struct {
		Message string `json:"message"`
	}
	if err := client.DoJSON(context.Background(), http.MethodPost, server.URL, map[string]bool{"test": true}, &out, nil); err != nil {
		t.Fatalf("expected request to succeed after retries, got error: %v", err)
	}
	if out.Message != "success" {
		t.Errorf("message = %q, want success", out.Message)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHTTPClient_RetryBudgetExhausted(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2, 5*time.Second)

	err := client.DoJSON(context.Background(), http.MethodPost, server.URL, nil, nil, nil)
	if KindOf(err) != KindServerError {
		t.Fatalf("kind = %s, want server_error (err=%v)", KindOf(err), err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHTTPClient_NoRetryOnAuth(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3, 5*time.Second)

	err := client.DoJSON(context.Background(), http.MethodPost, server.URL, nil, nil, nil)

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pe.Kind != KindAuth || pe.Retryable {
		t.Errorf("kind = %s retryable = %v, want auth/false", pe.Kind, pe.Retryable)
	}
	if pe.Message != "invalid api key" {
		t.Errorf("message = %q", pe.Message)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, 20*time.Millisecond)

	err := client.DoJSON(context.Background(), http.MethodGet, server.URL, nil, nil, nil)
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %s, want timeout (err=%v)", KindOf(err), err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("expected errors.Is(err, ErrTimeout)")
	}
}

func TestHTTPClient_CancellationPassesThrough(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := client.DoJSON(ctx, http.MethodGet, server.URL, nil, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	var pe *Error
	if errors.As(err, &pe) {
		t.Errorf("cancellation must not be classified, got %v", pe)
	}
}

func TestHTTPClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, time.Second)

	var out map[string]interface{}
	err := client.DoJSON(context.Background(), http.MethodGet, server.URL, nil, &out, nil)
	if KindOf(err) != KindServerError {
		t.Errorf("kind = %s, want server_error", KindOf(err))
	}
}

func TestHTTPClient_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, time.Second)
	headers := map[string]string{"Authorization": "Bearer k"}
	if err := client.DoJSON(context.Background(), http.MethodPost, server.URL, struct{}{}, nil, headers); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPClient_DoStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: one\n\ndata: two\n\n"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, 50*time.Millisecond)

	body, err := client.DoStream(context.Background(), http.MethodPost, server.URL, struct{}{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()

	// Reading after the per-call timeout must still work.
	time.Sleep(80 * time.Millisecond)

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read after timeout: %v", err)
	}
	if string(data) != "data: one\n\ndata: two\n\n" {
		t.Errorf("body = %q", data)
	}
}

func TestHTTPClient_DoStreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0, time.Second)

	_, err := client.DoStream(context.Background(), http.MethodPost, server.URL, struct{}{}, nil)
	if KindOf(err) != KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", KindOf(err))
	}
}
