package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		retryable bool
		sentinel  error
	}{
		{http.StatusUnauthorized, KindAuth, false, ErrAuth},
		{http.StatusForbidden, KindAuth, false, ErrAuth},
		{http.StatusTooManyRequests, KindRateLimited, true, ErrRateLimited},
		{http.StatusBadRequest, KindInvalidRequest, false, ErrInvalidRequest},
		{http.StatusNotFound, KindInvalidRequest, false, ErrInvalidRequest},
		{http.StatusUnprocessableEntity, KindInvalidRequest, false, ErrInvalidRequest},
		{http.StatusInternalServerError, KindServerError, true, ErrServerError},
		{http.StatusBadGateway, KindServerError, true, ErrServerError},
		{http.StatusServiceUnavailable, KindServerError, true, ErrServerError},
		{http.StatusGatewayTimeout, KindTimeout, true, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ClassifyStatus("openai", tt.status, "boom", nil)
			if err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", err.Kind, tt.kind)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", err.Retryable, tt.retryable)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v) = false", tt.sentinel)
			}
			if err.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", err.StatusCode, tt.status)
			}
		})
	}
}

func TestClassifyStatus_RetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "7")

	err := ClassifyStatus("anthropic", http.StatusTooManyRequests, "slow down", header)
	if err.RetryAfter != 7*time.Second {
		t.Errorf("retry after = %v, want 7s", err.RetryAfter)
	}
}

func TestClassifyTransport(t *testing.T) {
	t.Run("caller cancellation passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := ClassifyTransport(ctx, "p", time.Second, errors.New("dial failed"))
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := ClassifyTransport(context.Background(), "p", time.Second, context.DeadlineExceeded)
		if KindOf(err) != KindTimeout {
			t.Errorf("kind = %s, want timeout", KindOf(err))
		}
		if !IsRetryable(err) {
			t.Error("timeout should be retryable")
		}
	})

	t.Run("transport failure is server error", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := ClassifyTransport(context.Background(), "p", time.Second, cause)
		if KindOf(err) != KindServerError {
			t.Errorf("kind = %s, want server_error", KindOf(err))
		}
		if !errors.Is(err, cause) {
			t.Error("expected error to wrap cause")
		}
	})
}

func TestError_Message(t *testing.T) {
	err := &Error{Provider: "openai", Kind: KindServerError, StatusCode: 500, Message: "internal error"}
	want := `provider "openai" server_error (status 500): internal error`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = NewError("openai", KindTimeout, "", context.DeadlineExceeded)
	if !strings.Contains(err.Error(), "deadline") {
		t.Errorf("Error() should fall back to cause, got %q", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("cancellation should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unclassified errors should not be retryable")
	}
	wrapped := errors.Join(errors.New("ctx"), NewError("p", KindRateLimited, "429", nil))
	if !IsRetryable(wrapped) {
		t.Error("wrapped rate limit should be retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("seconds = %v, want 3s", got)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > time.Minute {
		t.Errorf("http date = %v, want within a minute", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage = %v, want 0", got)
	}
}
