package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

// Error kinds.
const (
	KindTimeout        ErrorKind = "timeout"
	KindRateLimited    ErrorKind = "rate_limited"
	KindAuth           ErrorKind = "auth"
	KindServerError    ErrorKind = "server_error"
	KindInvalidRequest ErrorKind = "invalid_request"
)

// Retryable reports whether failures of this kind may succeed on retry or on
// another provider.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	default:
		return false
	}
}

// Sentinel errors matched by (*Error).Is.
var (
	ErrTimeout        = errors.New("provider timeout")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrAuth           = errors.New("provider authentication failed")
	ErrServerError    = errors.New("provider server error")
	ErrInvalidRequest = errors.New("invalid provider request")
)

var kindSentinels = map[ErrorKind]error{
	KindTimeout:        ErrTimeout,
	KindRateLimited:    ErrRateLimited,
	KindAuth:           ErrAuth,
	KindServerError:    ErrServerError,
	KindInvalidRequest: ErrInvalidRequest,
}

// Error is the single failure type returned by adapters.
type Error struct {
	// Provider is the name of the provider that failed
	Provider string

	// Kind classifies the failure
	Kind ErrorKind

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Retryable mirrors Kind.Retryable unless the adapter knows better
	Retryable bool

	// RetryAfter is the provider-requested wait, if any
	RetryAfter time.Duration

	// Message is a short human-readable description
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// NewError builds an Error with Retryable derived from kind.
func NewError(provider string, kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Provider:  provider,
		Kind:      kind,
		Retryable: kind.Retryable(),
		Message:   message,
		Cause:     cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %q %s: %s", e.Provider, e.Kind, msg)
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// IsRetryable reports whether err is a retryable provider failure.
// Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// KindOf returns the kind of a provider failure, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ClassifyStatus maps a non-2xx HTTP response to an Error.
func ClassifyStatus(provider string, status int, body string, header http.Header) *Error {
	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status >= 500:
		kind = KindServerError
	default:
		kind = KindInvalidRequest
	}

	e := NewError(provider, kind, body, nil)
	e.StatusCode = status
	if kind == KindRateLimited && header != nil {
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return e
}

// ClassifyTransport maps a failed round trip to an Error. parent is the
// caller's context; a cancelled parent yields context.Canceled unwrapped,
// while an expired per-call deadline becomes a timeout.
func ClassifyTransport(parent context.Context, provider string, timeout time.Duration, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) || parent.Err() != nil {
		return NewError(provider, KindTimeout, fmt.Sprintf("request timeout after %s", timeout), err)
	}
	return NewError(provider, KindServerError, "transport failure", err)
}

// ConfigError represents an adapter configuration error.
type ConfigError struct {
	// Provider is the name of the provider with invalid configuration
	Provider string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
