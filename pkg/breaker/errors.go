package breaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen matches any rejection by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker open")

// OpenError is returned by Allow when the breaker rejects a call.
type OpenError struct {
	// Provider is the breaker's provider name.
	Provider string

	// State is open, or half_open when every probe slot is taken.
	State State

	// OpenedAt is when the breaker last opened.
	OpenedAt time.Time

	// RetryAt is when the breaker will admit a probe.
	RetryAt time.Time
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit breaker for provider %q is half-open with no probe slots", e.Provider)
	}
	return fmt.Sprintf("circuit breaker for provider %q is open since %s (retry at %s)",
		e.Provider, e.OpenedAt.Format(time.RFC3339), e.RetryAt.Format(time.RFC3339))
}

// Is implements error matching for errors.Is().
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
