package admission

import (
	"errors"
	"fmt"
)

// ErrBackpressure matches every admission rejection.
var ErrBackpressure = errors.New("provider backpressure")

// Reason explains an admission rejection.
type Reason string

// Rejection reasons.
const (
	ReasonQueueFull    Reason = "queue_full"
	ReasonQueueTimeout Reason = "queue_timeout"
	ReasonAtCapacity   Reason = "at_capacity"
	ReasonRateLimited  Reason = "rate_limited"
)

// BackpressureError is returned when a provider cannot take another call.
type BackpressureError struct {
	Provider string
	Reason   Reason
	InFlight int64
	Queued   int64
}

// Error implements the error interface.
func (e *BackpressureError) Error() string {
	return fmt.Sprintf("provider %q backpressure: %s (in flight %d, queued %d)",
		e.Provider, e.Reason, e.InFlight, e.Queued)
}

// Is implements error matching for errors.Is().
func (e *BackpressureError) Is(target error) bool {
	return target == ErrBackpressure
}
