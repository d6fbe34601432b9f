package routing

import (
	"errors"
	"fmt"
	"strings"

	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/providers"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrNoCandidates is returned when no provider can serve the request.
	ErrNoCandidates = errors.New("no candidate providers")

	// ErrCircuitOpen is returned when every candidate's breaker is open.
	// It is the same sentinel as breaker.ErrCircuitOpen.
	ErrCircuitOpen = breaker.ErrCircuitOpen

	// ErrAllProvidersFailed is returned when all failover attempts are exhausted.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrAborted is returned when a non-retryable failure or cancellation
	// stopped failover.
	ErrAborted = errors.New("routing aborted")

	// ErrInvalidStrategy is returned when an unknown routing strategy is configured.
	ErrInvalidStrategy = errors.New("invalid routing strategy")
)

// NoCandidatesError is returned when no enabled provider serves the model
// with the required capabilities.
type NoCandidatesError struct {
	// Model is the requested model ("" for provider defaults).
	Model string

	// Provider is the provider hint, if any.
	Provider string

	// Capabilities are the required capabilities.
	Capabilities []providers.Capability
}

// Error implements the error interface.
func (e *NoCandidatesError) Error() string {
	var b strings.Builder
	b.WriteString("no provider can serve")
	if e.Model != "" {
		fmt.Fprintf(&b, " model %q", e.Model)
	} else {
		b.WriteString(" the default model")
	}
	if e.Provider != "" {
		fmt.Fprintf(&b, " on provider %q", e.Provider)
	}
	if len(e.Capabilities) > 0 {
		caps := make([]string, len(e.Capabilities))
		for i, c := range e.Capabilities {
			caps[i] = string(c)
		}
		fmt.Fprintf(&b, " with capabilities [%s]", strings.Join(caps, ", "))
	}
	return b.String()
}

// Is implements error matching for errors.Is().
func (e *NoCandidatesError) Is(target error) bool {
	return target == ErrNoCandidates
}

// CircuitOpenError is returned when every candidate's breaker is open.
// No adapter was called.
type CircuitOpenError struct {
	// Breakers holds the state of each candidate's breaker.
	Breakers []breaker.Snapshot
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	parts := make([]string, len(e.Breakers))
	for i, s := range e.Breakers {
		parts[i] = fmt.Sprintf("%s=%s since %s", s.Provider, s.State, s.OpenedAt.Format("15:04:05"))
	}
	return fmt.Sprintf("all candidate circuit breakers open (%s)", strings.Join(parts, ", "))
}

// Is implements error matching for errors.Is().
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// AllProvidersFailedError is returned when all failover attempts have been
// exhausted and no provider could successfully handle the request.
type AllProvidersFailedError struct {
	// Model is the requested model.
	Model string

	// Attempts enumerates every candidate tried or skipped.
	Attempts []Attempt

	// Breakers holds the final breaker states of the candidates.
	Breakers []breaker.Snapshot

	// LastError is the error from the last attempted provider.
	LastError error
}

// Error implements the error interface.
func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed for model %q (attempts: %s)",
		e.Model, formatAttempts(e.Attempts))
}

// Is implements error matching for errors.Is().
func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *AllProvidersFailedError) Unwrap() error {
	return e.LastError
}

// AbortedError is returned when failover stopped early: a non-retryable
// provider failure or caller cancellation.
type AbortedError struct {
	// Attempts enumerates every candidate tried before the abort.
	Attempts []Attempt

	// Err is the provider error or ctx.Err().
	Err error
}

// Error implements the error interface.
func (e *AbortedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("routing aborted: %v", e.Err)
	}
	return fmt.Sprintf("routing aborted: %v (attempts: %s)", e.Err, formatAttempts(e.Attempts))
}

// Is implements error matching for errors.Is().
func (e *AbortedError) Is(target error) bool {
	return target == ErrAborted
}

// Unwrap returns the cause, so errors.Is(err, context.Canceled) holds for
// cancelled requests.
func (e *AbortedError) Unwrap() error {
	return e.Err
}

// InvalidStrategyError is returned when the configured routing strategy
// is not recognized.
type InvalidStrategyError struct {
	// Strategy is the invalid strategy name.
	Strategy string

	// AvailableStrategies contains the valid strategy names.
	AvailableStrategies []string
}

// Error implements the error interface.
func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("invalid routing strategy %q (available strategies: %s)",
		e.Strategy, strings.Join(e.AvailableStrategies, ", "))
}

// Is implements error matching for errors.Is().
func (e *InvalidStrategyError) Is(target error) bool {
	return target == ErrInvalidStrategy
}

// AttemptsOf returns the attempts carried by a routing error.
func AttemptsOf(err error) []Attempt {
	var all *AllProvidersFailedError
	if errors.As(err, &all) {
		return all.Attempts
	}
	var ab *AbortedError
	if errors.As(err, &ab) {
		return ab.Attempts
	}
	return nil
}

func formatAttempts(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "none"
	}
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		if a.Message != "" {
			parts[i] = fmt.Sprintf("%s: %s: %s", a.Provider, a.Kind, a.Message)
		} else {
			parts[i] = fmt.Sprintf("%s: %s", a.Provider, a.Kind)
		}
	}
	return strings.Join(parts, "; ")
}
