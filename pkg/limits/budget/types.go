package budget

import (
	"errors"
	"fmt"
	"time"
)

// Scope names a budget dimension.
type Scope string

// Budget scopes. Daily and monthly are calendar periods in the configured
// time zone; user is a per-user daily limit.
const (
	ScopeDaily   Scope = "daily"
	ScopeMonthly Scope = "monthly"
	ScopeUser    Scope = "user"
)

// ErrBudgetExceeded is the sentinel matched by *BudgetExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrReservationClosed is returned when a reservation is settled twice.
var ErrReservationClosed = errors.New("reservation already settled")

// BudgetExceededError reports the scope that would be pushed past its limit.
type BudgetExceededError struct {
	Scope  Scope
	UserID string

	Limit     float64
	Consumed  float64
	Reserved  float64
	Requested float64
}

func (e *BudgetExceededError) Error() string {
	scope := string(e.Scope)
	if e.UserID != "" {
		scope += ":" + e.UserID
	}
	return fmt.Sprintf("%s budget exceeded: limit $%.4f, consumed $%.4f, reserved $%.4f, requested $%.4f",
		scope, e.Limit, e.Consumed, e.Reserved, e.Requested)
}

// Is reports whether target is ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// ScopeStatus is a point-in-time view of one scope.
type ScopeStatus struct {
	Scope  Scope  `json:"scope"`
	UserID string `json:"user_id,omitempty"`

	// Limit is the configured limit in USD.
	Limit float64 `json:"limit"`

	// Consumed is the actual spend in the current period.
	Consumed float64 `json:"consumed"`

	// Reserved is the estimated cost of requests still in flight.
	Reserved float64 `json:"reserved"`

	// Remaining is Limit - Consumed - Reserved, floored at zero.
	Remaining float64 `json:"remaining"`

	// Percentage is Consumed / Limit.
	Percentage float64 `json:"percentage"`

	PeriodStart time.Time `json:"period_start"`
	Reset       time.Time `json:"reset"`

	// AlertTriggered is true once the alert threshold was crossed this
	// period.
	AlertTriggered bool `json:"alert_triggered"`

	// Exceeded is true once the limit was reached this period.
	Exceeded bool `json:"exceeded"`
}

// Group aggregates ledger records sharing a key.
type Group struct {
	Key string `json:"key"`

	Requests  int `json:"requests"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Rejected  int `json:"rejected"`
	CacheHits int `json:"cache_hits"`

	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	CachedTokens   int `json:"cached_tokens"`
	ThinkingTokens int `json:"thinking_tokens"`

	Cost float64 `json:"cost"`
}
