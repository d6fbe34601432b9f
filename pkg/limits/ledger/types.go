package ledger

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the outcome recorded for a request.
type Status string

// Record statuses.
const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Record is one append-only usage row.
type Record struct {
	// ID is a ULID, so IDs sort in append order.
	ID string `json:"id"`

	RequestID string `json:"request_id"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	CachedTokens   int `json:"cached_tokens,omitempty"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"`

	// Cost is the actual cost in USD; zero for non-billed outcomes.
	Cost float64 `json:"cost"`

	Status  Status `json:"status"`
	Success bool   `json:"success"`

	// CacheLayer is set on records attributed to a cache hit.
	CacheLayer string `json:"cache_layer,omitempty"`

	// Error describes the failure for non-success records.
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	// Since is inclusive, Until exclusive.
	Since time.Time
	Until time.Time

	UserID   string
	Provider string
	Model    string
	Status   Status

	// Limit caps the number of records returned, newest first when set.
	Limit int
}

// Ledger is the append-only usage store.
//
// Implementations must be thread-safe.
type Ledger interface {
	// Append stores rec, assigning ID and Timestamp when empty.
	Append(ctx context.Context, rec *Record) error

	// Query returns the matching records in append order, or the newest
	// Limit records when Limit is set.
	Query(ctx context.Context, f Filter) ([]Record, error)

	// Sum returns the total cost of records in [since, until). An empty
	// userID sums every user.
	Sum(ctx context.Context, since, until time.Time, userID string) (float64, error)

	// Prune deletes records older than before and returns how many.
	Prune(ctx context.Context, before time.Time) (int, error)

	Close() error
}

// prepare fills ID and Timestamp.
func prepare(rec *Record, now func() time.Time) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now()
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	rec.Success = rec.Status == StatusSuccess
}

func (f Filter) matches(r *Record) bool {
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
