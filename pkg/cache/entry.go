package cache

import (
	"context"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

// Layer names, in lookup order.
const (
	LayerMemory     = "memory"
	LayerPersistent = "persistent"
	LayerRemote     = "remote"
	LayerSimilarity = "similarity"

	// LayerShared marks a response that a concurrent identical request
	// fetched while this one waited.
	LayerShared = "shared"
)

// Entry is one cached response. Entries are never mutated; a write with the
// same key replaces the previous entry.
type Entry struct {
	Key       string
	Response  *providers.Response
	Layer     string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Embedding is set for entries held by the similarity index.
	Embedding []float32
}

// Expired reports whether the entry is past its TTL at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// withExpiry returns a copy of e that expires no later than now+ttl.
func (e *Entry) withExpiry(now time.Time, ttl time.Duration) *Entry {
	clone := *e
	if ttl > 0 {
		limit := now.Add(ttl)
		if clone.ExpiresAt.IsZero() || limit.Before(clone.ExpiresAt) {
			clone.ExpiresAt = limit
		}
	}
	return &clone
}

// Layer is an exact-match cache tier.
type Layer interface {
	// Name returns the layer name used in stats and hit tags.
	Name() string

	// TTL returns the lifetime given to entries written to this layer.
	TTL() time.Duration

	// Get returns the live entry stored under key. Expired entries are
	// deleted and reported as misses.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores e and returns how many entries were evicted to make room.
	Set(ctx context.Context, e *Entry) (evicted int, err error)

	// Purge removes every entry.
	Purge(ctx context.Context) error

	// Len returns the number of stored entries, expired ones included.
	Len(ctx context.Context) (int, error)

	Close() error
}

// Expirer is implemented by layers that can drop expired rows in bulk.
type Expirer interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
