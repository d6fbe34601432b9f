package cache

import (
	"context"
	"testing"
	"time"

	"kageforge-hq/forge/pkg/providers"
)

func entry(key, content string, created time.Time, ttl time.Duration) *Entry {
	e := &Entry{
		Key:       key,
		Response:  &providers.Response{ID: "resp-" + key, Provider: "openai", Model: "gpt-4o-mini", Content: content},
		CreatedAt: created,
	}
	if ttl > 0 {
		e.ExpiresAt = created.Add(ttl)
	}
	return e
}

func TestMemoryLayer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	m, err := NewMemoryLayer(2, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryLayer() error = %v", err)
	}
	m.now = func() time.Time { return now }

	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatal("Get() on empty layer hit")
	}

	for _, k := range []string{"a", "b"} {
		if n, err := m.Set(ctx, entry(k, k, now, time.Minute)); err != nil || n != 0 {
			t.Fatalf("Set(%s) = %d, %v", k, n, err)
		}
	}

	// Touch a so b is the least recently used.
	if e, ok, _ := m.Get(ctx, "a"); !ok || e.Response.Content != "a" {
		t.Fatalf("Get(a) = %v, %v", e, ok)
	}
	if n, _ := m.Set(ctx, entry("c", "c", now, time.Minute)); n != 1 {
		t.Errorf("Set(c) evicted %d, want 1", n)
	}
	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("b survived eviction")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("expired entry returned")
	}
	if n, _ := m.Len(ctx); n != 1 {
		t.Errorf("Len() = %d after lazy delete, want 1", n)
	}
	if n, _ := m.PurgeExpired(ctx, now); n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
}

func TestMemoryLayer_ExpiryKeepsReplacement(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	m, err := NewMemoryLayer(4, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return now }

	stale := entry("k", "stale", now.Add(-2*time.Minute), time.Minute)
	m.Set(ctx, stale)

	// A reader that saw the expired entry must not remove a newer one
	// stored under the same key in the meantime.
	fresh := entry("k", "fresh", now, time.Minute)
	m.Set(ctx, fresh)
	if m.removeStale("k", stale) {
		t.Error("removeStale() removed the replacement entry")
	}
	if e, ok, _ := m.Get(ctx, "k"); !ok || e != fresh {
		t.Errorf("Get(k) = %v, %v, want the fresh entry", e, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expired entry returned")
	}
	if n, _ := m.Len(ctx); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestNewMemoryLayer_InvalidSize(t *testing.T) {
	if _, err := NewMemoryLayer(0, time.Minute); err == nil {
		t.Error("NewMemoryLayer(0) succeeded")
	}
}

func TestEntry_WithExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		ttl     time.Duration
		want    time.Time
	}{
		{"no expiry gets layer ttl", time.Time{}, time.Hour, now.Add(time.Hour)},
		{"earlier expiry kept", now.Add(time.Minute), time.Hour, now.Add(time.Minute)},
		{"later expiry capped", now.Add(48 * time.Hour), time.Hour, now.Add(time.Hour)},
		{"zero ttl keeps expiry", now.Add(time.Minute), 0, now.Add(time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Key: "k", ExpiresAt: tt.expires}
			got := e.withExpiry(now, tt.ttl)
			if !got.ExpiresAt.Equal(tt.want) {
				t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, tt.want)
			}
			if !e.ExpiresAt.Equal(tt.expires) {
				t.Error("withExpiry mutated the original entry")
			}
		})
	}
}
