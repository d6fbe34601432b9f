package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryLayer is a bounded in-process LRU. TTL is checked on read.
type MemoryLayer struct {
	lru *lru.Cache[string, *Entry]
	ttl time.Duration
	now func() time.Time

	// mu orders writes against expiry removal so a fresh entry stored
	// under an expired key is never dropped.
	mu sync.Mutex
}

// NewMemoryLayer creates a memory layer holding at most maxEntries entries.
func NewMemoryLayer(maxEntries int, ttl time.Duration) (*MemoryLayer, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("memory cache size must be positive, got %d", maxEntries)
	}
	c, err := lru.New[string, *Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryLayer{lru: c, ttl: ttl, now: time.Now}, nil
}

func (m *MemoryLayer) Name() string { return LayerMemory }

func (m *MemoryLayer) TTL() time.Duration { return m.ttl }

func (m *MemoryLayer) Get(_ context.Context, key string) (*Entry, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.Expired(m.now()) {
		m.removeStale(key, e)
		return nil, false, nil
	}
	return e, true, nil
}

// removeStale removes key only while it still maps to stale.
func (m *MemoryLayer) removeStale(key string, stale *Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.lru.Peek(key); !ok || cur != stale {
		return false
	}
	return m.lru.Remove(key)
}

func (m *MemoryLayer) Set(_ context.Context, e *Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lru.Add(e.Key, e) {
		return 1, nil
	}
	return 0, nil
}

func (m *MemoryLayer) Purge(context.Context) error {
	m.lru.Purge()
	return nil
}

// PurgeExpired drops every expired entry.
func (m *MemoryLayer) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, key := range m.lru.Keys() {
		if e, ok := m.lru.Peek(key); ok && e.Expired(now) && m.removeStale(key, e) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryLayer) Len(context.Context) (int, error) {
	return m.lru.Len(), nil
}

func (m *MemoryLayer) Close() error { return nil }
