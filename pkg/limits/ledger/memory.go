package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps records in memory. It is used in tests and when no
// persistence is configured; records are lost on restart.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []Record
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

func (m *MemoryLedger) Append(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepare(rec, m.now)
	m.records = append(m.records, *rec)
	return nil
}

func (m *MemoryLedger) Query(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for i := range m.records {
		if f.matches(&m.records[i]) {
			out = append(out, m.records[i])
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (m *MemoryLedger) Sum(_ context.Context, since, until time.Time, userID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := Filter{Since: since, Until: until, UserID: userID}
	var total float64
	for i := range m.records {
		if f.matches(&m.records[i]) {
			total += m.records[i].Cost
		}
	}
	return total, nil
}

func (m *MemoryLedger) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, r := range m.records {
		if !r.Timestamp.Before(before) {
			kept = append(kept, r)
		}
	}
	n := len(m.records) - len(kept)
	m.records = kept
	return n, nil
}

func (m *MemoryLedger) Close() error { return nil }
