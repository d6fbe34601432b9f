package cache

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kageforge-hq/forge/internal/providertest"
	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/providers"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event)     { r.EmitSync(e) }
func (r *recorder) EmitSync(e events.Event) { r.mu.Lock(); r.events = append(r.events, e); r.mu.Unlock() }

func (r *recorder) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Tag())
	}
	return out
}

// brokenLayer fails every operation.
type brokenLayer struct{ calls atomic.Int64 }

var errBroken = errors.New("disk on fire")

func (b *brokenLayer) Name() string       { return "broken" }
func (b *brokenLayer) TTL() time.Duration { return time.Hour }
func (b *brokenLayer) Get(context.Context, string) (*Entry, bool, error) {
	b.calls.Add(1)
	return nil, false, errBroken
}
func (b *brokenLayer) Set(context.Context, *Entry) (int, error) {
	b.calls.Add(1)
	return 0, errBroken
}
func (b *brokenLayer) Purge(context.Context) error      { return errBroken }
func (b *brokenLayer) Len(context.Context) (int, error) { return 0, errBroken }
func (b *brokenLayer) Close() error                     { return nil }

func memoryLayer(t *testing.T) *MemoryLayer {
	t.Helper()
	m, err := NewMemoryLayer(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// serve is the gateway miss path in miniature.
func serve(ctx context.Context, e *Engine, a providers.Adapter, req *providers.Request) (*providers.Response, error) {
	if resp, ok := e.Lookup(ctx, req); ok {
		return resp, nil
	}
	resp, _, err := e.Fill(ctx, req, func(ctx context.Context) (*providers.Response, error) {
		return a.Complete(ctx, req)
	})
	return resp, err
}

func TestEngine_IdenticalRequestServedFromMemory(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	e := New([]Layer{memoryLayer(t)}, nil, WithEmitter(rec))
	adapter := providertest.New("openai").Reply("pong")

	first, err := serve(ctx, e, adapter, providertest.Request("gpt-4o-mini", "ping"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := serve(ctx, e, adapter, providertest.Request("gpt-4o-mini", "  ping "))
	if err != nil {
		t.Fatal(err)
	}

	if adapter.Calls() != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.Calls())
	}
	if first.CacheLayer != "" || second.CacheLayer != LayerMemory {
		t.Errorf("CacheLayer = %q then %q", first.CacheLayer, second.CacheLayer)
	}

	want := first.Clone()
	want.CacheLayer = LayerMemory
	if !reflect.DeepEqual(second, want) {
		t.Errorf("cached response = %+v, want %+v", second, want)
	}

	tags := rec.tags()
	if len(tags) != 2 || tags[0] != "cache-miss" || tags[1] != "cache-hit:memory" {
		t.Errorf("events = %v", tags)
	}

	s := e.Stats(ctx)
	if s.Hits[LayerMemory] != 1 || s.Misses != 1 || s.Writes != 1 || s.HitRate != 0.5 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestEngine_PromotesLowerLayerHits(t *testing.T) {
	ctx := context.Background()
	mem := memoryLayer(t)
	persistent, err := NewPersistentLayer(PersistentConfig{Path: filepath.Join(t.TempDir(), "c.db"), MaxEntries: 10, TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	e := New([]Layer{mem, persistent}, nil)
	defer e.Close()

	req := providertest.Request("m", "hello")
	e.Store(ctx, req, &providers.Response{ID: "r1", Provider: "p", Model: "m", Content: "hi"})

	// Lose the memory copy, as after a restart.
	mem.Purge(ctx)

	resp, ok := e.Lookup(ctx, req)
	if !ok || resp.CacheLayer != LayerPersistent {
		t.Fatalf("Lookup() = %v, %v; want persistent hit", resp, ok)
	}
	resp, ok = e.Lookup(ctx, req)
	if !ok || resp.CacheLayer != LayerMemory {
		t.Errorf("Lookup() after promotion = %v, %v; want memory hit", resp, ok)
	}
	if resp.Content != "hi" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestEngine_FailingLayerIsBypassed(t *testing.T) {
	ctx := context.Background()
	broken := &brokenLayer{}
	e := New([]Layer{broken, memoryLayer(t)}, nil)

	req := providertest.Request("m", "hello")
	e.Store(ctx, req, &providers.Response{Content: "still cached"})

	resp, ok := e.Lookup(ctx, req)
	if !ok || resp.Content != "still cached" {
		t.Fatalf("Lookup() = %v, %v", resp, ok)
	}
	if got := e.Stats(ctx).Errors["broken"]; got < 2 {
		t.Errorf("broken layer errors = %d, want at least 2", got)
	}

	err := e.Purge(ctx)
	if !errors.Is(err, ErrLayer) || !errors.Is(err, errBroken) {
		t.Errorf("Purge() error = %v", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Layer != "broken" || ce.Op != "purge" {
		t.Errorf("Purge() error = %#v", err)
	}
}

func TestEngine_SimilarityFallback(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	sim, err := NewSimilarityIndex(SimilarityConfig{Threshold: 0.8, MaxEntries: 10, Dimensions: 256, TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	e := New([]Layer{memoryLayer(t)}, sim, WithEmitter(rec))

	e.Store(ctx, providertest.Request("m", "What is the capital of France"), &providers.Response{Content: "Paris"})

	resp, ok := e.Lookup(ctx, providertest.Request("m", "what is the capital of france, please?"))
	if !ok {
		t.Fatal("Lookup() missed a near-duplicate request")
	}
	if resp.CacheLayer != LayerSimilarity || resp.Similarity < 0.8 || resp.Content != "Paris" {
		t.Errorf("response = %+v", resp)
	}
	if tags := rec.tags(); tags[len(tags)-1] != "cache-hit:similarity" {
		t.Errorf("events = %v", tags)
	}

	// A different model never matches by similarity.
	if _, ok := e.Lookup(ctx, providertest.Request("other", "What is the capital of France")); ok {
		t.Error("similarity hit across models")
	}
}

func TestEngine_FillCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	e := New([]Layer{memoryLayer(t)}, nil)

	var fetches atomic.Int64
	release := make(chan struct{})
	fetch := func(context.Context) (*providers.Response, error) {
		fetches.Add(1)
		<-release
		return &providers.Response{Content: "once"}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	shared := make([]bool, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, shared[i], errs[i] = e.Fill(ctx, providertest.Request("m", "same"), fetch)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if fetches.Load() != 1 {
		t.Errorf("fetches = %d, want 1", fetches.Load())
	}
	leaders := 0
	for i := range shared {
		if errs[i] != nil {
			t.Errorf("Fill() error = %v", errs[i])
		}
		if !shared[i] {
			leaders++
		}
	}
	if leaders != 1 {
		t.Errorf("leaders = %d, want 1", leaders)
	}
	if got := e.Stats(ctx).Hits[LayerShared]; got != n-1 {
		t.Errorf("shared hits = %d, want %d", got, n-1)
	}
}

func TestEngine_FillDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	e := New([]Layer{memoryLayer(t)}, nil)
	req := providertest.Request("m", "x")

	_, _, err := e.Fill(ctx, req, func(context.Context) (*providers.Response, error) {
		return nil, providertest.ServerError("p")
	})
	if !errors.Is(err, providers.ErrServerError) {
		t.Fatalf("Fill() error = %v", err)
	}
	if _, ok := e.Lookup(ctx, req); ok {
		t.Error("failed fetch was cached")
	}
}

func TestEngine_PurgeAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mem := memoryLayer(t)
	mem.now = clock
	sim, _ := NewSimilarityIndex(SimilarityConfig{Threshold: 0.9, MaxEntries: 10, TTL: time.Minute})
	sim.now = clock
	e := New([]Layer{mem}, sim, WithClock(clock))

	e.Store(ctx, providertest.Request("m", "a"), &providers.Response{Content: "a"})
	e.Store(ctx, providertest.Request("m", "b"), &providers.Response{Content: "b"})

	if s := e.Stats(ctx); s.Entries[LayerMemory] != 2 || s.Entries[LayerSimilarity] != 2 {
		t.Errorf("Entries = %v", s.Entries)
	}

	now = now.Add(2 * time.Minute)
	if n := e.PurgeExpired(ctx); n != 4 {
		t.Errorf("PurgeExpired() = %d, want 4", n)
	}

	e.Store(ctx, providertest.Request("m", "c"), &providers.Response{Content: "c"})
	if err := e.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	if s := e.Stats(ctx); s.Entries[LayerMemory] != 0 || s.Entries[LayerSimilarity] != 0 {
		t.Errorf("Entries after Purge = %v", s.Entries)
	}
}

func TestEngine_Janitor(t *testing.T) {
	e := New([]Layer{memoryLayer(t)}, nil)

	if err := e.StartJanitor(context.Background(), "not a schedule"); err == nil {
		t.Error("StartJanitor() accepted an invalid schedule")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.StartJanitor(ctx, "*/5 * * * *"); err != nil {
		t.Fatalf("StartJanitor() error = %v", err)
	}
	if err := e.StartJanitor(ctx, "*/5 * * * *"); err == nil {
		t.Error("second StartJanitor() succeeded")
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
