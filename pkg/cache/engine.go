package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"kageforge-hq/forge/pkg/events"
	"kageforge-hq/forge/pkg/providers"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEmitter sets the event emitter for cache-hit and cache-miss events.
func WithEmitter(em events.Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is the layered response cache.
//
// Engine is thread-safe for concurrent use.
type Engine struct {
	layers     []Layer
	similarity *SimilarityIndex
	counters   *counters
	group      singleflight.Group

	emitter events.Emitter
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	janitor *cron.Cron
}

// New creates an engine over layers, consulted in the given order. sim may
// be nil to disable the similarity fallback.
func New(layers []Layer, sim *SimilarityIndex, opts ...Option) *Engine {
	names := make([]string, 0, len(layers)+2)
	for _, l := range layers {
		names = append(names, l.Name())
	}
	names = append(names, LayerSimilarity, LayerShared)

	e := &Engine{
		layers:     layers,
		similarity: sim,
		counters:   newCounters(names),
		emitter:    events.Nop{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "cache")
	return e
}

// Layers returns the names of the exact layers in lookup order.
func (e *Engine) Layers() []string {
	names := make([]string, len(e.layers))
	for i, l := range e.layers {
		names[i] = l.Name()
	}
	return names
}

// Lookup returns a cached response for req. The returned response is a copy
// tagged with the serving layer.
func (e *Engine) Lookup(ctx context.Context, req *providers.Request) (*providers.Response, bool) {
	key := Key(req)
	now := e.now()

	for i, l := range e.layers {
		entry, ok, err := l.Get(ctx, key)
		if err != nil {
			e.layerFailed(l.Name(), "get", key, err)
			continue
		}
		if !ok {
			continue
		}
		e.promote(ctx, entry, i, now)
		return e.hit(req, entry, l.Name(), 0), true
	}

	if e.similarity != nil {
		vec := e.similarity.Embed(req)
		entry, score, ok := e.similarity.Search(OptionsKey(req), vec)
		if ok {
			return e.hit(req, entry, LayerSimilarity, score), true
		}
		e.logger.Debug("similarity miss", "request_id", req.ID, "best_score", score)
	}

	e.counters.misses.Add(1)
	e.emitter.Emit(events.Event{
		Kind:      events.KindCacheMiss,
		RequestID: req.ID,
		UserID:    req.UserID,
		Model:     req.Model,
	})
	return nil, false
}

// promote copies a hit from layer index from into every layer above it.
func (e *Engine) promote(ctx context.Context, entry *Entry, from int, now time.Time) {
	for _, l := range e.layers[:from] {
		up := entry.withExpiry(now, l.TTL())
		up.Layer = l.Name()
		evicted, err := l.Set(ctx, up)
		if err != nil {
			e.layerFailed(l.Name(), "promote", entry.Key, err)
			continue
		}
		e.counters.layer(l.Name()).evictions.Add(int64(evicted))
	}
}

func (e *Engine) hit(req *providers.Request, entry *Entry, layer string, score float64) *providers.Response {
	e.counters.layer(layer).hits.Add(1)

	resp := entry.Response.Clone()
	resp.CacheLayer = layer
	resp.Similarity = score

	e.emitter.Emit(events.Event{
		Kind:       events.KindCacheHit,
		RequestID:  req.ID,
		UserID:     req.UserID,
		Provider:   resp.Provider,
		Model:      resp.Model,
		Layer:      layer,
		Similarity: score,
	})
	e.logger.Debug("cache hit", "request_id", req.ID, "layer", layer, "similarity", score)
	return resp
}

// Store writes resp through to every exact layer and indexes it for
// similarity lookups.
func (e *Engine) Store(ctx context.Context, req *providers.Request, resp *providers.Response) {
	if resp == nil {
		return
	}
	now := e.now()

	stored := resp.Clone()
	stored.CacheLayer = ""
	stored.Similarity = 0
	base := &Entry{Key: Key(req), Response: stored, CreatedAt: now}

	for _, l := range e.layers {
		entry := base.withExpiry(now, l.TTL())
		entry.Layer = l.Name()
		evicted, err := l.Set(ctx, entry)
		if err != nil {
			e.layerFailed(l.Name(), "set", base.Key, err)
			continue
		}
		e.counters.layer(l.Name()).evictions.Add(int64(evicted))
	}

	if e.similarity != nil {
		entry := base.withExpiry(now, e.similarity.TTL())
		entry.Layer = LayerSimilarity
		entry.Embedding = e.similarity.Embed(req)
		dropped := e.similarity.Add(OptionsKey(req), entry)
		e.counters.layer(LayerSimilarity).evictions.Add(int64(dropped))
	}

	e.counters.writes.Add(1)
}

// Fetch is the miss path run by Fill.
type Fetch func(ctx context.Context) (*providers.Response, error)

// Fill runs fetch for req and stores its result. Concurrent Fill calls for
// the same key and user share one fetch; every caller but the one that ran
// it gets a copy tagged LayerShared and shared set to true.
func (e *Engine) Fill(ctx context.Context, req *providers.Request, fetch Fetch) (resp *providers.Response, shared bool, err error) {
	key := Key(req)
	leader := false

	ch := e.group.DoChan(key+"/"+req.UserID, func() (any, error) {
		leader = true
		resp, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		e.Store(context.WithoutCancel(ctx), req, resp)
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if leader {
			if res.Err != nil {
				return nil, false, res.Err
			}
			return res.Val.(*providers.Response).Clone(), false, nil
		}

		if res.Err != nil {
			// The leader's own cancellation says nothing about this request.
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				resp, err := fetch(ctx)
				if err != nil {
					return nil, false, err
				}
				e.Store(context.WithoutCancel(ctx), req, resp)
				return resp, false, nil
			}
			return nil, false, res.Err
		}

		entry := &Entry{Key: key, Response: res.Val.(*providers.Response)}
		return e.hit(req, entry, LayerShared, 0), true, nil
	}
}

// Purge clears every layer and the similarity index.
func (e *Engine) Purge(ctx context.Context) error {
	var errs []error
	for _, l := range e.layers {
		if err := l.Purge(ctx); err != nil {
			err = layerError(l.Name(), "purge", "", err)
			e.counters.layer(l.Name()).errors.Add(1)
			errs = append(errs, err)
		}
	}
	if e.similarity != nil {
		e.similarity.Purge()
	}
	e.logger.Info("cache purged")
	return errors.Join(errs...)
}

// PurgeExpired drops expired entries from every layer that supports bulk
// expiry and from the similarity index. It returns the number removed.
func (e *Engine) PurgeExpired(ctx context.Context) int {
	now := e.now()
	total := 0
	for _, l := range e.layers {
		ex, ok := l.(Expirer)
		if !ok {
			continue
		}
		n, err := ex.PurgeExpired(ctx, now)
		if err != nil {
			e.layerFailed(l.Name(), "expire", "", err)
			continue
		}
		e.counters.layer(l.Name()).evictions.Add(int64(n))
		total += n
	}
	if e.similarity != nil {
		n := e.similarity.PurgeExpired(now)
		e.counters.layer(LayerSimilarity).evictions.Add(int64(n))
		total += n
	}
	return total
}

// Stats returns a snapshot of the counters and per-layer entry counts.
func (e *Engine) Stats(ctx context.Context) *Stats {
	s := e.counters.snapshot()
	for _, l := range e.layers {
		n, err := l.Len(ctx)
		if err != nil {
			e.layerFailed(l.Name(), "len", "", err)
			continue
		}
		s.Entries[l.Name()] = n
	}
	if e.similarity != nil {
		s.Entries[LayerSimilarity] = e.similarity.Len()
	}
	return s
}

// ResetStats zeroes every counter.
func (e *Engine) ResetStats() {
	e.counters.resetAll()
}

// Close stops the janitor and closes every layer.
func (e *Engine) Close() error {
	e.StopJanitor()

	var errs []error
	for _, l := range e.layers {
		if err := l.Close(); err != nil {
			errs = append(errs, layerError(l.Name(), "close", "", err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) layerFailed(layer, op, key string, err error) {
	e.counters.layer(layer).errors.Add(1)
	e.logger.Warn("cache layer failed, bypassing",
		"error", layerError(layer, op, key, err),
		"layer", layer,
		"op", op,
	)
}
