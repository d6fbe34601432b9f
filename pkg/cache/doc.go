// Package cache implements the multi-tier response cache that sits in front
// of the provider router.
//
// # Layers
//
// Exact-match layers are consulted in a fixed order and the first hit wins:
//
//   - memory: bounded in-process LRU, TTL checked on read
//   - persistent: local SQLite table (modernc.org/sqlite)
//   - remote: optional shared Postgres table (lib/pq)
//
// When every exact layer misses, the similarity index compares a
// feature-hashed embedding of the conversation against recently stored
// requests with the same options and returns the closest entry above the
// configured threshold.
//
// A hit from a lower layer is promoted into the layers above it. Hits are
// tagged "cache-hit:<layer>" on the event surface.
//
// # Failure handling
//
// A failing layer never fails a request. Its error is wrapped in *Error,
// logged, counted and the layer is bypassed for that call.
//
// # Usage
//
//	engine, err := cache.Open(cfg.Cache, cache.WithLogger(logger), cache.WithEmitter(dispatcher))
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	if resp, ok := engine.Lookup(ctx, req); ok {
//	    return resp, nil
//	}
package cache
