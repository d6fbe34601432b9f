// Package gateway runs one completion request through the cache, the
// budget tracker and the router.
//
// A request is first looked up in the cache engine. On a miss the gateway
// estimates its tokens and cost, reserves the estimate against the budget,
// routes the request with failover, prices the actual usage and settles the
// reservation with one usage record. Successful responses are written
// through every cache layer. Concurrent identical misses share one routed
// call.
//
// Streaming requests take the same path, except that accounting and the
// cache write happen when the stream ends.
package gateway
