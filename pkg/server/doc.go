// Package server exposes the gateway over HTTP.
//
// Routes:
//
//	POST   /v1/chat/completions   OpenAI-style chat completion (SSE when stream=true)
//	GET    /v1/usage              ledger aggregation (?group_by=provider|model|user|day&from=&to=)
//	GET    /v1/budget             budget scopes
//	GET    /v1/cache/stats        cache counters
//	DELETE /v1/cache              purge every cache layer
//	GET    /v1/providers          breaker, admission and latency per provider
//	GET    /health                liveness
//	GET    /health/ready          readiness
//	GET    /version               build information
//	GET    /metrics               Prometheus scrape endpoint
//
// Gateway errors map to HTTP status codes:
//
//	400 invalid request or no provider for the model
//	402 budget exceeded
//	429 provider backpressure or rate limiting
//	502 provider failure
//	503 every candidate circuit breaker open
//
// Error bodies follow the OpenAI shape and enumerate the failover attempts.
package server
