// Package health provides liveness and readiness probes for the gateway.
//
// Liveness only reports that the process serves HTTP. Readiness runs the
// registered checks concurrently:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("providers", health.ProvidersCheck(router))
//	checker.RegisterCheck("ledger", health.LedgerCheck(tracker.Ledger()))
//
// Endpoints (mounted by the server):
//
//	GET /health        liveness
//	GET /health/ready  readiness, 503 when degraded
//	GET /version       build information
package health
