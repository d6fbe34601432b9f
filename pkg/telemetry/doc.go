// Package telemetry groups the gateway's observability components.
//
// # Components
//
//   - logging: structured slog logging with API key redaction and request
//     context propagation
//   - metrics: Prometheus collectors for requests, providers, cache and spend
//   - tracing: OpenTelemetry spans around routing and provider calls
//   - health: liveness and readiness checks
//
// A disabled tracing config yields a no-op tracer. Metrics are nil when
// disabled and callers check for that.
package telemetry
