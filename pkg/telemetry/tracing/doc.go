// Package tracing sets up OpenTelemetry tracing for the gateway.
//
// When telemetry.tracing.enabled is true, spans are batched to an OTLP gRPC
// collector; otherwise a noop tracer is used. The router and gateway take
// the trace.Tracer returned by Tracer:
//
//	t, err := tracing.New(ctx, cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer t.Shutdown(context.Background())
//	router := routing.NewRouter(..., routing.WithTracer(t.Tracer()))
//
// Spans: gateway.complete, gateway.complete_stream and router.route.
//
// Incoming W3C traceparent headers are honoured by HTTPMiddleware.
package tracing
