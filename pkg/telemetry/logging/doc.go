// Package logging builds the gateway's structured logger.
//
// # Usage
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "processing") // includes request_id
//
// Components derive their own logger with logger.With("component", name).
//
// # Redaction
//
// Provider credentials never reach the output:
//
//   - API keys: sk-abc123xyz... → sk-***
//   - Bearer tokens: Bearer abc... → Bearer ***
//   - values under keys such as api_key or authorization keep a 4 character prefix
//
// # Events
//
// EventLogger subscribes to the event dispatcher and logs every event,
// budget and breaker alerts at warn or error.
package logging
