package logging

import (
	"context"
	"log/slog"

	"kageforge-hq/forge/pkg/events"
)

// EventLogger is an event subscriber that writes every gateway event to
// the log.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger creates an event logger.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger.With("component", "events")}
}

// Name returns "logging".
func (l *EventLogger) Name() string { return "logging" }

// Handle logs e at a level matching its severity.
func (l *EventLogger) Handle(e events.Event) {
	attrs := []slog.Attr{slog.String("kind", string(e.Kind))}
	add := func(key, v string) {
		if v != "" {
			attrs = append(attrs, slog.String(key, v))
		}
	}
	add("request_id", e.RequestID)
	add("user_id", e.UserID)
	add("provider", e.Provider)
	add("model", e.Model)
	add("layer", e.Layer)
	add("status", e.Status)
	add("scope", e.Scope)
	add("error_kind", e.ErrorKind)
	add("error", e.Error)
	if e.Latency > 0 {
		attrs = append(attrs, slog.Int64("latency_ms", e.Latency.Milliseconds()))
	}
	if e.Cost > 0 {
		attrs = append(attrs, slog.Float64("cost", e.Cost))
	}
	if e.Limit > 0 {
		attrs = append(attrs, slog.Float64("limit", e.Limit), slog.Float64("consumed", e.Consumed))
	}
	if len(e.Candidates) > 0 {
		attrs = append(attrs, slog.Any("candidates", e.Candidates), slog.String("strategy", e.Strategy))
	}

	l.logger.LogAttrs(context.Background(), Level(e), "gateway event", attrs...)
}

// Level returns the log level for e.
func Level(e events.Event) slog.Level {
	switch e.Kind {
	case events.KindBudgetExceeded, events.KindBreakerOpened:
		return slog.LevelError
	case events.KindBudgetWarning, events.KindBudgetOvershoot, events.KindProviderFailed, events.KindBreakerHalfOpen:
		return slog.LevelWarn
	case events.KindRequestCompleted:
		if e.Status == "failed" {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	case events.KindBreakerClosed:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
