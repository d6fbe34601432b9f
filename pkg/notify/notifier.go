// Package notify sends desktop notifications for budget alerts and opened
// circuit breakers.
package notify

import (
	"fmt"
	"log/slog"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"

	"github.com/gen2brain/beeep"
)

// NotifyFunc delivers one notification.
type NotifyFunc func(title, message string, icon any) error

// Notifier is an events.Subscriber that turns alerts into desktop
// notifications.
type Notifier struct {
	appName string
	notify  NotifyFunc
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithNotifyFunc replaces beeep.Notify, mainly for tests.
func WithNotifyFunc(fn NotifyFunc) Option {
	return func(n *Notifier) { n.notify = fn }
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New creates a notifier. It returns nil when desktop notifications are
// disabled.
func New(cfg config.NotifyConfig, opts ...Option) *Notifier {
	if !cfg.Desktop {
		return nil
	}
	n := &Notifier{
		appName: cfg.AppName,
		notify:  beeep.Notify,
		logger:  slog.Default(),
	}
	if n.appName == "" {
		n.appName = "KageForge"
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "notify")
	return n
}

// Name implements events.Subscriber.
func (n *Notifier) Name() string { return "notify" }

// Handle implements events.Subscriber.
func (n *Notifier) Handle(e events.Event) {
	title, message, ok := n.format(e)
	if !ok {
		return
	}
	if err := n.notify(title, message, ""); err != nil {
		n.logger.Debug("desktop notification failed", "kind", e.Kind, "error", err)
	}
}

func (n *Notifier) format(e events.Event) (title, message string, ok bool) {
	scope := e.Scope
	if e.UserID != "" {
		scope = fmt.Sprintf("%s (%s)", e.Scope, e.UserID)
	}

	switch e.Kind {
	case events.KindBudgetWarning:
		pct := 0.0
		if e.Limit > 0 {
			pct = e.Consumed / e.Limit * 100
		}
		return n.appName + ": budget warning",
			fmt.Sprintf("%s budget at %.0f%% ($%.2f of $%.2f)", scope, pct, e.Consumed, e.Limit), true
	case events.KindBudgetExceeded:
		return n.appName + ": budget exceeded",
			fmt.Sprintf("%s budget of $%.2f reached; requests are being rejected", scope, e.Limit), true
	case events.KindBreakerOpened:
		return n.appName + ": provider unavailable",
			fmt.Sprintf("circuit opened for %s", e.Provider), true
	}
	return "", "", false
}
