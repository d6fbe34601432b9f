package notify

import (
	"errors"
	"strings"
	"testing"

	"kageforge-hq/forge/pkg/config"
	"kageforge-hq/forge/pkg/events"
)

type sent struct {
	title   string
	message string
}

func TestNew_Disabled(t *testing.T) {
	if n := New(config.NotifyConfig{}); n != nil {
		t.Errorf("New() = %v, want nil when desktop notifications are off", n)
	}
}

func TestNotifier_Handle(t *testing.T) {
	tests := []struct {
		name      string
		event     events.Event
		wantTitle string
		wantText  string
	}{
		{
			name:      "warning",
			event:     events.Event{Kind: events.KindBudgetWarning, Scope: "daily", Limit: 10, Consumed: 8},
			wantTitle: "Forge: budget warning",
			wantText:  "daily budget at 80% ($8.00 of $10.00)",
		},
		{
			name:      "exceeded per user",
			event:     events.Event{Kind: events.KindBudgetExceeded, Scope: "user", UserID: "alice", Limit: 5},
			wantTitle: "Forge: budget exceeded",
			wantText:  "user (alice) budget of $5.00",
		},
		{
			name:      "breaker opened",
			event:     events.Event{Kind: events.KindBreakerOpened, Provider: "openai"},
			wantTitle: "Forge: provider unavailable",
			wantText:  "circuit opened for openai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []sent
			n := New(config.NotifyConfig{Desktop: true, AppName: "Forge"}, WithNotifyFunc(func(title, message string, _ any) error {
				got = append(got, sent{title, message})
				return nil
			}))

			n.Handle(tt.event)

			if len(got) != 1 {
				t.Fatalf("notifications = %d, want 1", len(got))
			}
			if got[0].title != tt.wantTitle {
				t.Errorf("title = %q, want %q", got[0].title, tt.wantTitle)
			}
			if !strings.Contains(got[0].message, tt.wantText) {
				t.Errorf("message = %q, want it to contain %q", got[0].message, tt.wantText)
			}
		})
	}
}

func TestNotifier_IgnoresOtherEvents(t *testing.T) {
	calls := 0
	n := New(config.NotifyConfig{Desktop: true}, WithNotifyFunc(func(string, string, any) error {
		calls++
		return errors.New("no display")
	}))

	n.Handle(events.Event{Kind: events.KindRequestCompleted})
	n.Handle(events.Event{Kind: events.KindCacheHit})
	if calls != 0 {
		t.Errorf("notify calls = %d, want 0", calls)
	}

	// Delivery errors are swallowed.
	n.Handle(events.Event{Kind: events.KindBreakerOpened, Provider: "x"})
	if calls != 1 {
		t.Errorf("notify calls = %d, want 1", calls)
	}
	if n.Name() != "notify" {
		t.Errorf("Name() = %q", n.Name())
	}
}
