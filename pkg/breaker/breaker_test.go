package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{FailureThreshold: 3, OpenDuration: 30 * time.Second, HalfOpenProbeLimit: 1}
}

func fail(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ticket, err := b.Allow()
		if err != nil {
			t.Fatalf("Allow() error on failure %d: %v", i+1, err)
		}
		ticket.Failure()
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New("a", testConfig())

	fail(t, b, 2)
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after 2 failures = %v, want %v", got, StateClosed)
	}

	fail(t, b, 1)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after 3 failures = %v, want %v", got, StateOpen)
	}

	_, err := b.Allow()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() on open breaker error = %v, want ErrCircuitOpen", err)
	}
	var oe *OpenError
	if !errors.As(err, &oe) || oe.Provider != "a" || oe.State != StateOpen {
		t.Errorf("OpenError = %+v", oe)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New("a", testConfig())

	fail(t, b, 2)
	ticket, _ := b.Allow()
	ticket.Success()
	fail(t, b, 2)

	snap := b.Snapshot()
	if snap.State != StateClosed {
		t.Errorf("State = %v, want closed", snap.State)
	}
	if snap.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", snap.ConsecutiveFailures)
	}
}

func TestBreaker_HalfOpenAfterOpenDuration(t *testing.T) {
	clock := newFakeClock()
	b := New("a", testConfig(), WithClock(clock.Now))
	fail(t, b, 3)

	clock.Advance(29 * time.Second)
	if b.Ready() {
		t.Error("Ready() before open duration = true, want false")
	}
	if _, err := b.Allow(); err == nil {
		t.Fatal("Allow() before open duration succeeded")
	}

	clock.Advance(time.Second)
	if !b.Ready() {
		t.Error("Ready() after open duration = false, want true")
	}
	ticket, err := b.Allow()
	if err != nil {
		t.Fatalf("Allow() after open duration: %v", err)
	}
	if !ticket.Probe() {
		t.Error("ticket.Probe() = false, want true")
	}
	if got := b.State(); got != StateHalfOpen {
		t.Errorf("state = %v, want %v", got, StateHalfOpen)
	}
}

func TestBreaker_ProbeLimit(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.HalfOpenProbeLimit = 2
	b := New("a", cfg, WithClock(clock.Now))
	fail(t, b, 3)
	clock.Advance(cfg.OpenDuration)

	first, err := b.Allow()
	if err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if _, err := b.Allow(); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	_, err = b.Allow()
	var oe *OpenError
	if !errors.As(err, &oe) || oe.State != StateHalfOpen {
		t.Fatalf("third probe error = %v, want half-open OpenError", err)
	}

	first.Cancel()
	if got := b.Snapshot().ProbesInFlight; got != 1 {
		t.Errorf("ProbesInFlight after cancel = %d, want 1", got)
	}
	if _, err := b.Allow(); err != nil {
		t.Errorf("probe after cancel: %v", err)
	}
}

func TestBreaker_ProbeOutcome(t *testing.T) {
	tests := []struct {
		name      string
		report    func(*Ticket)
		wantState State
	}{
		{name: "success closes", report: (*Ticket).Success, wantState: StateClosed},
		{name: "failure reopens", report: (*Ticket).Failure, wantState: StateOpen},
		{name: "cancel stays half-open", report: (*Ticket).Cancel, wantState: StateHalfOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			b := New("a", testConfig(), WithClock(clock.Now))
			fail(t, b, 3)
			clock.Advance(30 * time.Second)

			ticket, err := b.Allow()
			if err != nil {
				t.Fatalf("Allow(): %v", err)
			}
			tt.report(ticket)

			snap := b.Snapshot()
			if snap.State != tt.wantState {
				t.Errorf("state = %v, want %v", snap.State, tt.wantState)
			}
			switch tt.wantState {
			case StateClosed:
				if snap.ConsecutiveFailures != 0 || snap.ConsecutiveSuccesses != 0 {
					t.Errorf("counters not reset: %+v", snap)
				}
			case StateOpen:
				if !snap.OpenedAt.Equal(clock.Now()) {
					t.Errorf("OpenedAt = %v, want %v", snap.OpenedAt, clock.Now())
				}
			}
		})
	}
}

func TestBreaker_CancelChangesNoCounters(t *testing.T) {
	b := New("a", testConfig())
	fail(t, b, 2)

	for i := 0; i < 10; i++ {
		ticket, err := b.Allow()
		if err != nil {
			t.Fatalf("Allow(): %v", err)
		}
		ticket.Cancel()
	}

	snap := b.Snapshot()
	if snap.ConsecutiveFailures != 2 || snap.State != StateClosed {
		t.Errorf("snapshot = %+v, want 2 failures and closed", snap)
	}
}

func TestBreaker_TicketReportsOnce(t *testing.T) {
	b := New("a", testConfig())
	ticket, _ := b.Allow()
	ticket.Failure()
	ticket.Failure()
	ticket.Success()

	if got := b.Snapshot().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}
}

func TestBreaker_StaleTicketIgnored(t *testing.T) {
	clock := newFakeClock()
	b := New("a", testConfig(), WithClock(clock.Now))

	stale, _ := b.Allow()
	fail(t, b, 3)
	clock.Advance(30 * time.Second)
	probe, _ := b.Allow()

	// A success issued before the breaker opened must not close it.
	stale.Success()
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after stale success = %v, want half_open", got)
	}
	probe.Success()
	if got := b.State(); got != StateClosed {
		t.Errorf("state after probe success = %v, want closed", got)
	}
}

func TestBreaker_Observers(t *testing.T) {
	clock := newFakeClock()
	var got []State
	b := New("a", testConfig(), WithClock(clock.Now), WithObserver(func(tr Transition) {
		if tr.Provider != "a" {
			t.Errorf("Provider = %q, want a", tr.Provider)
		}
		got = append(got, tr.To)
	}))

	fail(t, b, 3)
	clock.Advance(30 * time.Second)
	ticket, _ := b.Allow()
	ticket.Success()

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBreaker_ConcurrentFailuresOpenOnce(t *testing.T) {
	var mu sync.Mutex
	opened := 0
	b := New("a", Config{FailureThreshold: 10, OpenDuration: time.Hour, HalfOpenProbeLimit: 1},
		WithObserver(func(tr Transition) {
			if tr.To == StateOpen {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ticket, err := b.Allow(); err == nil {
				ticket.Failure()
			}
		}()
	}
	wg.Wait()

	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
	if opened != 1 {
		t.Errorf("opened %d times, want 1", opened)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(testConfig())
	for _, name := range []string{"b", "a", "c"} {
		if _, err := r.Add(name); err != nil {
			t.Fatalf("Add(%q): %v", name, err)
		}
	}
	if _, err := r.Add("a"); err == nil {
		t.Error("Add duplicate succeeded")
	}

	a, ok := r.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	fail(t, a, 3)

	snaps := r.Snapshots()
	order := []string{"b", "a", "c"}
	for i, s := range snaps {
		if s.Provider != order[i] {
			t.Errorf("snapshot[%d] = %q, want %q", i, s.Provider, order[i])
		}
	}
	if snaps[1].State != StateOpen {
		t.Errorf("a state = %v, want open", snaps[1].State)
	}

	r.Reset()
	if a.State() != StateClosed {
		t.Errorf("after Reset state = %v, want closed", a.State())
	}
}
