package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	name  string
	mu    sync.Mutex
	got   []Event
	block chan struct{}
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Handle(e Event) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.got = append(r.got, e)
	r.mu.Unlock()
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.got...)
}

func TestDispatcher_Emit(t *testing.T) {
	d := NewDispatcher(8, nil)
	a := &recorder{name: "a"}
	b := &recorder{name: "b"}
	d.Subscribe(a)
	d.Subscribe(b)

	d.Emit(Event{Kind: KindCacheMiss, RequestID: "r1"})
	d.Emit(Event{Kind: KindCacheHit, Layer: "memory"})
	d.Close()

	for _, r := range []*recorder{a, b} {
		got := r.events()
		if len(got) != 2 {
			t.Fatalf("%s received %d events, want 2", r.name, len(got))
		}
		if got[0].Kind != KindCacheMiss || got[1].Tag() != "cache-hit:memory" {
			t.Errorf("%s events = %+v", r.name, got)
		}
		if got[0].Time.IsZero() {
			t.Errorf("%s event time not set", r.name)
		}
	}
}

func TestDispatcher_EmitSyncIsInline(t *testing.T) {
	d := NewDispatcher(8, nil)
	defer d.Close()

	r := &recorder{name: "sync"}
	d.Subscribe(r)

	d.EmitSync(Event{Kind: KindBudgetExceeded, Scope: "daily"})
	if got := r.events(); len(got) != 1 || got[0].Scope != "daily" {
		t.Errorf("events after EmitSync = %+v, want one budget-exceeded", got)
	}
}

func TestDispatcher_EmitNeverBlocks(t *testing.T) {
	d := NewDispatcher(2, nil)
	slow := &recorder{name: "slow", block: make(chan struct{})}
	d.Subscribe(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Emit(Event{Kind: KindRequestStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}

	if d.Dropped() == 0 {
		t.Error("Dropped() = 0, want drops for a full queue")
	}
	close(slow.block)
	d.Close()
}

func TestDispatcher_PanicIsContained(t *testing.T) {
	d := NewDispatcher(4, nil)
	var calls atomic.Int32
	d.Subscribe(SubscriberFunc{ID: "bad", Fn: func(Event) { panic("boom") }})
	d.Subscribe(SubscriberFunc{ID: "good", Fn: func(Event) { calls.Add(1) }})

	d.EmitSync(Event{Kind: KindBreakerOpened})
	d.Emit(Event{Kind: KindBreakerClosed})
	d.Close()

	if got := calls.Load(); got != 2 {
		t.Errorf("good subscriber calls = %d, want 2", got)
	}
}

func TestDispatcher_ClosedIgnoresEvents(t *testing.T) {
	d := NewDispatcher(4, nil)
	r := &recorder{name: "r"}
	d.Subscribe(r)
	d.Close()

	d.Emit(Event{Kind: KindCacheMiss})
	d.EmitSync(Event{Kind: KindCacheMiss})
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if got := len(r.events()); got != 0 {
		t.Errorf("events after close = %d, want 0", got)
	}
}
