package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestController_AcquireRelease(t *testing.T) {
	c := New("a", Config{MaxConcurrent: 2, Mode: ModeQueue, QueueSize: 1, QueueTimeout: time.Second})

	r1, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	r2, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if got := c.InFlight(); got != 2 {
		t.Errorf("InFlight = %d, want 2", got)
	}

	r1()
	r1()
	if got := c.InFlight(); got != 1 {
		t.Errorf("InFlight after double release = %d, want 1", got)
	}
	r2()
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}

func TestController_RejectMode(t *testing.T) {
	c := New("a", Config{MaxConcurrent: 1, Mode: ModeReject})

	release, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = c.Acquire(context.Background())
	var be *BackpressureError
	if !errors.As(err, &be) {
		t.Fatalf("error = %v, want *BackpressureError", err)
	}
	if be.Reason != ReasonAtCapacity {
		t.Errorf("Reason = %v, want %v", be.Reason, ReasonAtCapacity)
	}
	if !errors.Is(err, ErrBackpressure) {
		t.Error("errors.Is(err, ErrBackpressure) = false")
	}
	if got := c.Snapshot().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestController_QueueFull(t *testing.T) {
	c := New("a", Config{MaxConcurrent: 1, Mode: ModeQueue, QueueSize: 1, QueueTimeout: 5 * time.Second})

	release, _ := c.Acquire(context.Background())

	queuedErr := make(chan error, 1)
	go func() {
		r, err := c.Acquire(context.Background())
		if err == nil {
			r()
		}
		queuedErr <- err
	}()
	waitFor(t, func() bool { return c.Queued() == 1 })

	_, err := c.Acquire(context.Background())
	var be *BackpressureError
	if !errors.As(err, &be) || be.Reason != ReasonQueueFull {
		t.Fatalf("error = %v, want queue_full", err)
	}

	release()
	if err := <-queuedErr; err != nil {
		t.Errorf("queued Acquire: %v", err)
	}
}

func TestController_QueueTimeout(t *testing.T) {
	c := New("a", Config{MaxConcurrent: 1, Mode: ModeQueue, QueueSize: 4, QueueTimeout: 20 * time.Millisecond})

	release, _ := c.Acquire(context.Background())
	defer release()

	start := time.Now()
	_, err := c.Acquire(context.Background())
	var be *BackpressureError
	if !errors.As(err, &be) || be.Reason != ReasonQueueTimeout {
		t.Fatalf("error = %v, want queue_timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, want at least the queue timeout", elapsed)
	}
	if got := c.Queued(); got != 0 {
		t.Errorf("Queued = %d, want 0", got)
	}
}

func TestController_CancelWhileQueued(t *testing.T) {
	c := New("a", Config{MaxConcurrent: 1, Mode: ModeQueue, QueueSize: 4, QueueTimeout: 5 * time.Second})

	release, _ := c.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Acquire(ctx)
		errc <- err
	}()
	waitFor(t, func() bool { return c.Queued() == 1 })
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if got := c.Queued(); got != 0 {
		t.Errorf("Queued = %d, want 0", got)
	}
}

func TestController_FIFO(t *testing.T) {
	c := New("a", Config{MaxConcurrent: 1, Mode: ModeQueue, QueueSize: 8, QueueTimeout: 5 * time.Second})
	release, _ := c.Acquire(context.Background())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		waitFor(t, func() bool { return c.Queued() == int64(i+1) })
		// Let the waiter reach the semaphore queue before the next one starts.
		time.Sleep(10 * time.Millisecond)
	}

	release()
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Errorf("order = %v, want [0 1 2]", order)
			break
		}
	}
}

func TestController_Pacing(t *testing.T) {
	c := New("a", Config{MaxConcurrent: 4, Mode: ModeReject, RequestsPerSecond: 1, Burst: 1})

	r, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	r()

	_, err = c.Acquire(context.Background())
	var be *BackpressureError
	if !errors.As(err, &be) || be.Reason != ReasonRateLimited {
		t.Fatalf("error = %v, want rate_limited", err)
	}
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight = %d, want 0 after paced rejection", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add("b", Config{MaxConcurrent: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("a", Config{MaxConcurrent: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("a", Config{}); err == nil {
		t.Error("duplicate Add succeeded")
	}

	snaps := r.Snapshots()
	if len(snaps) != 2 || snaps[0].Provider != "b" || snaps[1].MaxConcurrent != 2 {
		t.Errorf("Snapshots = %+v", snaps)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found")
	}
}
