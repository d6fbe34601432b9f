package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 256

// Dispatcher fans events out to subscribers. Each subscriber has its own
// bounded queue drained by one goroutine, so a slow subscriber only loses its
// own events. Dropped events are counted.
//
// Dispatcher is constructed by the caller and injected; there is no
// package-level instance.
type Dispatcher struct {
	logger     *slog.Logger
	bufferSize int
	now        func() time.Time

	mu     sync.RWMutex
	subs   []*subscription
	closed bool

	dropped atomic.Int64
	wg      sync.WaitGroup
}

type subscription struct {
	sub   Subscriber
	queue chan Event
	// syncMu serializes inline delivery with the drain goroutine.
	syncMu sync.Mutex
}

// NewDispatcher creates a dispatcher. bufferSize <= 0 uses DefaultBufferSize.
func NewDispatcher(bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:     logger.With("component", "events"),
		bufferSize: bufferSize,
		now:        time.Now,
	}
}

// Subscribe registers s and starts its delivery goroutine.
func (d *Dispatcher) Subscribe(s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	sub := &subscription{sub: s, queue: make(chan Event, d.bufferSize)}
	d.subs = append(d.subs, sub)

	d.wg.Add(1)
	go d.drain(sub)
}

func (d *Dispatcher) drain(sub *subscription) {
	defer d.wg.Done()
	for e := range sub.queue {
		sub.syncMu.Lock()
		d.deliver(sub, e)
		sub.syncMu.Unlock()
	}
}

func (d *Dispatcher) deliver(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event subscriber panicked",
				"subscriber", sub.sub.Name(),
				"kind", e.Kind,
				"panic", r,
			)
		}
	}()
	sub.sub.Handle(e)
}

// Emit queues e for every subscriber. It never blocks; a full queue drops
// the event for that subscriber.
func (d *Dispatcher) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = d.now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for _, sub := range d.subs {
		select {
		case sub.queue <- e:
		default:
			d.dropped.Add(1)
			d.logger.Debug("event dropped, subscriber queue full",
				"subscriber", sub.sub.Name(),
				"kind", e.Kind,
			)
		}
	}
}

// EmitSync delivers e to every subscriber inline, in subscription order.
func (d *Dispatcher) EmitSync(e Event) {
	if e.Time.IsZero() {
		e.Time = d.now()
	}

	d.mu.RLock()
	subs := append([]*subscription(nil), d.subs...)
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return
	}

	for _, sub := range subs {
		sub.syncMu.Lock()
		d.deliver(sub, e)
		sub.syncMu.Unlock()
	}
}

// Dropped returns the number of events dropped because a queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for queued events to be delivered.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, sub := range d.subs {
		close(sub.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
