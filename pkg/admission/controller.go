package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Mode is the behavior when every slot is taken.
type Mode string

// Admission modes.
const (
	ModeQueue  Mode = "queue"
	ModeReject Mode = "reject"
)

// Config holds one provider's admission limits.
type Config struct {
	// MaxConcurrent is the number of in-flight slots.
	MaxConcurrent int

	// Mode is queue or reject.
	Mode Mode

	// QueueSize bounds the number of waiting callers in queue mode.
	QueueSize int

	// QueueTimeout bounds how long a caller may wait for a slot.
	QueueTimeout time.Duration

	// RequestsPerSecond paces dispatches. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the pacing burst.
	Burst int
}

// Snapshot is a point-in-time view of a controller.
type Snapshot struct {
	Provider      string `json:"provider"`
	Mode          Mode   `json:"mode"`
	InFlight      int64  `json:"in_flight"`
	Queued        int64  `json:"queued"`
	MaxConcurrent int    `json:"max_concurrent"`
	QueueSize     int    `json:"queue_size"`
	Rejected      int64  `json:"rejected"`
}

// Controller admits calls to one provider. Slots are handed out in FIFO order
// by a weighted semaphore; waiters beyond QueueSize are rejected immediately.
//
// Controller is independent of the circuit breaker and safe for concurrent use.
type Controller struct {
	name    string
	cfg     Config
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	inFlight atomic.Int64
	queued   atomic.Int64
	rejected atomic.Int64
}

// New creates a controller for the named provider.
func New(name string, cfg Config) *Controller {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeQueue
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	c := &Controller{
		name: name,
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return c
}

// Name returns the provider name.
func (c *Controller) Name() string {
	return c.name
}

// Acquire obtains an in-flight slot. The returned release func must be called
// exactly once when the call finishes; extra calls are ignored.
//
// It returns *BackpressureError when the queue is full, the queue timeout
// elapses, or the controller is in reject mode at capacity. If ctx ends while
// waiting, ctx.Err() is returned.
func (c *Controller) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !c.sem.TryAcquire(1) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.pace(ctx); err != nil {
		c.sem.Release(1)
		return nil, err
	}

	c.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			c.inFlight.Add(-1)
			c.sem.Release(1)
		})
	}, nil
}

// wait queues for a slot.
func (c *Controller) wait(ctx context.Context) error {
	if c.cfg.Mode == ModeReject {
		return c.reject(ReasonAtCapacity)
	}

	if c.queued.Add(1) > int64(c.cfg.QueueSize) {
		c.queued.Add(-1)
		return c.reject(ReasonQueueFull)
	}
	defer c.queued.Add(-1)

	waitCtx, cancel := c.queueContext(ctx)
	defer cancel()

	if err := c.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.reject(ReasonQueueTimeout)
	}
	return nil
}

// pace applies the optional requests-per-second limiter.
func (c *Controller) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if c.cfg.Mode == ModeReject {
		if !c.limiter.Allow() {
			return c.reject(ReasonRateLimited)
		}
		return nil
	}

	waitCtx, cancel := c.queueContext(ctx)
	defer cancel()

	if err := c.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.reject(ReasonRateLimited)
	}
	return nil
}

func (c *Controller) queueContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueueTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.QueueTimeout)
}

func (c *Controller) reject(reason Reason) error {
	c.rejected.Add(1)
	return &BackpressureError{
		Provider: c.name,
		Reason:   reason,
		InFlight: c.inFlight.Load(),
		Queued:   c.queued.Load(),
	}
}

// InFlight returns the number of calls holding a slot.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}

// Queued returns the number of callers waiting for a slot.
func (c *Controller) Queued() int64 {
	return c.queued.Load()
}

// Snapshot returns the controller's counters.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Provider:      c.name,
		Mode:          c.cfg.Mode,
		InFlight:      c.inFlight.Load(),
		Queued:        c.queued.Load(),
		MaxConcurrent: c.cfg.MaxConcurrent,
		QueueSize:     c.cfg.QueueSize,
		Rejected:      c.rejected.Load(),
	}
}
