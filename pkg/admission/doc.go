// Package admission bounds the load sent to each provider.
//
// A Controller hands out a fixed number of in-flight slots. In queue mode
// callers beyond the limit wait in FIFO order, up to QueueSize waiters and
// QueueTimeout per wait; in reject mode they are turned away at once. An
// optional requests-per-second limiter paces dispatches after a slot is
// obtained.
//
//	release, err := c.Acquire(ctx)
//	if err != nil {
//	    return err // *BackpressureError or ctx.Err()
//	}
//	defer release()
package admission
