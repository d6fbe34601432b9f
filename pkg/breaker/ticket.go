package breaker

import "sync/atomic"

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeCancel
)

// Ticket is the permission for one call. Exactly one of Success, Failure or
// Cancel takes effect; later reports are ignored.
type Ticket struct {
	b          *Breaker
	generation uint64
	probe      bool
	done       atomic.Bool
}

// Probe reports whether the ticket was issued as a half-open probe.
func (t *Ticket) Probe() bool {
	return t.probe
}

// Success records a successful call.
func (t *Ticket) Success() {
	t.finish(outcomeSuccess)
}

// Failure records a failed call.
func (t *Ticket) Failure() {
	t.finish(outcomeFailure)
}

// Cancel releases the ticket without touching any counter. A half-open probe
// slot is returned.
func (t *Ticket) Cancel() {
	t.finish(outcomeCancel)
}

func (t *Ticket) finish(o outcome) {
	if t == nil || !t.done.CompareAndSwap(false, true) {
		return
	}
	t.b.report(t, o)
}
