// Package breaker implements the per-provider circuit breaker.
//
// A breaker starts closed. Consecutive failures up to the configured
// threshold open it; an open breaker rejects every call until its open
// duration elapses, after which a bounded number of half-open probes are
// admitted. A probe success closes the breaker, a probe failure reopens it.
//
// Callers obtain a Ticket from Allow and report exactly one outcome:
//
//	ticket, err := b.Allow()
//	if err != nil {
//	    return err // *OpenError, matches ErrCircuitOpen
//	}
//	resp, err := call()
//	switch {
//	case errors.Is(err, context.Canceled):
//	    ticket.Cancel()
//	case err != nil:
//	    ticket.Failure()
//	default:
//	    ticket.Success()
//	}
//
// Cancel never changes counters, so cancelled calls do not count against a
// provider.
package breaker
