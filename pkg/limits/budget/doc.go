// Package budget enforces spend limits for the gateway.
//
// # Scopes
//
// Three scopes are supported, each enabled by a non-zero limit:
//
//   - daily: calendar day in the configured time zone
//   - monthly: calendar month in the configured time zone
//   - user: per-user calendar day
//
// Consumed counters reset when a new period starts. In-flight reservations
// carry across the boundary.
//
// # Reserve and settle
//
// Before dispatching a request the gateway reserves its estimated cost:
//
//	res, err := tracker.Reserve(ctx, userID, estimate.TotalCost)
//	if errors.Is(err, budget.ErrBudgetExceeded) {
//	    tracker.RecordRejected(ctx, rec)
//	    return err
//	}
//	resp, err := router.Route(ctx, req)
//	if err != nil {
//	    res.Release(ctx, failedRecord)
//	    return err
//	}
//	res.Commit(ctx, successRecord)
//
// Reserve checks consumed + reserved + estimate against every applicable
// limit under one mutex, so concurrent requests cannot jointly exceed a
// limit by their estimates. Commit replaces the reservation with the actual
// cost. When the actual cost pushes consumed past the limit the overshoot is
// logged and a budget-overshoot event is emitted.
//
// # Alerts
//
// Crossing the alert threshold emits budget-warning asynchronously. The
// first rejection of the period emits budget-exceeded synchronously, and so
// does consumed reaching the limit, even after an earlier rejection. Each
// fires at most once per scope and period.
//
// # Ledger
//
// Every settled request is appended to the usage ledger. At startup Rebuild
// restores the current periods' consumed totals from it, and the ByProvider,
// ByModel, ByUser and ByDay views aggregate it for reporting.
//
// # Thread Safety
//
// All tracker operations are safe for concurrent use.
package budget
