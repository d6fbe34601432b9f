// Package limits groups the spend accounting used by the gateway.
//
// The package is organized into sub-packages:
//
//   - ledger: the append-only usage ledger (memory, SQLite) with retention
//   - budget: daily and monthly spend limits computed from the ledger
//
// The ledger is the source of truth. A budget tracker rebuilds its period
// totals from the ledger on startup, reserves estimated cost before a
// request is dispatched, and settles the reservation against the actual
// cost once the ledger record is written.
package limits
