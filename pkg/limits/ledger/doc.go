// Package ledger stores the append-only usage ledger.
//
// Every request the gateway finishes or rejects produces one Record: the
// provider and model used, token counts, actual cost and outcome. The ledger
// is the source of truth for budget accounting and usage reports; budget
// counters are rebuilt from it at startup.
//
// Two backends are provided:
//
//   - MemoryLedger keeps records in a slice (tests, ephemeral runs)
//   - SQLiteLedger persists records in a WAL-mode SQLite database
//
// RetentionScheduler prunes records past the retention window on a cron
// schedule.
package ledger
