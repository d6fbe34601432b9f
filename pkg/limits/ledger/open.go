package ledger

import (
	"fmt"

	"kageforge-hq/forge/pkg/config"
)

// Open creates the ledger selected by cfg.Backend.
func Open(cfg config.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryLedger(), nil
	case "sqlite", "":
		return NewSQLiteLedger(SQLiteConfig{
			Path:        cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
