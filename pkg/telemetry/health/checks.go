package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/limits/ledger"
	"kageforge-hq/forge/pkg/routing"
)

// ProvidersCheck fails when every provider's breaker is open.
func ProvidersCheck(r *routing.Router) CheckFunc {
	return func(ctx context.Context) error {
		statuses := r.Status()
		if len(statuses) == 0 {
			return fmt.Errorf("no providers configured")
		}

		var open []string
		for _, s := range statuses {
			if s.Breaker.State == breaker.StateOpen {
				open = append(open, s.Name)
			}
		}
		if len(open) == len(statuses) {
			return fmt.Errorf("all provider breakers open: %s", strings.Join(open, ", "))
		}
		return nil
	}
}

// LedgerCheck fails when the usage ledger cannot be read.
func LedgerCheck(l ledger.Ledger) CheckFunc {
	return func(ctx context.Context) error {
		now := time.Now()
		if _, err := l.Sum(ctx, now.Add(-time.Minute), now, ""); err != nil {
			return fmt.Errorf("ledger unavailable: %w", err)
		}
		return nil
	}
}
