package cache

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// StartJanitor purges expired entries on the given cron schedule until ctx
// is done or StopJanitor is called. An empty schedule does nothing.
func (e *Engine) StartJanitor(ctx context.Context, schedule string) error {
	if schedule == "" {
		e.logger.Info("janitor schedule not configured, skipping")
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.janitor != nil {
		return fmt.Errorf("janitor already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		n := e.PurgeExpired(ctx)
		if n > 0 {
			e.logger.Info("janitor purged expired entries", "count", n)
		} else {
			e.logger.Debug("janitor found no expired entries")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	c.Start()
	e.janitor = c

	e.logger.Info("cache janitor started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		e.StopJanitor()
	}()
	return nil
}

// StopJanitor stops the janitor and waits for a running purge to finish.
func (e *Engine) StopJanitor() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.janitor == nil {
		return
	}
	<-e.janitor.Stop().Done()
	e.janitor = nil
	e.logger.Info("cache janitor stopped")
}
