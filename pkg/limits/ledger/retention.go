package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionScheduler prunes records older than the retention window on a
// cron schedule.
type RetentionScheduler struct {
	ledger    Ledger
	retention time.Duration
	schedule  string
	now       func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewRetentionScheduler creates a scheduler keeping retentionDays of
// records. schedule is a standard five-field cron expression.
func NewRetentionScheduler(l Ledger, retentionDays int, schedule string, logger *slog.Logger) *RetentionScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionScheduler{
		ledger:    l,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		schedule:  schedule,
		now:       time.Now,
		cron:      cron.New(),
		logger:    logger.With("component", "ledger.retention"),
	}
}

// Start schedules pruning. A zero retention or an empty schedule disables
// the scheduler.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retention <= 0 || s.schedule == "" {
		s.logger.Info("ledger retention not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("retention scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.schedule,
		"retention", s.retention,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce prunes expired records immediately and returns the count.
func (s *RetentionScheduler) RunOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.retention)

	deleted, err := s.ledger.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("ledger pruning failed", "error", err)
		return 0
	}

	if deleted > 0 {
		s.logger.Info("ledger pruning completed",
			"deleted_count", deleted,
			"cutoff", cutoff,
		)
	} else {
		s.logger.Debug("ledger pruning completed, no records deleted")
	}
	return deleted
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when idle.
func (s *RetentionScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
