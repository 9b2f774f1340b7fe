package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/pathwise/internal/metrics"
	"github.com/amishk599/pathwise/internal/model"
)

// DefaultSchedule refreshes stale insights every Sunday at midnight.
const DefaultSchedule = "0 0 * * 0"

// Refresher regenerates stale insights.
type Refresher interface {
	RefreshStale(ctx context.Context, concurrency int) (model.RefreshReport, error)
}

// ParseSchedule parses a standard five-field cron expression. Expressions
// that can never fire, like "0 0 30 2 *", are rejected.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing refresh schedule %q: %w", expr, err)
	}
	if sched.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("refresh schedule %q never fires", expr)
	}
	return sched, nil
}

// Scheduler owns the refresh loop: it wakes at each schedule activation and
// refreshes every stale insight.
type Scheduler struct {
	refresher   Refresher
	schedule    cron.Schedule
	concurrency int
	notifier    model.Notifier
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduler creates a scheduler that refreshes at each activation of schedule,
// regenerating at most concurrency industries at once. Each cycle's report is
// handed to notifier.
func NewScheduler(refresher Refresher, schedule cron.Schedule, concurrency int, notifier model.Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher:   refresher,
		schedule:    schedule,
		concurrency: concurrency,
		notifier:    notifier,
		now:         time.Now,
		logger:      logger,
	}
}

// Run starts the refresh loop. It runs one immediate cycle, then waits for
// each schedule activation. It returns nil when ctx is cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting refresh scheduler",
		"next_run", s.schedule.Next(s.now()).Format(time.RFC3339),
		"concurrency", s.concurrency,
	)

	// Run one immediate refresh cycle.
	s.refresh(ctx)

	for {
		now := s.now()
		next := s.schedule.Next(now)
		if next.IsZero() {
			// The schedule never fires again; idle until shutdown.
			s.logger.Warn("refresh schedule has no future activation, scheduled refreshes disabled")
			<-ctx.Done()
			s.logger.Info("shutting down refresh scheduler")
			return nil
		}
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down refresh scheduler")
			return nil
		case <-time.After(wait):
			s.refresh(ctx)
		}
	}
}

// refresh runs one RefreshStale pass, records its outcome and notifies.
func (s *Scheduler) refresh(ctx context.Context) {
	start := time.Now()
	report, err := s.refresher.RefreshStale(ctx, s.concurrency)
	if err != nil && ctx.Err() != nil {
		return
	}
	report.StartedAt = start
	report.Duration = time.Since(start)

	switch {
	case err != nil:
		report.Err = err
		metrics.RefreshCycles.WithLabelValues("error").Inc()
	case len(report.Failed) > 0:
		metrics.RefreshCycles.WithLabelValues("partial").Inc()
	default:
		metrics.RefreshCycles.WithLabelValues("success").Inc()
	}

	if err := s.notifier.Notify(ctx, report); err != nil {
		s.logger.Error("refresh notification failed", "error", err)
	}
}
