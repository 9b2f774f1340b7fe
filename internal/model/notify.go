package model

import (
	"context"
	"time"
)

// RefreshReport summarizes one pass over the stale insights.
type RefreshReport struct {
	Stale     int
	Refreshed int
	Failed    []string // industry keys whose regeneration failed

	StartedAt time.Time
	Duration  time.Duration
	Err       error // set when the pass could not run at all
}

// Notifier delivers refresh cycle summaries to operators.
type Notifier interface {
	Notify(ctx context.Context, report RefreshReport) error
}
