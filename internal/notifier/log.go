package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/pathwise/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes refresh summaries to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each refresh summary via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the report. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, r model.RefreshReport) error {
	if r.Err != nil {
		n.logger.Error("insight refresh did not run", "error", r.Err)
		return nil
	}
	args := []any{
		"stale", r.Stale,
		"refreshed", r.Refreshed,
		"failed", len(r.Failed),
		"duration", r.Duration.String(),
	}
	if len(r.Failed) > 0 {
		args = append(args, "failed_keys", r.Failed)
		n.logger.Warn("insight refresh finished with failures", args...)
		return nil
	}
	n.logger.Info("insight refresh finished", args...)
	return nil
}
