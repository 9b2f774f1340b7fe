package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amishk599/pathwise/internal/metrics"
	"github.com/amishk599/pathwise/internal/model"
)

// Committer writes onboarding answers to a user's profile row.
type Committer struct {
	store  model.ProfileStore
	logger *slog.Logger
}

// NewCommitter creates a committer writing to store.
func NewCommitter(store model.ProfileStore, logger *slog.Logger) *Committer {
	return &Committer{store: store, logger: logger}
}

// Commit validates fields and applies them to subject's profile in one store
// transaction. Every failure is wrapped in model.ErrProfileCommitFailed.
func (c *Committer) Commit(ctx context.Context, subject string, fields model.ProfileFields) (model.UserProfile, error) {
	fields.IndustryKey = model.NormalizeIndustryKey(fields.IndustryKey)
	fields.Bio = strings.TrimSpace(fields.Bio)
	fields.Skills = normalizeSkills(fields.Skills)

	if err := validate(fields); err != nil {
		metrics.ProfileCommits.WithLabelValues("failure").Inc()
		return model.UserProfile{}, fmt.Errorf("%w: %s: %w", model.ErrProfileCommitFailed, subject, err)
	}

	p, err := c.store.Update(ctx, subject, fields)
	if err != nil {
		metrics.ProfileCommits.WithLabelValues("failure").Inc()
		return model.UserProfile{}, fmt.Errorf("%w: %s: %w", model.ErrProfileCommitFailed, subject, err)
	}

	metrics.ProfileCommits.WithLabelValues("success").Inc()
	c.logger.Debug("profile committed",
		"subject", subject,
		"industry_key", p.IndustryKey,
		"skills", len(p.Skills),
	)
	return p, nil
}

func validate(fields model.ProfileFields) error {
	if fields.Experience < 0 {
		return fmt.Errorf("experience must not be negative, got %d", fields.Experience)
	}
	if fields.IndustryKey == "" {
		return errors.New("industry is required")
	}
	return nil
}

// normalizeSkills trims skills, drops empties and removes case-insensitive
// duplicates, keeping the first spelling.
func normalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
