package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amishk599/pathwise/internal/model"
)

// InsightSource returns the shared insight for an industry, generating it if needed.
type InsightSource interface {
	GetOrCreate(ctx context.Context, industryKey string) (model.IndustryInsight, error)
}

// ProfileCommitter writes onboarding answers to a profile row.
type ProfileCommitter interface {
	Commit(ctx context.Context, subject string, fields model.ProfileFields) (model.UserProfile, error)
}

// ProfileProvisioner makes sure a profile row exists for a subject.
type ProfileProvisioner interface {
	EnsureProfile(ctx context.Context, subject string) (model.UserProfile, bool, error)
}

// Result is the outcome of a completed onboarding.
type Result struct {
	Profile          model.UserProfile     `json:"profile"`
	Insight          model.IndustryInsight `json:"insight"`
	InsightPersisted bool                  `json:"insightPersisted"`
}

// Status is a user's onboarding state.
type Status struct {
	Onboarded bool `json:"isOnboarded"`
}

// Orchestrator runs the onboarding flow: resolve the industry insight, then
// commit the user's profile. The two steps fail independently.
type Orchestrator struct {
	insights    InsightSource
	committer   ProfileCommitter
	provisioner ProfileProvisioner
	logger      *slog.Logger
}

// NewOrchestrator creates an orchestrator from its collaborators.
func NewOrchestrator(insights InsightSource, committer ProfileCommitter, provisioner ProfileProvisioner, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		insights:    insights,
		committer:   committer,
		provisioner: provisioner,
		logger:      logger,
	}
}

// Onboard resolves the insight for industryKey and then commits fields to the
// user's profile. The profile write starts only after the insight step has
// finished. If the commit fails, the insight (already shared and stored) is
// returned alongside an error wrapping model.ErrProfileCommitFailed.
func (o *Orchestrator) Onboard(ctx context.Context, subject, industryKey string, fields model.ProfileFields) (Result, error) {
	if subject == "" {
		return Result{}, model.ErrUnauthorized
	}
	industryKey = model.NormalizeIndustryKey(industryKey)
	if industryKey == "" {
		return Result{}, model.ErrInvalidIndustry
	}

	if _, _, err := o.provisioner.EnsureProfile(ctx, subject); err != nil {
		return Result{}, fmt.Errorf("onboarding %s: %w", subject, err)
	}

	res := Result{InsightPersisted: true}
	insight, err := o.insights.GetOrCreate(ctx, industryKey)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrPersistenceFailed) && insight.IndustryKey != "":
		res.InsightPersisted = false
		o.logger.Warn("insight not persisted, continuing with generated value",
			"subject", subject,
			"industry_key", industryKey,
			"error", err,
		)
	default:
		return Result{}, fmt.Errorf("onboarding %s: %w", subject, err)
	}
	res.Insight = insight

	fields.IndustryKey = industryKey
	profile, err := o.committer.Commit(ctx, subject, fields)
	if err != nil {
		o.logger.Error("profile commit failed after insight resolved",
			"subject", subject,
			"industry_key", industryKey,
			"error", err,
		)
		return res, fmt.Errorf("onboarding %s: %w", subject, err)
	}
	res.Profile = profile

	o.logger.Info("user onboarded",
		"subject", subject,
		"industry_key", industryKey,
		"insight_persisted", res.InsightPersisted,
	)
	return res, nil
}

// Status reports whether subject has completed onboarding, provisioning the
// profile row on first sight. Failures other than a missing identity degrade
// to "not onboarded".
func (o *Orchestrator) Status(ctx context.Context, subject string) (Status, error) {
	if subject == "" {
		return Status{}, model.ErrUnauthorized
	}

	p, _, err := o.provisioner.EnsureProfile(ctx, subject)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return Status{}, err
		}
		o.logger.Warn("onboarding status check failed", "subject", subject, "error", err)
		return Status{Onboarded: false}, nil
	}
	return Status{Onboarded: p.IsOnboarded()}, nil
}

// Insights returns the insight for subject's chosen industry.
func (o *Orchestrator) Insights(ctx context.Context, subject string) (model.IndustryInsight, error) {
	if subject == "" {
		return model.IndustryInsight{}, model.ErrUnauthorized
	}

	p, _, err := o.provisioner.EnsureProfile(ctx, subject)
	if err != nil {
		return model.IndustryInsight{}, fmt.Errorf("loading insights for %s: %w", subject, err)
	}
	if !p.IsOnboarded() {
		return model.IndustryInsight{}, model.ErrNotOnboarded
	}

	insight, err := o.insights.GetOrCreate(ctx, p.IndustryKey)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrPersistenceFailed) && insight.IndustryKey != "":
		o.logger.Warn("serving insight that was not persisted",
			"subject", subject,
			"industry_key", p.IndustryKey,
			"error", err,
		)
	default:
		return model.IndustryInsight{}, fmt.Errorf("loading insights for %s: %w", subject, err)
	}
	return insight, nil
}
