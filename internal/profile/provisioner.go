package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/amishk599/pathwise/internal/model"
)

// Provisioner makes sure every verified user has a profile row.
type Provisioner struct {
	store     model.ProfileStore
	directory model.IdentityDirectory
	logger    *slog.Logger
}

// NewProvisioner creates a provisioner that fills new rows from directory.
func NewProvisioner(store model.ProfileStore, directory model.IdentityDirectory, logger *slog.Logger) *Provisioner {
	return &Provisioner{store: store, directory: directory, logger: logger}
}

// EnsureProfile returns subject's profile row, creating it from the identity
// directory when missing. created reports whether this call inserted the row.
// Safe to call repeatedly and concurrently for one subject.
func (p *Provisioner) EnsureProfile(ctx context.Context, subject string) (model.UserProfile, bool, error) {
	if subject == "" {
		return model.UserProfile{}, false, model.ErrUnauthorized
	}

	existing, found, err := p.store.Get(ctx, subject)
	if err != nil {
		return model.UserProfile{}, false, fmt.Errorf("%w: %w", model.ErrPersistenceFailed, err)
	}
	if found {
		return existing, false, nil
	}

	id, err := p.directory.Lookup(ctx, subject)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return model.UserProfile{}, false, err
		}
		return model.UserProfile{}, false, fmt.Errorf("looking up identity %s: %w", subject, err)
	}

	newID := uuid.NewString()
	stored, err := p.store.CreateIfAbsent(ctx, model.UserProfile{
		ID:       newID,
		Subject:  subject,
		Email:    id.Email,
		Name:     id.Name,
		ImageURL: id.ImageURL,
		Skills:   []string{},
	})
	if err != nil {
		return model.UserProfile{}, false, fmt.Errorf("%w: %w", model.ErrPersistenceFailed, err)
	}

	created := stored.ID == newID
	if created {
		p.logger.Info("profile created", "subject", subject, "id", stored.ID)
	}
	return stored, created, nil
}
