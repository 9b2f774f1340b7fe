package identity

import (
	"context"

	"github.com/amishk599/pathwise/internal/model"
)

var _ model.IdentityDirectory = StaticDirectory{}

// StaticDirectory trusts any non-empty subject. Used for local runs without
// an identity provider.
type StaticDirectory struct {
	// EmailDomain, when set, derives Email as subject@EmailDomain.
	EmailDomain string
}

func (d StaticDirectory) Lookup(_ context.Context, subject string) (model.Identity, error) {
	if subject == "" {
		return model.Identity{}, model.ErrUnauthorized
	}
	id := model.Identity{Subject: subject, Name: subject}
	if d.EmailDomain != "" {
		id.Email = subject + "@" + d.EmailDomain
	}
	return id, nil
}
