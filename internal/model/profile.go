package model

import (
	"context"
	"time"
)

// UserProfile is the stored profile row of one authenticated user.
type UserProfile struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"` // auth provider user id
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	ImageURL    string    `json:"imageUrl"`
	IndustryKey string    `json:"industryKey,omitempty"`
	Experience  int       `json:"experience"`
	Bio         string    `json:"bio"`
	Skills      []string  `json:"skills"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsOnboarded reports whether the user has picked an industry.
func (p UserProfile) IsOnboarded() bool {
	return p.IndustryKey != ""
}

// ProfileFields are the fields written by a profile commit.
type ProfileFields struct {
	IndustryKey string
	Experience  int
	Bio         string
	Skills      []string
}

// Identity is what the auth provider knows about a verified user.
type Identity struct {
	Subject  string
	Email    string
	Name     string
	ImageURL string
}

// ProfileStore persists user profile rows keyed by auth subject.
type ProfileStore interface {
	// Get returns found=false when the user has no row yet.
	Get(ctx context.Context, subject string) (UserProfile, bool, error)
	// CreateIfAbsent inserts profile unless a row for its subject exists,
	// and returns the stored row either way.
	CreateIfAbsent(ctx context.Context, profile UserProfile) (UserProfile, error)
	// Update writes fields in a single transaction and returns the updated row.
	// Returns ErrNotFound when the subject has no row.
	Update(ctx context.Context, subject string, fields ProfileFields) (UserProfile, error)
}

// IdentityDirectory looks up display fields for a verified subject.
type IdentityDirectory interface {
	Lookup(ctx context.Context, subject string) (Identity, error)
}
