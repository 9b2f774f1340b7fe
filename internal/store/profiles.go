package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/pathwise/internal/model"
)

var _ model.ProfileStore = (*SQLProfileStore)(nil)

const profileColumns = `id, subject, email, name, image_url, COALESCE(industry_key, ''),
	experience, bio, skills, created_at, updated_at`

// SQLProfileStore persists user profile rows keyed by auth subject.
type SQLProfileStore struct {
	db  *DB
	now func() time.Time
}

// NewSQLProfileStore returns a profile store backed by db.
func NewSQLProfileStore(db *DB) *SQLProfileStore {
	return &SQLProfileStore{db: db, now: time.Now}
}

// Get returns the profile row for subject; found is false when none exists.
func (s *SQLProfileStore) Get(ctx context.Context, subject string) (model.UserProfile, bool, error) {
	row := s.db.sql.QueryRowContext(ctx, s.db.rebind(
		"SELECT "+profileColumns+" FROM users WHERE subject = ?"), subject)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserProfile{}, false, nil
	}
	if err != nil {
		return model.UserProfile{}, false, fmt.Errorf("loading profile %s: %w", subject, err)
	}
	return p, true, nil
}

// CreateIfAbsent inserts profile unless its subject already has a row, then
// returns whatever row is stored. Concurrent calls for one subject insert once.
func (s *SQLProfileStore) CreateIfAbsent(ctx context.Context, profile model.UserProfile) (model.UserProfile, error) {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	skills, err := encodeSkills(profile.Skills)
	if err != nil {
		return model.UserProfile{}, err
	}
	now := toMillis(s.now())

	_, err = s.db.sql.ExecContext(ctx, s.db.rebind(`INSERT INTO users
		(id, subject, email, name, image_url, industry_key, experience, bio, skills, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject) DO NOTHING`),
		profile.ID, profile.Subject, profile.Email, profile.Name, profile.ImageURL,
		nullIfEmpty(profile.IndustryKey), profile.Experience, profile.Bio, skills, now, now,
	)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("creating profile %s: %w", profile.Subject, err)
	}

	stored, found, err := s.Get(ctx, profile.Subject)
	if err != nil {
		return model.UserProfile{}, err
	}
	if !found {
		return model.UserProfile{}, fmt.Errorf("creating profile %s: row missing after insert", profile.Subject)
	}
	return stored, nil
}

// Update writes fields and reads the row back inside one transaction.
func (s *SQLProfileStore) Update(ctx context.Context, subject string, fields model.ProfileFields) (model.UserProfile, error) {
	skills, err := encodeSkills(fields.Skills)
	if err != nil {
		return model.UserProfile{}, err
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("beginning profile update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.db.rebind(`UPDATE users
		SET industry_key = ?, experience = ?, bio = ?, skills = ?, updated_at = ?
		WHERE subject = ?`),
		nullIfEmpty(fields.IndustryKey), fields.Experience, fields.Bio, skills, toMillis(s.now()), subject,
	)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("updating profile %s: %w", subject, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("updating profile %s: %w", subject, err)
	}
	if n == 0 {
		return model.UserProfile{}, fmt.Errorf("updating profile %s: %w", subject, model.ErrNotFound)
	}

	p, err := scanProfile(tx.QueryRowContext(ctx, s.db.rebind(
		"SELECT "+profileColumns+" FROM users WHERE subject = ?"), subject))
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("reading updated profile %s: %w", subject, err)
	}

	if err := tx.Commit(); err != nil {
		return model.UserProfile{}, fmt.Errorf("committing profile %s: %w", subject, err)
	}
	return p, nil
}

func scanProfile(row rowScanner) (model.UserProfile, error) {
	var (
		p         model.UserProfile
		skills    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&p.ID, &p.Subject, &p.Email, &p.Name, &p.ImageURL, &p.IndustryKey,
		&p.Experience, &p.Bio, &skills, &createdAt, &updatedAt)
	if err != nil {
		return model.UserProfile{}, err
	}
	if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
		return model.UserProfile{}, fmt.Errorf("decoding skills of %s: %w", p.Subject, err)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

func encodeSkills(skills []string) (string, error) {
	if skills == nil {
		skills = []string{}
	}
	b, err := json.Marshal(skills)
	if err != nil {
		return "", fmt.Errorf("encoding skills: %w", err)
	}
	return string(b), nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
