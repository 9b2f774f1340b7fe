package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/pathwise/internal/model"
)

var _ model.InsightStore = (*SQLInsightStore)(nil)

// SQLInsightStore keeps one industry insight row per industry key.
type SQLInsightStore struct {
	db *DB
}

// NewSQLInsightStore returns an insight store backed by db.
func NewSQLInsightStore(db *DB) *SQLInsightStore {
	return &SQLInsightStore{db: db}
}

// Get returns the stored record for key. found is false when no row exists;
// a stale row is returned as found.
func (s *SQLInsightStore) Get(ctx context.Context, key string) (model.IndustryInsight, bool, error) {
	row := s.db.sql.QueryRowContext(ctx, s.db.rebind(
		"SELECT industry_key, payload, last_updated, next_update FROM industry_insights WHERE industry_key = ?"),
		key,
	)
	insight, err := scanInsight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IndustryInsight{}, false, nil
	}
	if err != nil {
		return model.IndustryInsight{}, false, fmt.Errorf("loading insight %s: %w", key, err)
	}
	return insight, true, nil
}

// Upsert inserts the record or replaces every column of the existing one.
func (s *SQLInsightStore) Upsert(ctx context.Context, insight model.IndustryInsight) error {
	payload, err := json.Marshal(insight.Payload)
	if err != nil {
		return fmt.Errorf("encoding insight payload for %s: %w", insight.IndustryKey, err)
	}

	_, err = s.db.sql.ExecContext(ctx, s.db.rebind(`INSERT INTO industry_insights (industry_key, payload, last_updated, next_update)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (industry_key) DO UPDATE SET
			payload = excluded.payload,
			last_updated = excluded.last_updated,
			next_update = excluded.next_update`),
		insight.IndustryKey, string(payload), toMillis(insight.LastUpdated), toMillis(insight.NextUpdate),
	)
	if err != nil {
		return fmt.Errorf("upserting insight %s: %w", insight.IndustryKey, err)
	}
	return nil
}

// ListStale returns the keys whose next_update is at or before asOf.
func (s *SQLInsightStore) ListStale(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx, s.db.rebind(
		"SELECT industry_key FROM industry_insights WHERE next_update <= ? ORDER BY industry_key"),
		toMillis(asOf),
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale insights: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning stale insight key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing stale insights: %w", err)
	}
	return keys, nil
}

// List returns every stored insight ordered by key.
func (s *SQLInsightStore) List(ctx context.Context) ([]model.IndustryInsight, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT industry_key, payload, last_updated, next_update FROM industry_insights ORDER BY industry_key")
	if err != nil {
		return nil, fmt.Errorf("listing insights: %w", err)
	}
	defer rows.Close()

	var out []model.IndustryInsight
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}
		out = append(out, insight)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing insights: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsight(row rowScanner) (model.IndustryInsight, error) {
	var (
		insight     model.IndustryInsight
		payload     string
		lastUpdated int64
		nextUpdate  int64
	)
	if err := row.Scan(&insight.IndustryKey, &payload, &lastUpdated, &nextUpdate); err != nil {
		return model.IndustryInsight{}, err
	}
	if err := json.Unmarshal([]byte(payload), &insight.Payload); err != nil {
		return model.IndustryInsight{}, fmt.Errorf("decoding payload of %s: %w", insight.IndustryKey, err)
	}
	insight.LastUpdated = fromMillis(lastUpdated)
	insight.NextUpdate = fromMillis(nextUpdate)
	return insight, nil
}
