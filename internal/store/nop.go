package store

import (
	"context"
	"time"

	"github.com/amishk599/pathwise/internal/model"
)

// NopInsightStore is a no-op store used in dry-run mode. It never finds a
// record and discards writes, so every lookup generates a fresh insight.
type NopInsightStore struct{}

func NewNopInsightStore() *NopInsightStore { return &NopInsightStore{} }

func (s *NopInsightStore) Get(context.Context, string) (model.IndustryInsight, bool, error) {
	return model.IndustryInsight{}, false, nil
}
func (s *NopInsightStore) Upsert(context.Context, model.IndustryInsight) error    { return nil }
func (s *NopInsightStore) ListStale(context.Context, time.Time) ([]string, error) { return nil, nil }
func (s *NopInsightStore) List(context.Context) ([]model.IndustryInsight, error)  { return nil, nil }
