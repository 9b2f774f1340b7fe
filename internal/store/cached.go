package store

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/amishk599/pathwise/internal/model"
)

var _ model.InsightStore = (*CachedInsightStore)(nil)

// CachedInsightStore keeps fresh insight records in memory in front of a
// durable store. Only fresh records are cached, and never past their
// NextUpdate, so a memory hit is always servable. Misses and expired entries
// fall through to the durable store, which still tells absent from stale.
type CachedInsightStore struct {
	inner  model.InsightStore
	cache  *ttlcache.Cache[string, model.IndustryInsight]
	maxTTL time.Duration
	now    func() time.Time
}

// NewCachedInsightStore wraps inner with an in-memory cache whose entries live
// at most maxTTL. A non-positive maxTTL disables caching. now may be nil to
// use the wall clock.
func NewCachedInsightStore(inner model.InsightStore, maxTTL time.Duration, now func() time.Time) *CachedInsightStore {
	if now == nil {
		now = time.Now
	}
	cache := ttlcache.New[string, model.IndustryInsight](
		ttlcache.WithTTL[string, model.IndustryInsight](maxTTL),
		ttlcache.WithDisableTouchOnHit[string, model.IndustryInsight](),
	)
	go cache.Start()

	return &CachedInsightStore{
		inner:  inner,
		cache:  cache,
		maxTTL: maxTTL,
		now:    now,
	}
}

// Get serves fresh records from memory and loads everything else from the inner store.
func (s *CachedInsightStore) Get(ctx context.Context, key string) (model.IndustryInsight, bool, error) {
	if item := s.cache.Get(key); item != nil {
		if rec := item.Value(); rec.IsFresh(s.now()) {
			return rec, true, nil
		}
		s.cache.Delete(key)
	}

	rec, found, err := s.inner.Get(ctx, key)
	if err != nil || !found {
		return rec, found, err
	}
	s.remember(rec)
	return rec, true, nil
}

// Upsert writes through to the inner store. A failed write evicts the key so
// memory never holds a record the durable store does not.
func (s *CachedInsightStore) Upsert(ctx context.Context, insight model.IndustryInsight) error {
	if err := s.inner.Upsert(ctx, insight); err != nil {
		s.cache.Delete(insight.IndustryKey)
		return err
	}
	s.remember(insight)
	return nil
}

func (s *CachedInsightStore) ListStale(ctx context.Context, asOf time.Time) ([]string, error) {
	return s.inner.ListStale(ctx, asOf)
}

func (s *CachedInsightStore) List(ctx context.Context) ([]model.IndustryInsight, error) {
	return s.inner.List(ctx)
}

// Len reports how many records are held in memory.
func (s *CachedInsightStore) Len() int {
	return s.cache.Len()
}

// Close stops the cache's expiry loop.
func (s *CachedInsightStore) Close() {
	s.cache.Stop()
}

func (s *CachedInsightStore) remember(rec model.IndustryInsight) {
	ttl := rec.NextUpdate.Sub(s.now())
	if ttl <= 0 || s.maxTTL <= 0 {
		return
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.cache.Set(rec.IndustryKey, rec, ttl)
}
