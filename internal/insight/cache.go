// Package insight serves per-industry insights cache-aside, generating each
// missing or stale record at most once at a time per industry key.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/amishk599/pathwise/internal/metrics"
	"github.com/amishk599/pathwise/internal/model"
)

// DefaultGenerationTimeout bounds a single generator call when no timeout is configured.
const DefaultGenerationTimeout = 60 * time.Second

// Cache returns fresh stored insights and regenerates absent or stale ones.
// Concurrent lookups of the same key share one generation.
type Cache struct {
	store     model.InsightStore
	generator model.InsightGenerator
	flights   singleflight.Group // one in-flight generation per industry key
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock used for staleness decisions and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithGenerationTimeout bounds each generator call. Non-positive values keep the default.
func WithGenerationTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCache creates a cache over store that fills misses from generator.
func NewCache(store model.InsightStore, generator model.InsightGenerator, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		generator: generator,
		timeout:   DefaultGenerationTimeout,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the insight for industryKey. A fresh stored record is
// returned without calling the generator. An absent or stale record is
// regenerated once, persisted, and handed to every concurrent caller.
//
// When generation succeeds but the write fails, the generated insight is
// returned together with an error matching model.ErrPersistenceFailed.
// A caller whose ctx ends while waiting gets ctx.Err(); the shared
// generation keeps running for the remaining callers.
func (c *Cache) GetOrCreate(ctx context.Context, industryKey string) (model.IndustryInsight, error) {
	key := model.NormalizeIndustryKey(industryKey)
	if key == "" {
		return model.IndustryInsight{}, model.ErrInvalidIndustry
	}

	existing, found, err := c.store.Get(ctx, key)
	if err != nil {
		return model.IndustryInsight{}, fmt.Errorf("%w: reading insight %s: %w", model.ErrPersistenceFailed, key, err)
	}
	if found && existing.IsFresh(c.now()) {
		metrics.InsightLookups.WithLabelValues("hit").Inc()
		return existing, nil
	}
	if found {
		metrics.InsightLookups.WithLabelValues("stale").Inc()
	} else {
		metrics.InsightLookups.WithLabelValues("miss").Inc()
	}

	// The generation outlives any single waiter, so it must not inherit cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		return c.populate(flightCtx, key)
	})

	select {
	case <-ctx.Done():
		return model.IndustryInsight{}, fmt.Errorf("waiting for insight %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Shared {
			metrics.InsightSharedResults.Inc()
		}
		insight, _ := res.Val.(model.IndustryInsight)
		return insight, res.Err
	}
}

// populate runs inside the per-key flight. It re-reads the store first, since
// a flight that ended after the caller's read may have stored a fresh record.
func (c *Cache) populate(ctx context.Context, key string) (model.IndustryInsight, error) {
	current, found, err := c.store.Get(ctx, key)
	if err != nil {
		return model.IndustryInsight{}, fmt.Errorf("%w: reading insight %s: %w", model.ErrPersistenceFailed, key, err)
	}
	if found && current.IsFresh(c.now()) {
		return current, nil
	}

	c.logger.Info("generating industry insight", "industry_key", key, "refresh", found)

	start := time.Now()
	payload, err := c.generate(ctx, key)
	metrics.InsightGenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InsightGenerations.WithLabelValues("failure").Inc()
		c.logger.Warn("industry insight generation failed",
			"industry_key", key,
			"stale_kept", found,
			"error", err,
		)
		return model.IndustryInsight{}, fmt.Errorf("%w: %s: %w", model.ErrGenerationFailed, key, err)
	}
	metrics.InsightGenerations.WithLabelValues("success").Inc()

	now := c.now()
	insight := model.IndustryInsight{
		IndustryKey: key,
		Payload:     payload,
		LastUpdated: now,
		NextUpdate:  now.Add(model.RefreshInterval),
	}

	if err := c.store.Upsert(ctx, insight); err != nil {
		c.logger.Error("storing generated insight failed; serving it uncached",
			"industry_key", key,
			"error", err,
		)
		return insight, fmt.Errorf("%w: storing insight %s: %w", model.ErrPersistenceFailed, key, err)
	}

	c.logger.Info("industry insight stored",
		"industry_key", key,
		"next_update", insight.NextUpdate.Format(time.RFC3339),
		"duration", time.Since(start).String(),
	)
	return insight, nil
}

type generateResult struct {
	payload model.InsightPayload
	err     error
}

// generate calls the generator under the generation timeout. The timeout is
// enforced here even if the generator ignores its context.
func (c *Cache) generate(ctx context.Context, key string) (model.InsightPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan generateResult, 1)
	go func() {
		payload, err := c.generator.Generate(ctx, key)
		done <- generateResult{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		return res.payload, res.err
	case <-ctx.Done():
		return model.InsightPayload{}, fmt.Errorf("generator did not finish within %s: %w", c.timeout, ctx.Err())
	}
}

// RefreshStale regenerates every stored record that is stale at the cache's
// current time. Keys go through GetOrCreate, so a refresh and a user lookup of
// the same key still share one generation. At most concurrency keys are
// regenerated at once. Per-key failures are reported, not returned.
func (c *Cache) RefreshStale(ctx context.Context, concurrency int) (model.RefreshReport, error) {
	keys, err := c.store.ListStale(ctx, c.now())
	if err != nil {
		return model.RefreshReport{}, fmt.Errorf("%w: listing stale insights: %w", model.ErrPersistenceFailed, err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	report := model.RefreshReport{Stale: len(keys)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		key := key
		g.Go(func() error {
			_, err := c.GetOrCreate(ctx, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, key)
				c.logger.Warn("refresh failed", "industry_key", key, "error", err)
				return nil
			}
			report.Refreshed++
			return nil
		})
	}
	_ = g.Wait()

	return report, ctx.Err()
}
