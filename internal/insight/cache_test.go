package insight

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/pathwise/internal/metrics"
	"github.com/amishk599/pathwise/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

// memStore is an in-memory model.InsightStore with error injection.
type memStore struct {
	mu        sync.Mutex
	records   map[string]model.IndustryInsight
	getErr    error
	upsertErr error
	upserts   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]model.IndustryInsight)}
}

func (s *memStore) Get(_ context.Context, key string) (model.IndustryInsight, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return model.IndustryInsight{}, false, s.getErr
	}
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *memStore) Upsert(_ context.Context, insight model.IndustryInsight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	s.records[insight.IndustryKey] = insight
	return nil
}

func (s *memStore) ListStale(_ context.Context, asOf time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, rec := range s.records {
		if !rec.NextUpdate.After(asOf) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memStore) List(_ context.Context) ([]model.IndustryInsight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IndustryInsight, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) record(key string) (model.IndustryInsight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// stubGenerator counts calls and delegates to fn.
type stubGenerator struct {
	calls atomic.Int32
	mu    sync.Mutex
	fn    func(ctx context.Context, key string) (model.InsightPayload, error)
}

func (g *stubGenerator) Generate(ctx context.Context, key string) (model.InsightPayload, error) {
	g.calls.Add(1)
	g.mu.Lock()
	fn := g.fn
	g.mu.Unlock()
	return fn(ctx, key)
}

func (g *stubGenerator) set(fn func(ctx context.Context, key string) (model.InsightPayload, error)) {
	g.mu.Lock()
	g.fn = fn
	g.mu.Unlock()
}

func payloadFor(key string) model.InsightPayload {
	return model.InsightPayload{
		SalaryRanges: []model.SalaryRange{
			{Role: key + " engineer", Min: 90000, Max: 180000, Median: 130000, Location: "US"},
		},
		GrowthRate:        7.5,
		DemandLevel:       model.DemandHigh,
		TopSkills:         []string{"Go", "Kubernetes"},
		MarketOutlook:     model.OutlookPositive,
		KeyTrends:         []string{"AI adoption"},
		RecommendedSkills: []string{"Distributed systems"},
	}
}

func succeeding() func(context.Context, string) (model.InsightPayload, error) {
	return func(_ context.Context, key string) (model.InsightPayload, error) {
		return payloadFor(key), nil
	}
}

func newTestCache(store model.InsightStore, gen model.InsightGenerator, opts ...Option) *Cache {
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	return NewCache(store, gen, discardLogger(), opts...)
}

func TestGetOrCreate_ConcurrentMissGeneratesOnce(t *testing.T) {
	store := newMemStore()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gen := &stubGenerator{fn: func(_ context.Context, key string) (model.InsightPayload, error) {
		once.Do(func() { close(started) })
		<-release
		return payloadFor(key), nil
	}}
	cache := newTestCache(store, gen)

	const callers = 8
	results := make([]model.IndustryInsight, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrCreate(context.Background(), "tech-software")
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond) // let the other callers join the flight
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), gen.calls.Load(), "generator calls")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Payload, results[i].Payload)
		assert.True(t, results[0].LastUpdated.Equal(results[i].LastUpdated))
	}
	assert.Equal(t, 1, store.upserts)
}

func TestGetOrCreate_TwoConcurrentCallersShareResult(t *testing.T) {
	store := newMemStore()
	release := make(chan struct{})
	gen := &stubGenerator{fn: func(_ context.Context, key string) (model.InsightPayload, error) {
		<-release
		return payloadFor(key), nil
	}}
	cache := newTestCache(store, gen)

	var wg sync.WaitGroup
	var a, b model.IndustryInsight
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); a, errA = cache.GetOrCreate(context.Background(), "tech-software") }()
	go func() { defer wg.Done(); b, errB = cache.GetOrCreate(context.Background(), "tech-software") }()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, a.Payload, b.Payload)
	assert.True(t, a.LastUpdated.Equal(b.LastUpdated))
}

func TestGetOrCreate_FreshRecordSkipsGenerator(t *testing.T) {
	store := newMemStore()
	stored := model.IndustryInsight{
		IndustryKey: "tech-software",
		Payload:     payloadFor("stored"),
		LastUpdated: testNow.Add(-24 * time.Hour),
		NextUpdate:  testNow.Add(6 * 24 * time.Hour),
	}
	store.records[stored.IndustryKey] = stored
	gen := &stubGenerator{fn: succeeding()}
	cache := newTestCache(store, gen)

	hitsBefore := testutil.ToFloat64(metrics.InsightLookups.WithLabelValues("hit"))

	for i := 0; i < 3; i++ {
		got, err := cache.GetOrCreate(context.Background(), "tech-software")
		require.NoError(t, err)
		assert.Equal(t, stored, got)
	}

	assert.Zero(t, gen.calls.Load())
	assert.Equal(t, hitsBefore+3, testutil.ToFloat64(metrics.InsightLookups.WithLabelValues("hit")))
}

func TestGetOrCreate_StaleRecordIsRefreshed(t *testing.T) {
	store := newMemStore()
	store.records["tech-software"] = model.IndustryInsight{
		IndustryKey: "tech-software",
		Payload:     payloadFor("old"),
		LastUpdated: testNow.Add(-15 * 24 * time.Hour),
		NextUpdate:  testNow.Add(-8 * 24 * time.Hour),
	}
	gen := &stubGenerator{fn: succeeding()}
	cache := newTestCache(store, gen)

	got, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.NoError(t, err)

	assert.Equal(t, int32(1), gen.calls.Load())
	assert.True(t, got.LastUpdated.Equal(testNow))
	assert.True(t, got.NextUpdate.Equal(testNow.Add(7*24*time.Hour)))
	assert.Equal(t, payloadFor("tech-software"), got.Payload)

	persisted, ok := store.record("tech-software")
	require.True(t, ok)
	assert.Equal(t, got, persisted)
}

func TestGetOrCreate_RecordExpiringExactlyNowIsStale(t *testing.T) {
	store := newMemStore()
	store.records["tech-software"] = model.IndustryInsight{
		IndustryKey: "tech-software",
		LastUpdated: testNow.Add(-7 * 24 * time.Hour),
		NextUpdate:  testNow,
	}
	gen := &stubGenerator{fn: succeeding()}
	cache := newTestCache(store, gen)

	_, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.NoError(t, err)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestGetOrCreate_ConcurrentStaleRefreshesOnce(t *testing.T) {
	store := newMemStore()
	store.records["finance-banking"] = model.IndustryInsight{
		IndustryKey: "finance-banking",
		NextUpdate:  testNow.Add(-time.Hour),
	}
	release := make(chan struct{})
	gen := &stubGenerator{fn: func(_ context.Context, key string) (model.InsightPayload, error) {
		<-release
		return payloadFor(key), nil
	}}
	cache := newTestCache(store, gen)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.GetOrCreate(context.Background(), "finance-banking")
			assert.NoError(t, err)
			assert.True(t, got.NextUpdate.Equal(got.LastUpdated.Add(model.RefreshInterval)))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestGetOrCreate_GenerationFailureKeepsStaleRecordAndRetries(t *testing.T) {
	store := newMemStore()
	stale := model.IndustryInsight{
		IndustryKey: "tech-software",
		Payload:     payloadFor("old"),
		LastUpdated: testNow.Add(-10 * 24 * time.Hour),
		NextUpdate:  testNow.Add(-3 * 24 * time.Hour),
	}
	store.records[stale.IndustryKey] = stale
	gen := &stubGenerator{fn: func(context.Context, string) (model.InsightPayload, error) {
		return model.InsightPayload{}, errors.New("llm unavailable")
	}}
	cache := newTestCache(store, gen)

	_, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.ErrorIs(t, err, model.ErrGenerationFailed)

	kept, ok := store.record("tech-software")
	require.True(t, ok)
	assert.Equal(t, stale, kept, "stale record must be left untouched")
	assert.Zero(t, store.upserts)

	gen.set(succeeding())
	got, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.NoError(t, err)
	assert.Equal(t, int32(2), gen.calls.Load(), "failure must not be cached")
	assert.True(t, got.LastUpdated.Equal(testNow))
}

func TestGetOrCreate_GenerationFailureOnAbsentKeyLeavesItAbsent(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{fn: func(context.Context, string) (model.InsightPayload, error) {
		return model.InsightPayload{}, errors.New("boom")
	}}
	cache := newTestCache(store, gen)

	_, err := cache.GetOrCreate(context.Background(), "health-nursing")
	require.ErrorIs(t, err, model.ErrGenerationFailed)

	_, ok := store.record("health-nursing")
	assert.False(t, ok)
}

func TestGetOrCreate_TimeoutIsGenerationFailureThenRetrySucceeds(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{fn: func(ctx context.Context, _ string) (model.InsightPayload, error) {
		<-ctx.Done()
		return model.InsightPayload{}, ctx.Err()
	}}
	cache := newTestCache(store, gen, WithGenerationTimeout(20*time.Millisecond))

	_, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.ErrorIs(t, err, model.ErrGenerationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	gen.set(succeeding())
	got, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.NoError(t, err)
	assert.True(t, got.IsFresh(testNow))
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestGetOrCreate_TimeoutEnforcedWhenGeneratorIgnoresContext(t *testing.T) {
	store := newMemStore()
	block := make(chan struct{})
	defer close(block)
	gen := &stubGenerator{fn: func(context.Context, string) (model.InsightPayload, error) {
		<-block
		return model.InsightPayload{}, nil
	}}
	cache := newTestCache(store, gen, WithGenerationTimeout(20*time.Millisecond))

	_, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.ErrorIs(t, err, model.ErrGenerationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetOrCreate_UpsertFailureReturnsGeneratedValue(t *testing.T) {
	store := newMemStore()
	store.upsertErr = errors.New("disk full")
	gen := &stubGenerator{fn: succeeding()}
	cache := newTestCache(store, gen)

	got, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.ErrorIs(t, err, model.ErrPersistenceFailed)
	assert.Equal(t, "tech-software", got.IndustryKey)
	assert.Equal(t, payloadFor("tech-software"), got.Payload)

	_, ok := store.record("tech-software")
	assert.False(t, ok)

	store.mu.Lock()
	store.upsertErr = nil
	store.mu.Unlock()
	_, err = cache.GetOrCreate(context.Background(), "tech-software")
	require.NoError(t, err)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestGetOrCreate_StoreReadFailure(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	gen := &stubGenerator{fn: succeeding()}
	cache := newTestCache(store, gen)

	_, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.ErrorIs(t, err, model.ErrPersistenceFailed)
	assert.Zero(t, gen.calls.Load())
}

func TestGetOrCreate_WaiterCancellationDoesNotCancelGeneration(t *testing.T) {
	store := newMemStore()
	started := make(chan struct{})
	release := make(chan struct{})
	var genCtxErr atomic.Value
	gen := &stubGenerator{fn: func(ctx context.Context, key string) (model.InsightPayload, error) {
		close(started)
		<-release
		genCtxErr.Store(errString(ctx.Err()))
		return payloadFor(key), nil
	}}
	cache := newTestCache(store, gen)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCreate(ctx, "tech-software")
		errCh <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, ok := store.record("tech-software")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "", genCtxErr.Load())

	got, err := cache.GetOrCreate(context.Background(), "tech-software")
	require.NoError(t, err)
	assert.True(t, got.IsFresh(testNow))
	assert.Equal(t, int32(1), gen.calls.Load())
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func TestGetOrCreate_EmptyKey(t *testing.T) {
	cache := newTestCache(newMemStore(), &stubGenerator{fn: succeeding()})

	_, err := cache.GetOrCreate(context.Background(), "   ")
	require.ErrorIs(t, err, model.ErrInvalidIndustry)
}

func TestGetOrCreate_NormalizesKey(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{fn: succeeding()}
	cache := newTestCache(store, gen)

	got, err := cache.GetOrCreate(context.Background(), "  Tech Software ")
	require.NoError(t, err)
	assert.Equal(t, "tech-software", got.IndustryKey)

	_, err = cache.GetOrCreate(context.Background(), "tech-software")
	require.NoError(t, err)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestGetOrCreate_DifferentKeysGenerateIndependently(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{fn: succeeding()}
	cache := newTestCache(store, gen)

	var wg sync.WaitGroup
	for _, key := range []string{"tech-software", "finance-banking", "health-nursing"} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetOrCreate(context.Background(), key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), gen.calls.Load())
}

func TestRefreshStale(t *testing.T) {
	store := newMemStore()
	for _, key := range []string{"a-stale", "b-stale"} {
		store.records[key] = model.IndustryInsight{IndustryKey: key, NextUpdate: testNow.Add(-time.Minute)}
	}
	store.records["c-fresh"] = model.IndustryInsight{IndustryKey: "c-fresh", NextUpdate: testNow.Add(time.Hour)}

	gen := &stubGenerator{fn: func(_ context.Context, key string) (model.InsightPayload, error) {
		if key == "b-stale" {
			return model.InsightPayload{}, errors.New("quota exceeded")
		}
		return payloadFor(key), nil
	}}
	cache := newTestCache(store, gen)

	report, err := cache.RefreshStale(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Stale)
	assert.Equal(t, 1, report.Refreshed)
	assert.Equal(t, []string{"b-stale"}, report.Failed)
	assert.Equal(t, int32(2), gen.calls.Load())

	refreshed, _ := store.record("a-stale")
	assert.True(t, refreshed.NextUpdate.Equal(testNow.Add(model.RefreshInterval)))
}
