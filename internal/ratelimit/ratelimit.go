package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/amishk599/pathwise/internal/model"
)

// ModelRateLimiter caps requests per minute to each LLM model.
type ModelRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter // key: model name
	perMin   int
}

// NewModelRateLimiter creates a limiter allowing perMinute requests per model.
// A non-positive perMinute disables limiting.
func NewModelRateLimiter(perMinute int) *ModelRateLimiter {
	return &ModelRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
	}
}

// Wait blocks until a request to the given model is allowed.
// Returns an error if the context is cancelled while waiting.
func (r *ModelRateLimiter) Wait(ctx context.Context, modelName string) error {
	if r.perMin <= 0 {
		return nil
	}
	if err := r.limiter(modelName).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", modelName, err)
	}
	return nil
}

func (r *ModelRateLimiter) limiter(modelName string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[modelName]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.perMin)/60.0), 1)
		r.limiters[modelName] = l
	}
	return l
}

// RateLimitedProvider is a decorator that enforces model-level rate limiting
// before delegating to the wrapped LLMProvider.
type RateLimitedProvider struct {
	inner   model.LLMProvider
	limiter *ModelRateLimiter
	model   string
}

// NewRateLimitedProvider wraps an LLMProvider with model-level rate limiting.
// All providers targeting the same model should share the same limiter instance.
func NewRateLimitedProvider(inner model.LLMProvider, limiter *ModelRateLimiter, modelName string) *RateLimitedProvider {
	return &RateLimitedProvider{
		inner:   inner,
		limiter: limiter,
		model:   modelName,
	}
}

// Complete waits for the rate limiter to allow a request, then delegates to
// the wrapped provider.
func (p *RateLimitedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx, p.model); err != nil {
		return "", err
	}
	return p.inner.Complete(ctx, prompt)
}
