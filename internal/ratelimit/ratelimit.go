// Package ratelimit throttles outbound requests per provider family.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/amishk599/jobdigest/internal/model"
)

// ProviderLimiter hands out one token bucket per provider (greenhouse, lever,
// remoteok...). Sources of the same provider share a bucket because they hit
// the same API host.
type ProviderLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rps       rate.Limit
	burst     int
	overrides map[string]rate.Limit
}

// NewProviderLimiter creates a limiter allowing requestsPerSecond per
// provider with the given burst. overrides sets per-provider rates.
func NewProviderLimiter(requestsPerSecond float64, burst int, overrides map[string]float64) *ProviderLimiter {
	if burst < 1 {
		burst = 1
	}
	o := make(map[string]rate.Limit, len(overrides))
	for provider, rps := range overrides {
		o[provider] = rate.Limit(rps)
	}
	return &ProviderLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rps:       rate.Limit(requestsPerSecond),
		burst:     burst,
		overrides: o,
	}
}

func (l *ProviderLimiter) limiterFor(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[provider]; ok {
		return lim
	}
	r := l.rps
	if o, ok := l.overrides[provider]; ok {
		r = o
	}
	if r <= 0 {
		r = rate.Inf
	}
	lim := rate.NewLimiter(r, l.burst)
	l.limiters[provider] = lim
	return lim
}

// Wait blocks until the provider's bucket has a token.
func (l *ProviderLimiter) Wait(ctx context.Context, provider string) error {
	if err := l.limiterFor(provider).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", provider, err)
	}
	return nil
}

// RateLimitedFetcher is a decorator that waits on the provider's bucket
// before delegating to the wrapped PostingFetcher.
type RateLimitedFetcher struct {
	inner    model.PostingFetcher
	limiter  *ProviderLimiter
	provider string
}

// NewRateLimitedFetcher wraps a PostingFetcher with provider-level rate
// limiting. All fetchers for one provider should share the limiter.
func NewRateLimitedFetcher(inner model.PostingFetcher, limiter *ProviderLimiter, provider string) *RateLimitedFetcher {
	return &RateLimitedFetcher{
		inner:    inner,
		limiter:  limiter,
		provider: provider,
	}
}

// FetchPostings waits for the limiter, then delegates.
func (f *RateLimitedFetcher) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	if err := f.limiter.Wait(ctx, f.provider); err != nil {
		return nil, err
	}
	return f.inner.FetchPostings(ctx)
}
