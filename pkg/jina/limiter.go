package jina

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a rate.Limiter that backs off on 429 responses and
// recovers on success. The rate stays within [initial/4, initial*2].
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	current rate.Limit
	min     rate.Limit
	max     rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at initial events per second.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		current: initial,
		min:     initial / 4,
		max:     initial * 2,
	}
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 10%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(a.Limit() * 1.1)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.set(a.Limit() / 2)
	zap.L().Warn("jina: embeddings rate limited, slowing down",
		zap.Float64("rate_per_sec", float64(a.Limit())),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r = max(a.min, min(a.max, r))
	a.current = r
	a.limiter.SetLimit(r)
}
