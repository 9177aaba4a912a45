package resilience

import (
	"context"
	"time"
)

// Guard combines a retry policy with a breaker shared by all calls to one
// backend. A nil *Guard calls straight through.
type Guard struct {
	retry   RetryConfig
	breaker *Breaker
}

// NewGuard returns a guard for the named backend.
func NewGuard(name string, retry RetryConfig, breaker BreakerConfig) *Guard {
	if retry.OnRetry == nil {
		retry.OnRetry = LogRetry(name, "call")
	}
	return &Guard{retry: retry, breaker: NewBreaker(name, breaker)}
}

// Call runs fn through the breaker, retrying per the guard's policy. Each
// attempt passes through the breaker, so an opening breaker stops the
// remaining attempts.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	return DoVal(ctx, g.retry, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, g.breaker, fn)
	})
}

// RetryFromMillis builds a RetryConfig from plain config values. Zero values
// keep the defaults.
func RetryFromMillis(maxAttempts, initialMs, maxMs int, multiplier, jitter float64) RetryConfig {
	c := DefaultRetryConfig()
	if maxAttempts > 0 {
		c.MaxAttempts = maxAttempts
	}
	if initialMs > 0 {
		c.InitialBackoff = time.Duration(initialMs) * time.Millisecond
	}
	if maxMs > 0 {
		c.MaxBackoff = time.Duration(maxMs) * time.Millisecond
	}
	if multiplier >= 1 {
		c.Multiplier = multiplier
	}
	if jitter >= 0 {
		c.JitterFraction = jitter
	}
	return c
}

// BreakerFromSeconds builds a BreakerConfig from plain config values.
func BreakerFromSeconds(threshold, resetSecs int) BreakerConfig {
	c := DefaultBreakerConfig()
	if threshold > 0 {
		c.FailureThreshold = threshold
	}
	if resetSecs > 0 {
		c.ResetTimeout = time.Duration(resetSecs) * time.Second
	}
	return c
}
