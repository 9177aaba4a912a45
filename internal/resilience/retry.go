package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff with jitter.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay by ±fraction.
	JitterFraction float64

	// ShouldRetry defaults to Retryable.
	ShouldRetry func(err error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig suits embedding backends: a few quick retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.2,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = Retryable
	}
	return c
}

// Backoff returns the delay before retry number attempt (0-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	d := math.Min(float64(c.InitialBackoff)*math.Pow(c.Multiplier, float64(attempt)), float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * c.JitterFraction
	}
	return time.Duration(math.Max(d, 0))
}

// DoVal runs fn until it succeeds, returns a non-retryable error, runs out
// of attempts, or ctx ends. The last error is returned.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !cfg.ShouldRetry(err) || attempt+1 >= cfg.MaxAttempts {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		t := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// LogRetry returns an OnRetry hook that logs at warn level.
func LogRetry(backend, op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying backend call",
			zap.String("backend", backend),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
