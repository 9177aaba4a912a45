package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a Breaker.
type BreakerState int

// Breaker states.
const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling the backend while the breaker
// is open.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerConfig controls when a Breaker opens and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed calls that opens
	// the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before letting one
	// probe call through.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns the defaults used when a field is unset.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// Breaker is a consecutive-failure circuit breaker shared by every caller of
// one backend.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker returns a closed breaker for the named backend.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	d := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = d.ResetTimeout
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// State returns the current state, reporting half-open once the reset
// timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// ExecuteVal calls fn unless the breaker is open and records the outcome.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		// One probe at a time.
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Cancellation and deterministic failures such as a malformed response
	// say nothing about backend availability.
	if errors.Is(err, context.Canceled) || (err != nil && !IsTransient(err)) {
		b.probing = false
		return
	}

	if err == nil {
		b.failures = 0
		b.probing = false
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.probing = false
		b.openedAt = b.now()
		b.setState(StateOpen)
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(to BreakerState) {
	from := b.state
	b.state = to
	zap.L().Info("resilience: breaker state change",
		zap.String("backend", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures),
	)
}
