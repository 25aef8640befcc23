package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// StateClosed admits every call.
	StateClosed BreakerState = iota
	// StateOpen rejects every call until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits probe calls to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig contains circuit breaker thresholds.
type BreakerConfig struct {
	// Name identifies the breaker in errors, logs, and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// CLOSED to OPEN.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive HALF_OPEN successes
	// that closes the circuit.
	SuccessThreshold int

	// RecoveryTimeout is how long after the last failure an OPEN breaker
	// admits a probe call.
	RecoveryTimeout time.Duration

	// OnStateChange, when set, observes every transition.
	OnStateChange func(name string, from, to BreakerState)
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker is a circuit breaker shared by all concurrent callers of one
// downstream dependency. All state transitions happen under one mutex so
// racing callers converge on a single consistent state.
type Breaker struct {
	mu sync.Mutex

	cfg BreakerConfig
	clk clock.Clock

	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker creates a Breaker on the wall clock.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return NewBreakerWithClock(cfg, clock.New())
}

// NewBreakerWithClock creates a Breaker on the given clock.
func NewBreakerWithClock(cfg BreakerConfig, clk clock.Clock) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg, clk: clk, state: StateClosed}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// State returns the current state, accounting for an elapsed recovery
// timeout.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.recoveryElapsed() {
		b.transition(StateHalfOpen)
	}
	return b.state
}

// Allow reports whether a call may proceed right now. While open it
// returns a CircuitOpenError carrying the remaining cooldown; when the
// recovery timeout has elapsed it moves to HALF_OPEN and admits the
// call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if !b.recoveryElapsed() {
			remaining := b.cfg.RecoveryTimeout - b.clk.Now().Sub(b.lastFailure)
			return apperrors.NewCircuitOpenError(b.cfg.Name, remaining)
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.clk.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// Any half-open failure reopens the circuit.
		b.transition(StateOpen)
	}
}

// recoveryElapsed reports whether the cooldown has passed. Caller holds
// the lock.
func (b *Breaker) recoveryElapsed() bool {
	return b.clk.Now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout
}

// transition moves to a new state and resets counters. Caller holds the
// lock.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// Protect runs op under the breaker, recording its outcome. While the
// circuit is open the operation is never invoked and the caller gets the
// CircuitOpenError immediately.
func Protect[T any](ctx context.Context, b *Breaker, op Operation[T]) result.Result[T] {
	if err := b.Allow(); err != nil {
		return result.Err[T](err)
	}

	r := op(ctx)
	if r.IsOk() {
		b.RecordSuccess()
	} else {
		b.RecordFailure()
	}
	return r
}
