package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
)

// RetryConfig controls the backoff schedule and which failures are
// worth another attempt.
type RetryConfig struct {
	// MaxAttempts is the total number of invocations, including the
	// first one.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// ExponentialBase is the growth factor between attempts.
	ExponentialBase float64

	// Jitter scales each delay by a uniform random factor in [0.5, 1.5]
	// to avoid synchronized retry storms.
	Jitter bool

	// Retryable decides whether a failure is transient. Nil means
	// DefaultRetryable.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// DefaultRetryable retries everything except failures that cannot
// succeed on a repeat: an open circuit (terminal for the dispatch),
// validation, not-found, conflict, and untranslatable specifications.
func DefaultRetryable(err error) bool {
	switch {
	case apperrors.Is(err, apperrors.ErrCircuitOpen),
		apperrors.Is(err, apperrors.ErrValidation),
		apperrors.Is(err, apperrors.ErrNotFound),
		apperrors.Is(err, apperrors.ErrConflict),
		apperrors.Is(err, apperrors.ErrSpecification):
		return false
	default:
		return true
	}
}

// Retrier re-attempts failed operations with exponential backoff.
type Retrier struct {
	cfg       RetryConfig
	clk       clock.Clock
	randFloat func() float64
}

// NewRetrier creates a Retrier on the wall clock.
func NewRetrier(cfg RetryConfig) *Retrier {
	return newRetrier(cfg, clock.New(), rand.Float64)
}

// NewRetrierWithClock creates a Retrier on the given clock. Used by
// tests to make the schedule deterministic.
func NewRetrierWithClock(cfg RetryConfig, clk clock.Clock) *Retrier {
	return newRetrier(cfg, clk, rand.Float64)
}

func newRetrier(cfg RetryConfig, clk clock.Clock, randFloat func() float64) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ExponentialBase <= 0 {
		cfg.ExponentialBase = 2
	}
	if cfg.Retryable == nil {
		cfg.Retryable = DefaultRetryable
	}
	return &Retrier{cfg: cfg, clk: clk, randFloat: randFloat}
}

// Delay returns the backoff before the attempt with the given 0-indexed
// number: min(baseDelay * exponentialBase^attempt, maxDelay), optionally
// scaled by the jitter factor.
func (r *Retrier) Delay(attempt int) time.Duration {
	d := time.Duration(float64(r.cfg.BaseDelay) * math.Pow(r.cfg.ExponentialBase, float64(attempt)))
	if r.cfg.MaxDelay > 0 && d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}
	if r.cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + r.randFloat()))
	}
	return d
}

// Do runs op up to MaxAttempts times. Non-retryable failures and context
// cancellation end the loop immediately with the failure unchanged; when
// every attempt fails the last failure is returned wrapped in a
// RetryExhaustedError that unwraps to it.
func Do[T any](ctx context.Context, r *Retrier, op Operation[T]) result.Result[T] {
	var last result.Result[T]
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.Delay(attempt-1)); err != nil {
				return result.Err[T](err)
			}
		}

		last = op(ctx)
		if last.IsOk() {
			return last
		}
		if !r.cfg.Retryable(last.Err()) {
			return last
		}
		if ctx.Err() != nil {
			return result.Err[T](ctx.Err())
		}
	}
	return result.Err[T](apperrors.NewRetryExhaustedError(r.cfg.MaxAttempts, last.Err()))
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := r.clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
