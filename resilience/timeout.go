package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
)

// WithTimeout runs op with a deadline. When the deadline elapses the
// operation's context is cancelled (so the operation can stop its own
// work) and the caller gets a TimeoutError. The wall clock is used.
func WithTimeout[T any](ctx context.Context, limit time.Duration, op Operation[T]) result.Result[T] {
	return WithTimeoutClock(ctx, clock.New(), limit, op)
}

// WithTimeoutClock is WithTimeout on an injectable clock.
func WithTimeoutClock[T any](ctx context.Context, clk clock.Clock, limit time.Duration, op Operation[T]) result.Result[T] {
	tctx, cancel := clk.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan result.Result[T], 1)
	go func() {
		done <- op(tctx)
	}()

	select {
	case r := <-done:
		return r
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return result.Err[T](apperrors.NewTimeoutError(limit))
		}
		return result.Err[T](tctx.Err())
	}
}
