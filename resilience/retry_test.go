package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
)

var errFlaky = errors.New("flaky")

func noDelayConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		BaseDelay:       0,
		ExponentialBase: 2,
	}
}

func TestRetrier_Delay(t *testing.T) {
	t.Run("exponential schedule capped at max", func(t *testing.T) {
		r := NewRetrier(RetryConfig{
			MaxAttempts:     6,
			BaseDelay:       time.Second,
			MaxDelay:        10 * time.Second,
			ExponentialBase: 2,
			Jitter:          false,
		})

		want := []time.Duration{
			time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			10 * time.Second, // capped
			10 * time.Second,
		}
		for attempt, expected := range want {
			assert.Equal(t, expected, r.Delay(attempt), "attempt %d", attempt)
		}
	})

	t.Run("jitter scales within [0.5, 1.5]", func(t *testing.T) {
		for _, random := range []float64{0, 0.5, 0.999} {
			r := newRetrier(RetryConfig{
				MaxAttempts:     3,
				BaseDelay:       time.Second,
				MaxDelay:        time.Minute,
				ExponentialBase: 2,
				Jitter:          true,
			}, clock.New(), func() float64 { return random })

			d := r.Delay(0)
			assert.GreaterOrEqual(t, d, 500*time.Millisecond)
			assert.LessOrEqual(t, d, 1500*time.Millisecond)
		}
	})
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("first success returns immediately", func(t *testing.T) {
		r := NewRetrier(noDelayConfig(3))
		calls := 0
		got := Do(ctx, r, func(ctx context.Context) result.Result[int] {
			calls++
			return result.Ok(7)
		})
		require.True(t, got.IsOk())
		assert.Equal(t, 7, got.Value())
		assert.Equal(t, 1, calls)
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		r := NewRetrier(noDelayConfig(3))
		calls := 0
		got := Do(ctx, r, func(ctx context.Context) result.Result[int] {
			calls++
			if calls < 3 {
				return result.Err[int](errFlaky)
			}
			return result.Ok(7)
		})
		require.True(t, got.IsOk())
		assert.Equal(t, 3, calls)
	})

	t.Run("exhaustion wraps the terminal failure", func(t *testing.T) {
		r := NewRetrier(noDelayConfig(3))
		calls := 0
		got := Do(ctx, r, func(ctx context.Context) result.Result[int] {
			calls++
			return result.Err[int](errFlaky)
		})
		require.True(t, got.IsErr())
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, got.Err(), apperrors.ErrRetryExhausted)
		assert.ErrorIs(t, got.Err(), errFlaky)

		var exhausted *apperrors.RetryExhaustedError
		require.ErrorAs(t, got.Err(), &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
	})

	t.Run("non-retryable failure returned unchanged", func(t *testing.T) {
		r := NewRetrier(noDelayConfig(5))
		calls := 0
		notFound := apperrors.NewNotFoundError("widget", 1)
		got := Do(ctx, r, func(ctx context.Context) result.Result[int] {
			calls++
			return result.Err[int](notFound)
		})
		require.True(t, got.IsErr())
		assert.Equal(t, 1, calls)
		assert.Equal(t, notFound, got.Err())
	})

	t.Run("circuit open is terminal for the loop", func(t *testing.T) {
		r := NewRetrier(noDelayConfig(5))
		calls := 0
		got := Do(ctx, r, func(ctx context.Context) result.Result[int] {
			calls++
			return result.Err[int](apperrors.NewCircuitOpenError("db", time.Second))
		})
		require.True(t, got.IsErr())
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, got.Err(), apperrors.ErrCircuitOpen)
	})

	t.Run("cancellation stops the backoff sleep", func(t *testing.T) {
		mock := clock.NewMock()
		r := NewRetrierWithClock(RetryConfig{
			MaxAttempts:     3,
			BaseDelay:       time.Minute,
			MaxDelay:        time.Minute,
			ExponentialBase: 2,
		}, mock)

		cctx, cancel := context.WithCancel(ctx)
		done := make(chan result.Result[int], 1)
		go func() {
			done <- Do(cctx, r, func(ctx context.Context) result.Result[int] {
				return result.Err[int](errFlaky)
			})
		}()

		// Let the goroutine fail once and block on the backoff timer,
		// then cancel instead of advancing the clock.
		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case got := <-done:
			require.True(t, got.IsErr())
			assert.ErrorIs(t, got.Err(), context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("retry loop did not observe cancellation")
		}
	})

	t.Run("sleeps between attempts on the injected clock", func(t *testing.T) {
		mock := clock.NewMock()
		r := NewRetrierWithClock(RetryConfig{
			MaxAttempts:     3,
			BaseDelay:       time.Second,
			MaxDelay:        10 * time.Second,
			ExponentialBase: 2,
		}, mock)

		done := make(chan result.Result[int], 1)
		go func() {
			done <- Do(context.Background(), r, func(ctx context.Context) result.Result[int] {
				return result.Err[int](errFlaky)
			})
		}()

		for i := 0; i < 200; i++ {
			select {
			case got := <-done:
				assert.ErrorIs(t, got.Err(), apperrors.ErrRetryExhausted)
				return
			default:
				time.Sleep(time.Millisecond)
				mock.Add(10 * time.Second)
			}
		}
		t.Fatal("retry loop never finished on the mock clock")
	})
}

func TestDefaultRetryable(t *testing.T) {
	assert.True(t, DefaultRetryable(errFlaky))
	assert.True(t, DefaultRetryable(apperrors.NewRepositoryError("query", errFlaky)))
	assert.False(t, DefaultRetryable(apperrors.NewCircuitOpenError("db", time.Second)))
	assert.False(t, DefaultRetryable(apperrors.NewValidationError()))
	assert.False(t, DefaultRetryable(apperrors.NewNotFoundError("widget", 1)))
	assert.False(t, DefaultRetryable(apperrors.NewConflictError("widget", "dup")))
}
