package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
)

var errDown = errors.New("downstream unavailable")

func testBreaker(clk clock.Clock) *Breaker {
	return NewBreakerWithClock(BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}, clk)
}

func failOp(calls *int) Operation[int] {
	return func(ctx context.Context) result.Result[int] {
		*calls++
		return result.Err[int](errDown)
	}
}

func okOp(calls *int) Operation[int] {
	return func(ctx context.Context) result.Result[int] {
		*calls++
		return result.Ok(1)
	}
}

func TestBreaker_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("closed to open after threshold failures", func(t *testing.T) {
		mock := clock.NewMock()
		b := testBreaker(mock)
		var calls int

		for i := 0; i < 3; i++ {
			assert.Equal(t, StateClosed, b.State())
			Protect(ctx, b, failOp(&calls))
		}
		assert.Equal(t, StateOpen, b.State())
		assert.Equal(t, 3, calls)
	})

	t.Run("open rejects without invoking the operation", func(t *testing.T) {
		mock := clock.NewMock()
		b := testBreaker(mock)
		var calls int
		for i := 0; i < 3; i++ {
			Protect(ctx, b, failOp(&calls))
		}

		got := Protect(ctx, b, failOp(&calls))
		require.True(t, got.IsErr())
		assert.ErrorIs(t, got.Err(), apperrors.ErrCircuitOpen)
		assert.Equal(t, 3, calls)

		var open *apperrors.CircuitOpenError
		require.ErrorAs(t, got.Err(), &open)
		assert.Equal(t, "test", open.Name)
		assert.Equal(t, 30*time.Second, open.RetryAfter)
	})

	t.Run("recovery timeout admits a probe", func(t *testing.T) {
		mock := clock.NewMock()
		b := testBreaker(mock)
		var calls int
		for i := 0; i < 3; i++ {
			Protect(ctx, b, failOp(&calls))
		}

		mock.Add(30 * time.Second)
		assert.Equal(t, StateHalfOpen, b.State())

		got := Protect(ctx, b, okOp(&calls))
		assert.True(t, got.IsOk())
		assert.Equal(t, 4, calls)
	})

	t.Run("half-open failure reopens immediately", func(t *testing.T) {
		mock := clock.NewMock()
		b := testBreaker(mock)
		var calls int
		for i := 0; i < 3; i++ {
			Protect(ctx, b, failOp(&calls))
		}
		mock.Add(30 * time.Second)

		Protect(ctx, b, failOp(&calls))
		assert.Equal(t, StateOpen, b.State())

		got := Protect(ctx, b, okOp(&calls))
		assert.ErrorIs(t, got.Err(), apperrors.ErrCircuitOpen)
		assert.Equal(t, 4, calls)
	})

	t.Run("half-open closes after success threshold", func(t *testing.T) {
		mock := clock.NewMock()
		b := testBreaker(mock)
		var calls int
		for i := 0; i < 3; i++ {
			Protect(ctx, b, failOp(&calls))
		}
		mock.Add(30 * time.Second)

		Protect(ctx, b, okOp(&calls))
		assert.Equal(t, StateHalfOpen, b.State())
		Protect(ctx, b, okOp(&calls))
		assert.Equal(t, StateClosed, b.State())

		// Counters were reset on entering CLOSED: two failures do not
		// trip the threshold of three.
		Protect(ctx, b, failOp(&calls))
		Protect(ctx, b, failOp(&calls))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("success in closed resets the failure streak", func(t *testing.T) {
		mock := clock.NewMock()
		b := testBreaker(mock)
		var calls int

		Protect(ctx, b, failOp(&calls))
		Protect(ctx, b, failOp(&calls))
		Protect(ctx, b, okOp(&calls))
		Protect(ctx, b, failOp(&calls))
		Protect(ctx, b, failOp(&calls))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("state change hook observes transitions", func(t *testing.T) {
		mock := clock.NewMock()
		var transitions []string
		b := NewBreakerWithClock(BreakerConfig{
			Name:             "hooked",
			FailureThreshold: 1,
			SuccessThreshold: 1,
			RecoveryTimeout:  time.Second,
			OnStateChange: func(name string, from, to BreakerState) {
				transitions = append(transitions, from.String()+">"+to.String())
			},
		}, mock)

		var calls int
		Protect(ctx, b, failOp(&calls))
		mock.Add(time.Second)
		Protect(ctx, b, okOp(&calls))

		assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
	})
}

func TestBreaker_Concurrent(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	b := NewBreakerWithClock(BreakerConfig{
		Name:             "concurrent",
		FailureThreshold: 10,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
	}, mock)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Protect(ctx, b, func(ctx context.Context) result.Result[int] {
				return result.Err[int](errDown)
			})
		}()
	}
	wg.Wait()

	// Racing failures converge on a single consistent OPEN state.
	assert.Equal(t, StateOpen, b.State())
	got := Protect(ctx, b, func(ctx context.Context) result.Result[int] {
		t.Error("operation must not run while open")
		return result.Ok(0)
	})
	assert.ErrorIs(t, got.Err(), apperrors.ErrCircuitOpen)
}
