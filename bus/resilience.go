package bus

import (
	"context"
	"time"

	"github.com/forgeops/opcore/metrics"
	"github.com/forgeops/opcore/resilience"
	"github.com/forgeops/opcore/result"
)

// Retry re-attempts the rest of the chain per the retrier's schedule. A
// breaker trip inside the loop surfaces as a CircuitOpenError, which the
// default retryable predicate treats as terminal, so the loop stops
// immediately instead of hammering an open circuit.
func Retry(r *resilience.Retrier) Middleware {
	return func(ctx context.Context, msg any, next Next) result.Result[any] {
		return resilience.Do(ctx, r, resilience.Operation[any](next))
	}
}

// CircuitBreaker guards the rest of the chain with a shared breaker.
// While the circuit is open the handler is never invoked.
func CircuitBreaker(b *resilience.Breaker) Middleware {
	return func(ctx context.Context, msg any, next Next) result.Result[any] {
		return resilience.Protect(ctx, b, resilience.Operation[any](next))
	}
}

// BreakerMetrics returns an OnStateChange hook that records every breaker
// transition into the state gauge and transition counter.
func BreakerMetrics(m *metrics.Metrics) func(name string, from, to resilience.BreakerState) {
	return func(name string, from, to resilience.BreakerState) {
		m.RecordBreakerTransition(name, float64(to), to.String())
	}
}

// Timeout bounds the rest of the chain with a deadline, cancelling the
// in-flight work through its context when it elapses.
func Timeout(limit time.Duration) Middleware {
	return func(ctx context.Context, msg any, next Next) result.Result[any] {
		return resilience.WithTimeout(ctx, limit, resilience.Operation[any](next))
	}
}
