package bus

import (
	"context"
	"time"

	"github.com/forgeops/opcore/metrics"
	"github.com/forgeops/opcore/result"
)

// Metrics records dispatch counts, duration, and in-flight gauge.
func Metrics(m *metrics.Metrics) Middleware {
	return func(ctx context.Context, msg any, next Next) result.Result[any] {
		m.DispatchesInFlight.Inc()
		defer m.DispatchesInFlight.Dec()

		start := time.Now()
		r := next(ctx)

		outcome := "success"
		if r.IsErr() {
			outcome = "failure"
		}
		m.RecordDispatch(MessageName(msg), outcome, time.Since(start))
		return r
	}
}
