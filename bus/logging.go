package bus

import (
	"context"
	"time"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/logger"
	"github.com/forgeops/opcore/result"
)

// Logging records start, duration, and outcome of every dispatch with
// its correlation identifier. It never alters the result, and it does
// not recover panics: unexpected faults must propagate, not vanish into
// a log line.
func Logging(log *logger.Logger) Middleware {
	return func(ctx context.Context, msg any, next Next) result.Result[any] {
		l := log.WithCorrelation(ctx).With("message", MessageName(msg))
		l.DebugContext(ctx, "dispatch started")

		start := time.Now()
		r := next(ctx)
		duration := time.Since(start)

		if r.IsOk() {
			l.InfoContext(ctx, "dispatch succeeded", "duration", duration)
		} else {
			l.ErrorContext(ctx, "dispatch failed",
				"duration", duration,
				"code", apperrors.Code(r.Err()),
				"error", r.Err(),
			)
		}
		return r
	}
}
