// Package resilience provides retry with exponential backoff, a circuit
// breaker, and a timeout wrapper. Each primitive wraps an arbitrary
// operation returning a result.Result and runs on an injectable clock so
// behavior is testable without real delays.
package resilience

import (
	"context"

	"github.com/forgeops/opcore/result"
)

// Operation is an asynchronous unit of work guarded by a resilience
// primitive. Implementations must honor ctx cancellation.
type Operation[T any] func(ctx context.Context) result.Result[T]
