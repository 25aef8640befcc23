// Package bus dispatches commands and queries to their registered
// handlers through a middleware pipeline. One handler per concrete
// message type; duplicate registration is a configuration error caught
// at registration time.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/forgeops/opcore/logger"
	"github.com/forgeops/opcore/result"
)

// Handler processes one message and returns its outcome. Expected
// failures travel inside the result; only programmer errors may panic.
type Handler func(ctx context.Context, msg any) result.Result[any]

// Next is the continuation a middleware wraps.
type Next func(ctx context.Context) result.Result[any]

// Middleware wraps a handler invocation. It must either call next
// exactly once or short-circuit by returning a failure without calling
// it.
type Middleware func(ctx context.Context, msg any, next Next) result.Result[any]

// Registration errors.
var (
	ErrDuplicateHandler = fmt.Errorf("bus: handler already registered for message type")
	ErrAlreadyStarted   = fmt.Errorf("bus: cannot register after dispatching has begun")
)

// Bus routes messages to handlers. The middleware chain is fixed at
// construction; the first middleware runs first on the way in and last
// on the way out.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[reflect.Type]Handler
	middlewares []Middleware
	started     atomic.Bool
}

// New creates a Bus with the given middleware chain.
func New(middlewares ...Middleware) *Bus {
	return &Bus{
		handlers:    make(map[reflect.Type]Handler),
		middlewares: middlewares,
	}
}

// register binds a handler to a message type. The registry is effectively
// immutable once dispatching begins; late registration fails fast.
func (b *Bus) register(t reflect.Type, h Handler) error {
	if b.started.Load() {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, t)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[t]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, t)
	}
	b.handlers[t] = h
	return nil
}

// Register binds a typed handler for message type M. The closure is
// reified under M's type tag at registration; dispatch is a single map
// lookup, not reflective method discovery.
func Register[M any, R any](b *Bus, h func(ctx context.Context, msg M) result.Result[R]) error {
	t := reflect.TypeOf((*M)(nil)).Elem()
	return b.register(t, func(ctx context.Context, msg any) result.Result[any] {
		m, ok := msg.(M)
		if !ok {
			return result.Err[any](fmt.Errorf("bus: message type mismatch: registered %s, got %T", t, msg))
		}
		r := h(ctx, m)
		if r.IsErr() {
			return result.Err[any](r.Err())
		}
		return result.Ok[any](r.Value())
	})
}

// Dispatch routes the message to its handler through the middleware
// chain. A missing handler is a configuration fault reported as a
// failure.
func (b *Bus) Dispatch(ctx context.Context, msg any) result.Result[any] {
	b.started.Store(true)

	if logger.CorrelationFromContext(ctx) == "" {
		ctx = logger.ContextWithCorrelation(ctx, uuid.NewString())
	}

	t := reflect.TypeOf(msg)
	b.mu.RLock()
	handler, ok := b.handlers[t]
	b.mu.RUnlock()
	if !ok {
		return result.Err[any](fmt.Errorf("bus: no handler registered for %s", t))
	}

	// Handler innermost; middlewares wrap outer to inner in
	// construction order.
	next := Next(func(ctx context.Context) result.Result[any] {
		return handler(ctx, msg)
	})
	for i := len(b.middlewares) - 1; i >= 0; i-- {
		mw := b.middlewares[i]
		inner := next
		next = func(ctx context.Context) result.Result[any] {
			return mw(ctx, msg, inner)
		}
	}

	return next(ctx)
}

// Send dispatches a typed message and asserts the typed result.
func Send[M any, R any](ctx context.Context, b *Bus, msg M) result.Result[R] {
	r := b.Dispatch(ctx, msg)
	if r.IsErr() {
		return result.Err[R](r.Err())
	}
	value, ok := r.Value().(R)
	if !ok {
		return result.Err[R](fmt.Errorf("bus: handler for %T returned %T, want %s",
			msg, r.Value(), reflect.TypeOf((*R)(nil)).Elem()))
	}
	return result.Ok(value)
}

// MessageName returns the log/metric label for a message.
func MessageName(msg any) string {
	t := reflect.TypeOf(msg)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	return t.String()
}
