// Package result provides a typed success/failure outcome used instead of
// thrown panics for every expected error path in the module. A Result is
// immutable once constructed and holds exactly one of a value or an error.
package result

import "fmt"

// Result is the outcome of an operation: a value of type T on success or
// an error on failure.
type Result[T any] struct {
	value T
	err   error
	ok    bool
}

// Ok creates a successful result.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value, ok: true}
}

// Err creates a failed result. A nil error is a programmer error and is
// normalized to a generic failure so the invariant (exactly one variant
// populated) holds.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("result: failure constructed with nil error")
	}
	return Result[T]{err: err}
}

// IsOk reports whether the result is a success.
func (r Result[T]) IsOk() bool {
	return r.ok
}

// IsErr reports whether the result is a failure.
func (r Result[T]) IsErr() bool {
	return !r.ok
}

// Value returns the success value. For a failure it returns the zero
// value; check IsOk first or use UnwrapOr.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure error, or nil for a success.
func (r Result[T]) Err() error {
	return r.err
}

// UnwrapOr returns the success value or the supplied fallback. It never
// panics.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.ok {
		return r.value
	}
	return fallback
}

// UnwrapOrElse returns the success value or computes a fallback from the
// error.
func (r Result[T]) UnwrapOrElse(fn func(error) T) T {
	if r.ok {
		return r.value
	}
	return fn(r.err)
}

// MustValue returns the success value and panics on failure. It is a
// logic-error escape hatch for callers that have already proven success;
// library code must not use it on a path where failure is expected.
func (r Result[T]) MustValue() T {
	if !r.ok {
		panic(fmt.Sprintf("result: MustValue called on failure: %v", r.err))
	}
	return r.value
}

// Map transforms the success value, passing a failure through unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if !r.ok {
		return Err[U](r.err)
	}
	return Ok(fn(r.value))
}

// MapErr transforms the failure error, passing a success through
// unchanged.
func MapErr[T any](r Result[T], fn func(error) error) Result[T] {
	if r.ok {
		return r
	}
	return Err[T](fn(r.err))
}

// AndThen chains an operation that itself returns a Result. On failure it
// short-circuits without invoking fn.
func AndThen[T, U any](r Result[T], fn func(T) Result[U]) Result[U] {
	if !r.ok {
		return Err[U](r.err)
	}
	return fn(r.value)
}

// Match reduces the result with one of two functions depending on the
// variant.
func Match[T, U any](r Result[T], onOk func(T) U, onErr func(error) U) U {
	if r.ok {
		return onOk(r.value)
	}
	return onErr(r.err)
}

// Collect turns a slice of results into a single result: the values in
// input order if every element succeeded, otherwise the first failure
// encountered.
func Collect[T any](results []Result[T]) Result[[]T] {
	values := make([]T, 0, len(results))
	for _, r := range results {
		if !r.ok {
			return Err[[]T](r.err)
		}
		values = append(values, r.value)
	}
	return Ok(values)
}
