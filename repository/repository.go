// Package repository defines the generic persistence port and its
// bindings. The port is parameterized over the entity, its create and
// update inputs, and its identifier; every operation returns a
// result.Result so expected failures never surface as panics.
package repository

import (
	"context"

	"github.com/forgeops/opcore/result"
	"github.com/forgeops/opcore/specification"
)

// ID constrains identifiers to the primitive shapes storage backends
// index on.
type ID interface {
	~string | ~int | ~int32 | ~int64
}

// Filter is one field comparison applied by GetAll.
type Filter struct {
	Field string
	Op    specification.Operator
	Value any
}

// Sort orders a listing by one field.
type Sort struct {
	Field string
	Desc  bool
}

// ListQuery describes a paged listing.
type ListQuery struct {
	Skip    int
	Limit   int
	Filters []Filter
	Sort    []Sort

	// IncludeDeleted opts into reading soft-deleted records.
	IncludeDeleted bool
}

// Page is one page of a listing. Total is the count of all records
// matching the filters, unaffected by Skip/Limit.
type Page[E any] struct {
	Items []E
	Total int64
}

// ReadOption tweaks a single read.
type ReadOption func(*readOptions)

type readOptions struct {
	includeDeleted bool
}

// IncludeDeleted makes a read return soft-deleted records too.
func IncludeDeleted() ReadOption {
	return func(o *readOptions) { o.includeDeleted = true }
}

func applyReadOptions(opts []ReadOption) readOptions {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Repository is the persistence port for one entity family.
//
// Reads exclude soft-deleted records unless the caller opts in. GetByID
// yields Ok(nil) for a missing or soft-deleted record; Update fails with
// a NotFoundError; Delete of a missing id yields Ok(false).
type Repository[E any, C any, U any, K ID] interface {
	GetByID(ctx context.Context, id K, opts ...ReadOption) result.Result[*E]
	GetAll(ctx context.Context, q ListQuery) result.Result[Page[E]]
	FindBySpecification(ctx context.Context, spec specification.Specification[E]) result.Result[[]E]
	Create(ctx context.Context, input C) result.Result[E]

	// CreateMany persists all inputs within one transaction,
	// all-or-nothing.
	CreateMany(ctx context.Context, inputs []C) result.Result[[]E]

	Update(ctx context.Context, id K, input U) result.Result[*E]

	// Delete removes a record. Soft delete marks it logically removed
	// and hides it from default reads; hard delete is irrecoverable.
	// The bool reports whether a record was removed.
	Delete(ctx context.Context, id K, soft bool) result.Result[bool]

	Exists(ctx context.Context, id K) result.Result[bool]
}

// filterSpec turns GetAll filters into one specification so the memory
// binding evaluates listings and specification queries identically.
func filterSpec[E any](filters []Filter) specification.Specification[E] {
	var spec specification.Specification[E]
	for _, f := range filters {
		leaf := specification.Field[E](f.Field, f.Op, f.Value)
		if spec == nil {
			spec = leaf
		} else {
			spec = specification.And(spec, leaf)
		}
	}
	return spec
}
