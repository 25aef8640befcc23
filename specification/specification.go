// Package specification implements composable boolean predicates over a
// candidate type, with AND/OR/NOT combinators and a translation step to
// a storage-native filter expression.
package specification

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator is a comparison operation on a field leaf.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGe         Operator = "ge"
	OpLt         Operator = "lt"
	OpLe         Operator = "le"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpIsNull     Operator = "is_null"
	OpNotNull    Operator = "not_null"
	OpIn         Operator = "in"
)

// Specification is a side-effect-free selection rule over T. Evaluation
// must be pure; composites short-circuit.
type Specification[T any] interface {
	IsSatisfiedBy(candidate T) bool
}

type andSpec[T any] struct {
	left, right Specification[T]
}

func (s andSpec[T]) IsSatisfiedBy(candidate T) bool {
	// Short-circuit: right is never evaluated when left fails.
	return s.left.IsSatisfiedBy(candidate) && s.right.IsSatisfiedBy(candidate)
}

// And combines two specifications conjunctively.
func And[T any](left, right Specification[T]) Specification[T] {
	return andSpec[T]{left: left, right: right}
}

type orSpec[T any] struct {
	left, right Specification[T]
}

func (s orSpec[T]) IsSatisfiedBy(candidate T) bool {
	return s.left.IsSatisfiedBy(candidate) || s.right.IsSatisfiedBy(candidate)
}

// Or combines two specifications disjunctively.
func Or[T any](left, right Specification[T]) Specification[T] {
	return orSpec[T]{left: left, right: right}
}

type notSpec[T any] struct {
	inner Specification[T]
}

func (s notSpec[T]) IsSatisfiedBy(candidate T) bool {
	return !s.inner.IsSatisfiedBy(candidate)
}

// Not negates a specification.
func Not[T any](inner Specification[T]) Specification[T] {
	return notSpec[T]{inner: inner}
}

type predicateSpec[T any] struct {
	fn func(T) bool
}

func (s predicateSpec[T]) IsSatisfiedBy(candidate T) bool {
	return s.fn(candidate)
}

// Where wraps an arbitrary predicate function as a leaf specification.
// Predicates built this way cannot be translated to a filter expression.
func Where[T any](fn func(T) bool) Specification[T] {
	return predicateSpec[T]{fn: fn}
}

// fieldSpec compares a named struct field of the candidate to a value.
type fieldSpec[T any] struct {
	field string
	op    Operator
	value any
}

func (s fieldSpec[T]) IsSatisfiedBy(candidate T) bool {
	v, ok := FieldValue(candidate, s.field)
	if !ok {
		return false
	}
	return compare(v, s.op, s.value)
}

// Field builds a comparison leaf over a named field of T. The field is
// matched against the struct field name, its json tag, or its gorm
// column tag, case-insensitively.
func Field[T any](field string, op Operator, value any) Specification[T] {
	return fieldSpec[T]{field: field, op: op, value: value}
}

// FieldValue resolves a named field on a struct (or struct pointer)
// candidate. The second return is false when the field does not exist or
// the candidate is not a struct.
func FieldValue(candidate any, field string) (any, bool) {
	rv := reflect.ValueOf(candidate)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			if v, ok := FieldValue(rv.Field(i).Interface(), field); ok {
				return v, true
			}
			continue
		}
		if matchesField(f, field) {
			fv := rv.Field(i)
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					return nil, true
				}
				fv = fv.Elem()
			}
			return fv.Interface(), true
		}
	}
	return nil, false
}

func matchesField(f reflect.StructField, name string) bool {
	if strings.EqualFold(f.Name, name) {
		return true
	}
	if tag := tagName(f.Tag.Get("json")); tag != "" && strings.EqualFold(tag, name) {
		return true
	}
	if col := gormColumn(f.Tag.Get("gorm")); col != "" && strings.EqualFold(col, name) {
		return true
	}
	return false
}

func tagName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

func gormColumn(tag string) string {
	for _, part := range strings.Split(tag, ";") {
		if strings.HasPrefix(part, "column:") {
			return strings.TrimPrefix(part, "column:")
		}
	}
	return ""
}

// compare evaluates one operator against a resolved field value.
func compare(fieldVal any, op Operator, want any) bool {
	switch op {
	case OpIsNull:
		return isNull(fieldVal)
	case OpNotNull:
		return !isNull(fieldVal)
	case OpEq:
		return equalValues(fieldVal, want)
	case OpNe:
		return !equalValues(fieldVal, want)
	case OpGt, OpGe, OpLt, OpLe:
		c, ok := OrderValues(fieldVal, want)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return c > 0
		case OpGe:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpContains:
		s, ok1 := asString(fieldVal)
		sub, ok2 := asString(want)
		return ok1 && ok2 && strings.Contains(s, sub)
	case OpStartsWith:
		s, ok1 := asString(fieldVal)
		prefix, ok2 := asString(want)
		return ok1 && ok2 && strings.HasPrefix(s, prefix)
	case OpIn:
		rv := reflect.ValueOf(want)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if equalValues(fieldVal, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// OrderValues compares two values, returning -1/0/1 and whether the pair
// is orderable at all.
func OrderValues(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := asString(a)
	bs, bok := asString(b)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), true
	}
	return "", false
}
