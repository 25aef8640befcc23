package specification

import (
	"fmt"
	"strings"

	apperrors "github.com/forgeops/opcore/errors"
)

// Kind classifies a schema column for operator validation.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
)

// Column describes one storage column backing a filterable field.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Schema maps specification field names (case-insensitive) to storage
// columns. Translation refuses fields absent from the schema.
type Schema map[string]Column

// Lookup resolves a field name to its column, trying an exact match
// before the case-insensitive scan. Filter translation and listing sort
// resolution share it so a field accepted by one is accepted by both.
func (s Schema) Lookup(field string) (Column, bool) {
	if c, ok := s[field]; ok {
		return c, true
	}
	for name, c := range s {
		if strings.EqualFold(name, field) {
			return c, true
		}
	}
	return Column{}, false
}

// LogicOp joins filter expression groups.
type LogicOp string

const (
	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
)

// FilterExpression is a storage-native filter tree produced from a
// Specification. Concrete nodes are Compare, Group, and Negate.
type FilterExpression interface {
	isFilterExpression()
}

// Compare is a single column comparison leaf.
type Compare struct {
	Column string
	Op     Operator
	Value  any
}

func (Compare) isFilterExpression() {}

// Group joins child expressions with one logical operator.
type Group struct {
	Op       LogicOp
	Children []FilterExpression
}

func (Group) isFilterExpression() {}

// Negate inverts a child expression.
type Negate struct {
	Child FilterExpression
}

func (Negate) isFilterExpression() {}

// ToFilterExpression recursively translates a specification tree into a
// filter expression, validating every leaf against the schema. Arbitrary
// predicate leaves (Where) and unsupported operator/kind pairs fail with
// a SpecificationError.
func ToFilterExpression[T any](spec Specification[T], schema Schema) (FilterExpression, error) {
	switch s := spec.(type) {
	case andSpec[T]:
		left, err := ToFilterExpression(s.left, schema)
		if err != nil {
			return nil, err
		}
		right, err := ToFilterExpression(s.right, schema)
		if err != nil {
			return nil, err
		}
		return Group{Op: LogicAnd, Children: []FilterExpression{left, right}}, nil
	case orSpec[T]:
		left, err := ToFilterExpression(s.left, schema)
		if err != nil {
			return nil, err
		}
		right, err := ToFilterExpression(s.right, schema)
		if err != nil {
			return nil, err
		}
		return Group{Op: LogicOr, Children: []FilterExpression{left, right}}, nil
	case notSpec[T]:
		child, err := ToFilterExpression(s.inner, schema)
		if err != nil {
			return nil, err
		}
		return Negate{Child: child}, nil
	case fieldSpec[T]:
		return translateLeaf(s.field, s.op, s.value, schema)
	case predicateSpec[T]:
		return nil, apperrors.NewSpecificationError("arbitrary predicate cannot be translated to a filter")
	default:
		return nil, apperrors.NewSpecificationError("unknown specification node %T", spec)
	}
}

func translateLeaf(field string, op Operator, value any, schema Schema) (FilterExpression, error) {
	col, ok := schema.Lookup(field)
	if !ok {
		return nil, apperrors.NewSpecificationError("field %q not in schema", field)
	}
	if err := checkOperator(col, field, op); err != nil {
		return nil, err
	}
	return Compare{Column: col.Name, Op: op, Value: value}, nil
}

func checkOperator(col Column, field string, op Operator) error {
	switch op {
	case OpEq, OpNe, OpIn:
		return nil
	case OpGt, OpGe, OpLt, OpLe:
		if col.Kind == KindBool {
			return apperrors.NewSpecificationError("operator %s not supported for bool field %q", op, field)
		}
		return nil
	case OpContains, OpStartsWith:
		if col.Kind != KindString {
			return apperrors.NewSpecificationError("operator %s requires a string field, %q is %s", op, field, col.Kind)
		}
		return nil
	case OpIsNull, OpNotNull:
		if !col.Nullable {
			return apperrors.NewSpecificationError("field %q is not nullable", field)
		}
		return nil
	default:
		return apperrors.NewSpecificationError("unsupported operator %q", op)
	}
}

// SQL renders a filter expression into a parameterized WHERE clause with
// `?` placeholders, suitable for gorm's Where.
func SQL(expr FilterExpression) (string, []any, error) {
	switch e := expr.(type) {
	case Compare:
		return compareSQL(e)
	case Group:
		parts := make([]string, 0, len(e.Children))
		var args []any
		for _, child := range e.Children {
			sql, childArgs, err := SQL(child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, childArgs...)
		}
		return "(" + strings.Join(parts, " "+string(e.Op)+" ") + ")", args, nil
	case Negate:
		sql, args, err := SQL(e.Child)
		if err != nil {
			return "", nil, err
		}
		return "NOT " + sql, args, nil
	default:
		return "", nil, apperrors.NewSpecificationError("unknown filter node %T", expr)
	}
}

func compareSQL(c Compare) (string, []any, error) {
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%s = ?", c.Column), []any{c.Value}, nil
	case OpNe:
		return fmt.Sprintf("%s <> ?", c.Column), []any{c.Value}, nil
	case OpGt:
		return fmt.Sprintf("%s > ?", c.Column), []any{c.Value}, nil
	case OpGe:
		return fmt.Sprintf("%s >= ?", c.Column), []any{c.Value}, nil
	case OpLt:
		return fmt.Sprintf("%s < ?", c.Column), []any{c.Value}, nil
	case OpLe:
		return fmt.Sprintf("%s <= ?", c.Column), []any{c.Value}, nil
	case OpContains:
		s, ok := asString(c.Value)
		if !ok {
			return "", nil, apperrors.NewSpecificationError("contains requires a string value for column %q", c.Column)
		}
		return fmt.Sprintf("%s LIKE ?", c.Column), []any{"%" + escapeLike(s) + "%"}, nil
	case OpStartsWith:
		s, ok := asString(c.Value)
		if !ok {
			return "", nil, apperrors.NewSpecificationError("starts_with requires a string value for column %q", c.Column)
		}
		return fmt.Sprintf("%s LIKE ?", c.Column), []any{escapeLike(s) + "%"}, nil
	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", c.Column), nil, nil
	case OpNotNull:
		return fmt.Sprintf("%s IS NOT NULL", c.Column), nil, nil
	case OpIn:
		return fmt.Sprintf("%s IN ?", c.Column), []any{c.Value}, nil
	default:
		return "", nil, apperrors.NewSpecificationError("unsupported operator %q", c.Op)
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
