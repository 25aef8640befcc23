package bus

import (
	"context"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
)

// Validator inspects a message and returns its field violations, empty
// when the message is valid.
type Validator func(ctx context.Context, msg any) []apperrors.FieldViolation

// ValidatorRegistry holds zero or more validators per message type.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	validators map[reflect.Type][]Validator
}

// NewValidatorRegistry creates an empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{validators: make(map[reflect.Type][]Validator)}
}

// RegisterValidator adds a typed validator for message type M.
func RegisterValidator[M any](r *ValidatorRegistry, fn func(ctx context.Context, msg M) []apperrors.FieldViolation) {
	t := reflect.TypeOf((*M)(nil)).Elem()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[t] = append(r.validators[t], func(ctx context.Context, msg any) []apperrors.FieldViolation {
		m, ok := msg.(M)
		if !ok {
			return nil
		}
		return fn(ctx, m)
	})
}

func (r *ValidatorRegistry) forType(t reflect.Type) []Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validators[t]
}

// Validation runs every registered validator for the message type before
// the handler. Any violation short-circuits the dispatch with a
// ValidationError carrying every violation found, and the handler is
// never invoked.
func Validation(reg *ValidatorRegistry) Middleware {
	return func(ctx context.Context, msg any, next Next) result.Result[any] {
		var violations []apperrors.FieldViolation
		for _, validate := range reg.forType(reflect.TypeOf(msg)) {
			violations = append(violations, validate(ctx, msg)...)
		}
		if len(violations) > 0 {
			return result.Err[any](apperrors.NewValidationError(violations...))
		}
		return next(ctx)
	}
}

// StructValidator adapts go-playground/validator struct tags into a
// Validator usable for any message type.
func StructValidator() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	return func(ctx context.Context, msg any) []apperrors.FieldViolation {
		err := v.StructCtx(ctx, msg)
		if err == nil {
			return nil
		}
		ferrs, ok := err.(validator.ValidationErrors)
		if !ok {
			// Non-struct messages have nothing to validate by tag.
			return nil
		}
		violations := make([]apperrors.FieldViolation, 0, len(ferrs))
		for _, fe := range ferrs {
			violations = append(violations, apperrors.FieldViolation{
				Field:   fe.Field(),
				Message: "failed " + fe.Tag() + " validation",
			})
		}
		return violations
	}
}

// RegisterStructValidator attaches tag-based validation for M.
func RegisterStructValidator[M any](r *ValidatorRegistry) {
	validate := StructValidator()
	RegisterValidator(r, func(ctx context.Context, msg M) []apperrors.FieldViolation {
		return validate(ctx, msg)
	})
}
