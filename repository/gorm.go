package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
	"github.com/forgeops/opcore/specification"
)

// GormConfig binds the four type slots for the gorm repository.
//
// The entity model must carry a gorm.DeletedAt field so gorm's soft
// delete backs the logical-removal semantics: default reads exclude
// soft-deleted rows and Unscoped includes them.
type GormConfig[E any, C any, U any, K ID] struct {
	// Entity names the entity family in errors.
	Entity string

	// IDColumn is the primary key column, "id" when empty.
	IDColumn string

	// Schema validates and translates filterable fields.
	Schema specification.Schema

	// New builds an entity from a create input.
	New func(C) (E, error)

	// Apply returns a copy of the entity with the update applied.
	Apply func(E, U) (E, error)
}

// Gorm is the relational repository binding.
type Gorm[E any, C any, U any, K ID] struct {
	db  *gorm.DB
	cfg GormConfig[E, C, U, K]
}

// NewGorm creates a gorm-backed repository.
func NewGorm[E any, C any, U any, K ID](db *gorm.DB, cfg GormConfig[E, C, U, K]) *Gorm[E, C, U, K] {
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	return &Gorm[E, C, U, K]{db: db, cfg: cfg}
}

func (r *Gorm[E, C, U, K]) session(ctx context.Context, includeDeleted bool) *gorm.DB {
	tx := r.db.WithContext(ctx)
	if includeDeleted {
		tx = tx.Unscoped()
	}
	return tx
}

// GetByID returns the entity, or Ok(nil) when no visible row exists.
func (r *Gorm[E, C, U, K]) GetByID(ctx context.Context, id K, opts ...ReadOption) result.Result[*E] {
	o := applyReadOptions(opts)

	var entity E
	err := r.session(ctx, o.includeDeleted).First(&entity, r.cfg.IDColumn+" = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result.Ok[*E](nil)
		}
		return result.Err[*E](apperrors.NewRepositoryError("get_by_id", err))
	}
	return result.Ok(&entity)
}

// GetAll returns a filtered, sorted, paged listing.
func (r *Gorm[E, C, U, K]) GetAll(ctx context.Context, q ListQuery) result.Result[Page[E]] {
	tx := r.session(ctx, q.IncludeDeleted).Model(new(E))

	if len(q.Filters) > 0 {
		sql, args, err := r.compileFilters(q.Filters)
		if err != nil {
			return result.Err[Page[E]](err)
		}
		tx = tx.Where(sql, args...)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return result.Err[Page[E]](apperrors.NewRepositoryError("count", err))
	}

	for _, s := range q.Sort {
		col, ok := r.cfg.Schema.Lookup(s.Field)
		if !ok {
			return result.Err[Page[E]](apperrors.NewSpecificationError("sort field %q not in schema", s.Field))
		}
		order := col.Name
		if s.Desc {
			order += " DESC"
		}
		tx = tx.Order(order)
	}

	if q.Skip > 0 {
		tx = tx.Offset(q.Skip)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var items []E
	if err := tx.Find(&items).Error; err != nil {
		return result.Err[Page[E]](apperrors.NewRepositoryError("get_all", err))
	}
	return result.Ok(Page[E]{Items: items, Total: total})
}

// FindBySpecification translates the specification against the schema
// and runs it as a native WHERE clause.
func (r *Gorm[E, C, U, K]) FindBySpecification(ctx context.Context, spec specification.Specification[E]) result.Result[[]E] {
	expr, err := specification.ToFilterExpression(spec, r.cfg.Schema)
	if err != nil {
		return result.Err[[]E](err)
	}
	sql, args, err := specification.SQL(expr)
	if err != nil {
		return result.Err[[]E](err)
	}

	var items []E
	if err := r.session(ctx, false).Where(sql, args...).Find(&items).Error; err != nil {
		return result.Err[[]E](apperrors.NewRepositoryError("find_by_specification", err))
	}
	return result.Ok(items)
}

// Create builds and persists one entity.
func (r *Gorm[E, C, U, K]) Create(ctx context.Context, input C) result.Result[E] {
	entity, err := r.cfg.New(input)
	if err != nil {
		return result.Err[E](err)
	}
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return result.Err[E](r.writeError("create", err))
	}
	return result.Ok(entity)
}

// CreateMany persists all inputs within one transaction.
func (r *Gorm[E, C, U, K]) CreateMany(ctx context.Context, inputs []C) result.Result[[]E] {
	entities := make([]E, 0, len(inputs))
	for _, input := range inputs {
		entity, err := r.cfg.New(input)
		if err != nil {
			return result.Err[[]E](apperrors.NewRepositoryError("create_many", err))
		}
		entities = append(entities, entity)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range entities {
			if err := tx.Create(&entities[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result.Err[[]E](r.writeError("create_many", err))
	}
	return result.Ok(entities)
}

// Update loads the live row, applies the update, and saves it. A missing
// or soft-deleted row fails with a NotFoundError.
func (r *Gorm[E, C, U, K]) Update(ctx context.Context, id K, input U) result.Result[*E] {
	var entity E
	err := r.session(ctx, false).First(&entity, r.cfg.IDColumn+" = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result.Err[*E](apperrors.NewNotFoundError(r.cfg.Entity, id))
		}
		return result.Err[*E](apperrors.NewRepositoryError("update", err))
	}

	updated, err := r.cfg.Apply(entity, input)
	if err != nil {
		return result.Err[*E](err)
	}
	if err := r.db.WithContext(ctx).Save(&updated).Error; err != nil {
		return result.Err[*E](r.writeError("update", err))
	}
	return result.Ok(&updated)
}

// Delete soft-deletes by default (gorm sets the DeletedAt marker) or
// hard-deletes with Unscoped.
func (r *Gorm[E, C, U, K]) Delete(ctx context.Context, id K, soft bool) result.Result[bool] {
	tx := r.db.WithContext(ctx)
	if !soft {
		tx = tx.Unscoped()
	}
	res := tx.Where(r.cfg.IDColumn+" = ?", id).Delete(new(E))
	if res.Error != nil {
		return result.Err[bool](apperrors.NewRepositoryError("delete", res.Error))
	}
	return result.Ok(res.RowsAffected > 0)
}

// Exists reports whether a live row with the id is present.
func (r *Gorm[E, C, U, K]) Exists(ctx context.Context, id K) result.Result[bool] {
	var count int64
	err := r.session(ctx, false).Model(new(E)).Where(r.cfg.IDColumn+" = ?", id).Count(&count).Error
	if err != nil {
		return result.Err[bool](apperrors.NewRepositoryError("exists", err))
	}
	return result.Ok(count > 0)
}

func (r *Gorm[E, C, U, K]) compileFilters(filters []Filter) (string, []any, error) {
	spec := filterSpec[E](filters)
	expr, err := specification.ToFilterExpression(spec, r.cfg.Schema)
	if err != nil {
		return "", nil, err
	}
	return specification.SQL(expr)
}

func (r *Gorm[E, C, U, K]) writeError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError(r.cfg.Entity, "duplicate key")
	}
	return apperrors.NewRepositoryError(op, err)
}
