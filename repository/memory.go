package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/forgeops/opcore/errors"
	"github.com/forgeops/opcore/result"
	"github.com/forgeops/opcore/specification"
)

// MemoryConfig binds the four type slots for the in-memory repository.
type MemoryConfig[E any, C any, U any, K ID] struct {
	// Entity names the entity family in errors.
	Entity string

	// New builds an entity from a create input, assigning its
	// identifier. It may return a ValidationError.
	New func(C) (E, error)

	// Apply returns a copy of the entity with the update applied.
	Apply func(E, U) (E, error)

	// IDOf extracts the identifier from an entity.
	IDOf func(E) K
}

type memoryRecord[E any] struct {
	entity  E
	deleted bool
}

// Memory is a map-backed repository binding. It keeps insertion order
// for stable listings and tracks the soft-delete marker per record. It
// is safe for concurrent use and exists chiefly for tests and small
// fixtures.
type Memory[E any, C any, U any, K ID] struct {
	mu      sync.RWMutex
	cfg     MemoryConfig[E, C, U, K]
	records map[K]*memoryRecord[E]
	order   []K
}

// NewMemory creates an empty in-memory repository.
func NewMemory[E any, C any, U any, K ID](cfg MemoryConfig[E, C, U, K]) *Memory[E, C, U, K] {
	return &Memory[E, C, U, K]{
		cfg:     cfg,
		records: make(map[K]*memoryRecord[E]),
	}
}

// GetByID returns the entity, or Ok(nil) when it is missing or
// soft-deleted and the caller did not opt into deleted records.
func (m *Memory[E, C, U, K]) GetByID(ctx context.Context, id K, opts ...ReadOption) result.Result[*E] {
	o := applyReadOptions(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok || (rec.deleted && !o.includeDeleted) {
		return result.Ok[*E](nil)
	}
	entity := rec.entity
	return result.Ok(&entity)
}

// GetAll returns a filtered, sorted, paged listing. Total counts every
// match regardless of paging.
func (m *Memory[E, C, U, K]) GetAll(ctx context.Context, q ListQuery) result.Result[Page[E]] {
	spec := filterSpec[E](q.Filters)

	m.mu.RLock()
	matched := make([]E, 0, len(m.order))
	for _, id := range m.order {
		rec := m.records[id]
		if rec.deleted && !q.IncludeDeleted {
			continue
		}
		if spec != nil && !spec.IsSatisfiedBy(rec.entity) {
			continue
		}
		matched = append(matched, rec.entity)
	}
	m.mu.RUnlock()

	sortEntities(matched, q.Sort)

	total := int64(len(matched))
	start := q.Skip
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	return result.Ok(Page[E]{Items: matched[start:end], Total: total})
}

// FindBySpecification returns every non-deleted entity satisfying the
// specification.
func (m *Memory[E, C, U, K]) FindBySpecification(ctx context.Context, spec specification.Specification[E]) result.Result[[]E] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]E, 0)
	for _, id := range m.order {
		rec := m.records[id]
		if rec.deleted {
			continue
		}
		if spec.IsSatisfiedBy(rec.entity) {
			matched = append(matched, rec.entity)
		}
	}
	return result.Ok(matched)
}

// Create builds and stores one entity.
func (m *Memory[E, C, U, K]) Create(ctx context.Context, input C) result.Result[E] {
	entity, err := m.cfg.New(input)
	if err != nil {
		return result.Err[E](err)
	}
	id := m.cfg.IDOf(entity)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[id]; exists {
		return result.Err[E](apperrors.NewConflictError(m.cfg.Entity, "identifier already exists"))
	}
	m.records[id] = &memoryRecord[E]{entity: entity}
	m.order = append(m.order, id)
	return result.Ok(entity)
}

// CreateMany stores all inputs or none. The failure names the index of
// the first input that could not be applied.
func (m *Memory[E, C, U, K]) CreateMany(ctx context.Context, inputs []C) result.Result[[]E] {
	entities := make([]E, 0, len(inputs))
	ids := make([]K, 0, len(inputs))
	for i, input := range inputs {
		entity, err := m.cfg.New(input)
		if err != nil {
			return result.Err[[]E](apperrors.NewRepositoryError(fmt.Sprintf("create_many[%d]", i), err))
		}
		entities = append(entities, entity)
		ids = append(ids, m.cfg.IDOf(entity))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if _, exists := m.records[id]; exists {
			return result.Err[[]E](apperrors.NewConflictError(m.cfg.Entity, "identifier already exists"))
		}
	}
	for i, entity := range entities {
		m.records[ids[i]] = &memoryRecord[E]{entity: entity}
		m.order = append(m.order, ids[i])
	}
	return result.Ok(entities)
}

// Update applies the update to a live record; missing or soft-deleted
// records fail with a NotFoundError.
func (m *Memory[E, C, U, K]) Update(ctx context.Context, id K, input U) result.Result[*E] {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.deleted {
		return result.Err[*E](apperrors.NewNotFoundError(m.cfg.Entity, id))
	}
	updated, err := m.cfg.Apply(rec.entity, input)
	if err != nil {
		return result.Err[*E](err)
	}
	rec.entity = updated
	entity := updated
	return result.Ok(&entity)
}

// Delete removes a record logically (soft) or irrecoverably (hard).
func (m *Memory[E, C, U, K]) Delete(ctx context.Context, id K, soft bool) result.Result[bool] {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || (soft && rec.deleted) {
		return result.Ok(false)
	}

	if soft {
		rec.deleted = true
		return result.Ok(true)
	}

	delete(m.records, id)
	for i, known := range m.order {
		if known == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return result.Ok(true)
}

// Exists reports whether a live record with the id is present.
func (m *Memory[E, C, U, K]) Exists(ctx context.Context, id K) result.Result[bool] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	return result.Ok(ok && !rec.deleted)
}

func sortEntities[E any](items []E, sorts []Sort) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, s := range sorts {
			a, aok := specification.FieldValue(items[i], s.Field)
			b, bok := specification.FieldValue(items[j], s.Field)
			if !aok || !bok {
				continue
			}
			c, ok := specification.OrderValues(a, b)
			if !ok || c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
