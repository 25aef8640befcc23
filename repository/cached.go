package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forgeops/opcore/metrics"
	"github.com/forgeops/opcore/result"
	"github.com/forgeops/opcore/specification"
)

// Cached is a redis read-through decorator around a repository. GetByID
// hits the cache first; every write invalidates the affected key. Reads
// that opt into deleted records bypass the cache so the marker semantics
// stay with the inner binding.
type Cached[E any, C any, U any, K ID] struct {
	inner   Repository[E, C, U, K]
	rdb     redis.UniversalClient
	entity  string
	ttl     time.Duration
	idOf    func(E) K
	metrics *metrics.Metrics
}

// NewCached wraps a repository with a redis cache. metrics may be nil.
func NewCached[E any, C any, U any, K ID](
	inner Repository[E, C, U, K],
	rdb redis.UniversalClient,
	entity string,
	ttl time.Duration,
	idOf func(E) K,
	m *metrics.Metrics,
) *Cached[E, C, U, K] {
	return &Cached[E, C, U, K]{
		inner:   inner,
		rdb:     rdb,
		entity:  entity,
		ttl:     ttl,
		idOf:    idOf,
		metrics: m,
	}
}

func (c *Cached[E, C, U, K]) key(id K) string {
	return fmt.Sprintf("opcore:%s:%v", c.entity, id)
}

// GetByID serves from redis when possible. Cache faults fall through to
// the inner repository; a stale cache is worse than a slow read.
func (c *Cached[E, C, U, K]) GetByID(ctx context.Context, id K, opts ...ReadOption) result.Result[*E] {
	o := applyReadOptions(opts)
	if o.includeDeleted {
		return c.inner.GetByID(ctx, id, opts...)
	}

	payload, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if err == nil {
		var entity E
		if jsonErr := json.Unmarshal(payload, &entity); jsonErr == nil {
			c.recordHit()
			return result.Ok(&entity)
		}
	}
	c.recordMiss()

	r := c.inner.GetByID(ctx, id)
	if r.IsOk() && r.Value() != nil {
		if payload, err := json.Marshal(r.Value()); err == nil {
			c.rdb.Set(ctx, c.key(id), payload, c.ttl)
		}
	}
	return r
}

// GetAll always reads through; listings are not cached.
func (c *Cached[E, C, U, K]) GetAll(ctx context.Context, q ListQuery) result.Result[Page[E]] {
	return c.inner.GetAll(ctx, q)
}

// FindBySpecification always reads through.
func (c *Cached[E, C, U, K]) FindBySpecification(ctx context.Context, spec specification.Specification[E]) result.Result[[]E] {
	return c.inner.FindBySpecification(ctx, spec)
}

// Create delegates and warms the cache with the new entity.
func (c *Cached[E, C, U, K]) Create(ctx context.Context, input C) result.Result[E] {
	r := c.inner.Create(ctx, input)
	if r.IsOk() {
		if payload, err := json.Marshal(r.Value()); err == nil {
			c.rdb.Set(ctx, c.key(c.idOf(r.Value())), payload, c.ttl)
		}
	}
	return r
}

// CreateMany delegates without warming; bulk loads rarely re-read
// immediately.
func (c *Cached[E, C, U, K]) CreateMany(ctx context.Context, inputs []C) result.Result[[]E] {
	return c.inner.CreateMany(ctx, inputs)
}

// Update delegates and invalidates the cached entity.
func (c *Cached[E, C, U, K]) Update(ctx context.Context, id K, input U) result.Result[*E] {
	r := c.inner.Update(ctx, id, input)
	c.rdb.Del(ctx, c.key(id))
	return r
}

// Delete delegates and invalidates the cached entity.
func (c *Cached[E, C, U, K]) Delete(ctx context.Context, id K, soft bool) result.Result[bool] {
	r := c.inner.Delete(ctx, id, soft)
	c.rdb.Del(ctx, c.key(id))
	return r
}

// Exists delegates; a cache hit alone proves nothing once TTLs and
// invalidation race.
func (c *Cached[E, C, U, K]) Exists(ctx context.Context, id K) result.Result[bool] {
	return c.inner.Exists(ctx, id)
}

func (c *Cached[E, C, U, K]) recordHit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(c.entity).Inc()
	}
}

func (c *Cached[E, C, U, K]) recordMiss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(c.entity).Inc()
	}
}
