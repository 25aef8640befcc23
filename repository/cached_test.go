package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/opcore/metrics"
)

// fakeRedis covers the three commands the cache decorator issues; any
// other call panics through the nil embedded client.
type fakeRedis struct {
	redis.UniversalClient
	store map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if v, ok := f.store[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.store[key] = string(v)
	case string:
		f.store[key] = v
	}
	cmd := redis.NewStatusCmd(ctx, "set", key)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.store[key]; ok {
			delete(f.store, key)
			removed++
		}
	}
	cmd := redis.NewIntCmd(ctx, "del")
	cmd.SetVal(removed)
	return cmd
}

func (f *fakeRedis) prime(t *testing.T, key string, entity widget) {
	t.Helper()
	payload, err := json.Marshal(entity)
	require.NoError(t, err)
	f.store[key] = string(payload)
}

func newCachedWidgetRepo(t *testing.T) (*Cached[widget, createWidget, updateWidget, string], *Memory[widget, createWidget, updateWidget, string], *fakeRedis, *metrics.Metrics) {
	t.Helper()
	inner := newWidgetRepo()
	rdb := newFakeRedis()
	m := metrics.New("cached_test", prometheus.NewRegistry())
	cached := NewCached[widget, createWidget, updateWidget, string](
		inner, rdb, "widget", time.Minute,
		func(w widget) string { return w.ID },
		m,
	)
	return cached, inner, rdb, m
}

func TestCached_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("miss reads through and warms the cache", func(t *testing.T) {
		cached, inner, rdb, m := newCachedWidgetRepo(t)
		require.True(t, inner.Create(ctx, createWidget{Name: "widget"}).IsOk())

		got := cached.GetByID(ctx, "E1")
		require.True(t, got.IsOk())
		require.NotNil(t, got.Value())
		assert.Equal(t, "widget", got.Value().Name)

		assert.Contains(t, rdb.store, "opcore:widget:E1")
		assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("widget")))
		assert.Equal(t, float64(0), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("widget")))
	})

	t.Run("hit is served without touching the inner repository", func(t *testing.T) {
		cached, _, rdb, m := newCachedWidgetRepo(t)
		// The inner repository has no record at all, so the value can
		// only come from the cache.
		rdb.prime(t, "opcore:widget:E1", widget{ID: "E1", Name: "from-cache"})

		got := cached.GetByID(ctx, "E1")
		require.True(t, got.IsOk())
		require.NotNil(t, got.Value())
		assert.Equal(t, "from-cache", got.Value().Name)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("widget")))
	})

	t.Run("missing record is not cached", func(t *testing.T) {
		cached, _, rdb, _ := newCachedWidgetRepo(t)

		got := cached.GetByID(ctx, "ghost")
		require.True(t, got.IsOk())
		assert.Nil(t, got.Value())
		assert.NotContains(t, rdb.store, "opcore:widget:ghost")
	})

	t.Run("include-deleted bypasses the cache", func(t *testing.T) {
		cached, inner, rdb, m := newCachedWidgetRepo(t)
		require.True(t, inner.Create(ctx, createWidget{Name: "widget"}).IsOk())
		inner.Delete(ctx, "E1", true)
		rdb.prime(t, "opcore:widget:E1", widget{ID: "E1", Name: "stale"})

		got := cached.GetByID(ctx, "E1", IncludeDeleted())
		require.True(t, got.IsOk())
		require.NotNil(t, got.Value())
		assert.Equal(t, "widget", got.Value().Name)
		assert.Equal(t, float64(0), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("widget")))
	})
}

func TestCached_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("create warms the cache", func(t *testing.T) {
		cached, _, rdb, _ := newCachedWidgetRepo(t)

		created := cached.Create(ctx, createWidget{Name: "widget"})
		require.True(t, created.IsOk())
		assert.Contains(t, rdb.store, "opcore:widget:E1")
	})

	t.Run("update invalidates", func(t *testing.T) {
		cached, _, rdb, _ := newCachedWidgetRepo(t)
		require.True(t, cached.Create(ctx, createWidget{Name: "widget"}).IsOk())
		require.Contains(t, rdb.store, "opcore:widget:E1")

		name := "renamed"
		updated := cached.Update(ctx, "E1", updateWidget{Name: &name})
		require.True(t, updated.IsOk())
		assert.NotContains(t, rdb.store, "opcore:widget:E1")
	})

	t.Run("delete invalidates", func(t *testing.T) {
		cached, _, rdb, _ := newCachedWidgetRepo(t)
		require.True(t, cached.Create(ctx, createWidget{Name: "widget"}).IsOk())

		deleted := cached.Delete(ctx, "E1", true)
		require.True(t, deleted.IsOk())
		assert.NotContains(t, rdb.store, "opcore:widget:E1")

		// The next default read sees the soft-deleted state, not a
		// resurrected cache entry.
		got := cached.GetByID(ctx, "E1")
		require.True(t, got.IsOk())
		assert.Nil(t, got.Value())
		assert.NotContains(t, rdb.store, "opcore:widget:E1")
	})
}

func TestCached_Delegation(t *testing.T) {
	ctx := context.Background()
	cached, inner, rdb, _ := newCachedWidgetRepo(t)
	require.True(t, inner.Create(ctx, createWidget{Name: "widget"}).IsOk())

	t.Run("exists consults the inner repository, never the cache", func(t *testing.T) {
		rdb.prime(t, "opcore:widget:ghost", widget{ID: "ghost"})
		exists := cached.Exists(ctx, "ghost")
		require.True(t, exists.IsOk())
		assert.False(t, exists.Value())
	})

	t.Run("listings read through", func(t *testing.T) {
		page := cached.GetAll(ctx, ListQuery{})
		require.True(t, page.IsOk())
		assert.Equal(t, int64(1), page.Value().Total)
	})
}
