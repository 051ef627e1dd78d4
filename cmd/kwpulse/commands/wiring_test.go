package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/catalog"
	qtest "github.com/teranos/kwpulse/internal/testing"
)

func TestBuildCache(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		cache, closer := buildCache(ctx, am.CatalogCacheConfig{Backend: am.CacheNone}, nil)
		assert.Nil(t, cache)
		assert.Nil(t, closer)
	})

	t.Run("memory", func(t *testing.T) {
		cache, closer := buildCache(ctx, am.CatalogCacheConfig{Backend: am.CacheMemory, TTLSeconds: 60, MaxEntries: 10}, nil)
		assert.IsType(t, &catalog.MemoryCache{}, cache)
		assert.Nil(t, closer)
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		cfg := am.CatalogCacheConfig{Backend: am.CacheRedis, TTLSeconds: 60, MaxEntries: 10, RedisAddr: "127.0.0.1:1"}
		cache, closer := buildCache(ctx, cfg, nil)
		assert.IsType(t, &catalog.MemoryCache{}, cache)
		assert.Nil(t, closer)
	})
}

func TestBuildServices(t *testing.T) {
	database := qtest.CreateTestDB(t)
	cfg := am.DefaultConfig()

	t.Run("cached catalog", func(t *testing.T) {
		cfg.Catalog.Cache.Backend = am.CacheMemory
		svc := buildServices(context.Background(), cfg, database, nil)
		defer svc.Close()

		assert.IsType(t, &catalog.CachedClient{}, svc.catalog)
		assert.NotNil(t, svc.tracker)
		assert.NotNil(t, svc.budget)
		assert.NotNil(t, svc.engine)
		assert.NotNil(t, svc.generator)
		assert.False(t, svc.llm.IsConfigured())
	})

	t.Run("uncached catalog without database", func(t *testing.T) {
		cfg.Catalog.Cache.Backend = am.CacheNone
		svc := buildServices(context.Background(), cfg, nil, nil)
		defer svc.Close()

		assert.Same(t, svc.itunes, svc.catalog)
		assert.Nil(t, svc.tracker)
		assert.Nil(t, svc.budget)
	})
}

func TestApplyReload(t *testing.T) {
	database := qtest.CreateTestDB(t)
	cfg := am.DefaultConfig()
	cfg.Catalog.Cache.Backend = am.CacheNone

	svc := buildServices(context.Background(), cfg, database, nil)
	defer svc.Close()
	sched := newScheduler(database, svc, cfg, nil, nil)
	defer sched.Shutdown()

	cfg.Discovery.KeywordDelayMS = 10
	cfg.Discovery.ProviderDelayMS = 20
	cfg.Catalog.RequestDelayMS = 30
	cfg.Budget.DailyUSD = 3
	require.NoError(t, applyReload(sched, svc)(cfg))
	assert.Equal(t, 3.0, svc.budget.Limits().DailyUSD)
}
