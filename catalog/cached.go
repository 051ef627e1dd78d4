package catalog

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"
)

// CachedClient serves repeated Search and Autocomplete calls from a Cache.
// Cache failures are logged and the call falls through to the wrapped client.
type CachedClient struct {
	inner  Client
	cache  Cache
	logger *zap.SugaredLogger
}

// NewCachedClient wraps inner with cache.
func NewCachedClient(inner Client, cache Cache, logger *zap.SugaredLogger) *CachedClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CachedClient{inner: inner, cache: cache, logger: logger}
}

func (c *CachedClient) Search(ctx context.Context, term, country string, limit int) ([]App, error) {
	key := CacheKey("search", term, country, strconv.Itoa(limit))
	var apps []App
	if c.load(ctx, key, &apps) {
		return apps, nil
	}

	apps, err := c.inner.Search(ctx, term, country, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, apps)
	return apps, nil
}

func (c *CachedClient) Autocomplete(ctx context.Context, term, country string) ([]Hint, error) {
	key := CacheKey("hints", term, country)
	var hints []Hint
	if c.load(ctx, key, &hints) {
		return hints, nil
	}

	hints, err := c.inner.Autocomplete(ctx, term, country)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, hints)
	return hints, nil
}

func (c *CachedClient) load(ctx context.Context, key string, dst any) bool {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warnw("Catalog cache read failed", "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warnw("Catalog cache entry undecodable", "error", err)
		return false
	}
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warnw("Catalog cache encode failed", "error", err)
		return
	}
	if err := c.cache.Set(ctx, key, raw); err != nil {
		c.logger.Warnw("Catalog cache write failed", "error", err)
	}
}
