package recordings

import (
	"context"
	"time"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	"camward/pkg/cache"
)

const listCacheKey = "recordings:list"

// CachedCatalog memoizes listings so bursts of catalog requests do not
// rescan the directory. Rotation, stop and pruning refresh it.
type CachedCatalog struct {
	inner ports.RecordingCatalog
	cache *cache.Cache
	ttl   time.Duration
}

func NewCachedCatalog(inner ports.RecordingCatalog, c *cache.Cache, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{inner: inner, cache: c, ttl: ttl}
}

func (c *CachedCatalog) List(ctx context.Context) ([]domain.RecordingInfo, error) {
	value, err := c.cache.GetOrSet(ctx, listCacheKey, c.ttl, func(ctx context.Context) (interface{}, error) {
		return c.inner.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	infos, ok := value.([]domain.RecordingInfo)
	if !ok {
		return c.inner.List(ctx)
	}
	return infos, nil
}

func (c *CachedCatalog) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := c.inner.Prune(ctx, maxAge)
	if removed > 0 {
		c.Refresh()
	}
	return removed, err
}

// Refresh drops memoized listings, forcing the next List to rescan the
// directory. Hook it to recording lifecycle events.
func (c *CachedCatalog) Refresh() {
	c.cache.Invalidate("recordings:")
}
