package tilesource

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

// CachedFetcher is a read-through tile cache in front of another fetcher.
// Cache failures degrade to direct fetches.
type CachedFetcher struct {
	next  ports.TileFetcher
	cache ports.CacheService
	ttl   int
	log   *slog.Logger
}

var _ ports.TileFetcher = (*CachedFetcher)(nil)

// NewCachedFetcher wraps next. ttlSeconds of zero keeps tiles until evicted.
func NewCachedFetcher(next ports.TileFetcher, cache ports.CacheService, ttlSeconds int, log *slog.Logger) *CachedFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &CachedFetcher{next: next, cache: cache, ttl: ttlSeconds, log: log.With("component", "tilecache")}
}

// Key is the cache key of a tile.
func Key(urlTemplate string, z, x, y int) string {
	return "tile:" + ExpandURL(urlTemplate, z, x, y)
}

func (f *CachedFetcher) Fetch(ctx context.Context, urlTemplate string, z, x, y int) ([]byte, error) {
	key := Key(urlTemplate, z, x, y)

	data, err := f.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CacheHits.WithLabelValues("tile").Inc()
		return data, nil
	case !errors.Is(err, ports.ErrCacheMiss):
		f.log.Warn("tile cache read failed", "key", key, "error", err)
	}
	metrics.CacheMisses.WithLabelValues("tile").Inc()

	data, err = f.next.Fetch(ctx, urlTemplate, z, x, y)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Set(ctx, key, data, f.ttl); err != nil {
		f.log.Warn("tile cache write failed", "key", key, "error", err)
	}
	return data, nil
}
