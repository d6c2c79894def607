package metrics

import (
	cache "github.com/go-pkgz/expirable-cache/v3"
)

// RegisterCacheStats exposes the internals of an expirable cache (hits,
// misses, additions, evictions and size) under name.
func RegisterCacheStats[K comparable, V any](name, help string, c cache.Cache[K, V]) error {
	_, err := register(NewStatsCollector(name, "type", help, func() map[string]int {
		stats := c.Stat()
		return map[string]int{
			"added":   stats.Added,
			"evicted": stats.Evicted,
			"hits":    stats.Hits,
			"misses":  stats.Misses,
			"size":    c.Len(),
		}
	}))
	return err
}
