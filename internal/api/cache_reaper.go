package api

import (
	"log/slog"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/robfig/cron/v3"
)

type CacheReaperCronJob[K comparable, V any] struct {
	cache  cache.Cache[K, V]
	logger *slog.Logger
}

// NewCacheReaperCronJob drops expired entries so they stop holding memory
// between requests.
func NewCacheReaperCronJob[K comparable, V any](c cache.Cache[K, V], logger *slog.Logger) cron.Job {
	return &CacheReaperCronJob[K, V]{cache: c, logger: logger}
}

func (job *CacheReaperCronJob[K, V]) Run() {
	sizeBefore := job.cache.Len()
	job.cache.DeleteExpired()
	sizeAfter := job.cache.Len()

	if sizeBefore != sizeAfter {
		job.logger.Debug("Reaped expired cache entries", "before", sizeBefore, "after", sizeAfter)
	}
}
