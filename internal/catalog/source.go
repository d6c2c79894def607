package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Source holds the catalog currently in use. A reload swaps in a new
// catalog atomically; callers holding the previous one keep a consistent
// view until they ask again.
type Source struct {
	uri     string
	current atomic.Pointer[Catalog]
	logger  *slog.Logger
}

// Static wraps a fixed catalog. Reloading it is a no-op.
func Static(c *Catalog) *Source {
	s := &Source{logger: slog.Default()}
	s.current.Store(c)
	return s
}

func NewSource(ctx context.Context, logger *slog.Logger, uri string) (*Source, error) {
	c, err := Load(ctx, logger, uri)
	if err != nil {
		return nil, err
	}
	s := &Source{uri: uri, logger: logger.With(slog.String("source", "catalog"))}
	s.current.Store(c)
	return s, nil
}

func (s *Source) Current() *Catalog {
	return s.current.Load()
}

func (s *Source) URI() string {
	return s.uri
}

// Reload fetches the catalog again. On failure the current catalog stays
// in place.
func (s *Source) Reload(ctx context.Context) error {
	if s.uri == "" {
		return nil
	}
	c, err := Load(ctx, s.logger, s.uri)
	if err != nil {
		return err
	}
	s.current.Store(c)
	return nil
}

type ReloadCronJob struct {
	source  *Source
	timeout time.Duration
}

func NewReloadCronJob(source *Source) cron.Job {
	return &ReloadCronJob{source: source, timeout: time.Minute}
}

func (job *ReloadCronJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), job.timeout)
	defer cancel()

	if err := job.source.Reload(ctx); err != nil {
		job.source.logger.Error("failed to reload catalog, keeping the previous one", "uri", redact(job.source.uri), "error", err)
	}
}
