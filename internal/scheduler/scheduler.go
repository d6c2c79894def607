package scheduler

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal/config"
	"github.com/rm-hull/hideaway/internal/logging"
	"github.com/rm-hull/hideaway/internal/profiles"
	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New registers a block and an unblock job for every session. Schedules use
// the standard five-field cron syntax (or descriptors such as @daily).
func New(sessions []config.SessionConfig, composer *profiles.Composer, delivery Deliverer, logger *slog.Logger) (*Scheduler, error) {
	logger = logger.With(slog.String("source", "scheduler"))
	cronLogger := logging.NewCronLogger(logger, "cron")

	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	for _, session := range sessions {
		for action, spec := range map[string]string{ActionBlock: session.Start, ActionUnblock: session.End} {
			schedule, err := cron.ParseStandard(spec)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid %s schedule %q for session %q", action, spec, session.Name)
			}
			job, err := NewSessionJob(session, action, composer, delivery, logger)
			if err != nil {
				return nil, err
			}
			c.Schedule(schedule, job)
		}
		logger.Info("Focus session scheduled",
			"session", session.Name,
			"start", session.Start,
			"end", session.End,
			"devices", len(session.Devices))
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

// AddJob schedules a housekeeping job alongside the focus sessions.
func (s *Scheduler) AddJob(spec string, job cron.Job) error {
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", spec)
	}
	return nil
}

func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Run starts the cron loop and blocks until ctx is done, then waits for any
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()

	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}
