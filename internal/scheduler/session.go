package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal/config"
	"github.com/rm-hull/hideaway/internal/metrics"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"github.com/rm-hull/hideaway/internal/profiles"
	"github.com/robfig/cron/v3"
)

const (
	ActionBlock   = "block"
	ActionUnblock = "unblock"
)

// Deliverer is satisfied by *profiles.Delivery.
type Deliverer interface {
	Install(ctx context.Context, profile *mobileconfig.Profile, devices ...string) (*profiles.Receipt, error)
	Remove(ctx context.Context, identifier string, devices ...string) (*profiles.Receipt, error)
}

// SessionJob applies one side of a focus session: blocking at the start,
// removing the block at the end.
type SessionJob struct {
	session  config.SessionConfig
	action   string
	composer *profiles.Composer
	delivery Deliverer
	timeout  time.Duration
	metrics  *metrics.SchedulerMetrics
	logger   *slog.Logger
}

func NewSessionJob(session config.SessionConfig, action string, composer *profiles.Composer, delivery Deliverer, logger *slog.Logger) (cron.Job, error) {
	schedulerMetrics, err := metrics.NewSchedulerMetrics()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize")
	}

	return &SessionJob{
		session:  session,
		action:   action,
		composer: composer,
		delivery: delivery,
		timeout:  time.Minute,
		metrics:  schedulerMetrics,
		logger:   logger.With(slog.String("session", session.Name), slog.String("action", action)),
	}, nil
}

// profileName is the display name of the session's block profile. Removal
// derives the identifier from the same name.
func profileName(session config.SessionConfig) string {
	if session.Preset != "" {
		return session.Preset
	}
	return session.Name
}

func (job *SessionJob) compose() (*mobileconfig.Profile, error) {
	composer := job.composer
	if job.session.Web {
		composer = composer.WithWebFilter(true)
	}
	return composer.Compose(profileName(job.session), job.session.Preset, job.session.Apps)
}

func (job *SessionJob) apply(ctx context.Context) (*profiles.Receipt, error) {
	switch job.action {
	case ActionBlock:
		profile, err := job.compose()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to compose profile for session %q", job.session.Name)
		}
		return job.delivery.Install(ctx, profile, job.session.Devices...)

	case ActionUnblock:
		identifier := job.composer.Identifier(profileName(job.session))
		return job.delivery.Remove(ctx, identifier, job.session.Devices...)

	default:
		return nil, errors.Newf("unknown session action %q", job.action)
	}
}

func (job *SessionJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), job.timeout)
	defer cancel()

	receipt, err := job.apply(ctx)
	job.metrics.Observe(job.session.Name, job.action, err)
	if err != nil {
		job.logger.Error("Focus session transition failed", "error", err)
		return
	}
	job.logger.Info("Focus session transition applied",
		"identifier", receipt.Identifier,
		"devices", len(job.session.Devices),
		"command_uuid", receipt.CommandUUID,
		"path", receipt.Path)
}
