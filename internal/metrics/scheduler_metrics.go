package metrics

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type SchedulerMetrics struct {
	Runs *prometheus.CounterVec
}

var NewSchedulerMetrics = sync.OnceValues(func() (*SchedulerMetrics, error) {
	runs, err := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hideaway_scheduled_runs_total",
		Help: "Counts scheduled focus session transitions, broken down by session, action (block/unblock) and outcome",
	}, []string{"session", "action", "outcome"}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register scheduler metrics")
	}
	return &SchedulerMetrics{Runs: runs}, nil
})

func (m *SchedulerMetrics) Observe(session, action string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Runs.WithLabelValues(session, action, outcome).Inc()
}
