package metrics

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, math.Inf(1),
}

type CommandMetrics struct {
	Commands *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	Retries  prometheus.Counter

	mu            sync.Mutex
	uniqueDevices *hyperloglog.Sketch
}

var NewCommandMetrics = sync.OnceValues(func() (*CommandMetrics, error) {
	commands, err := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hideaway_mdm_commands_total",
		Help: "Counts commands sent to the MDM server, broken down by request_type and HTTP status (or 'error')",
	}, []string{"request_type", "status"}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register command metrics")
	}

	latency, err := register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hideaway_mdm_request_latency",
		Help:    "Duration of MDM API requests, broken down by operation (enqueue, push, version)",
		Buckets: latencyBuckets,
	}, []string{"operation"}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register command metrics")
	}

	retries, err := register(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hideaway_mdm_retries_total",
		Help: "The number of retried MDM API requests",
	}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register command metrics")
	}

	m := &CommandMetrics{
		Commands:      commands,
		Latency:       latency,
		Retries:       retries,
		uniqueDevices: hyperloglog.New14(),
	}

	if _, err := register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "hideaway_mdm_unique_devices",
		Help: "Estimates the number of distinct devices commands were queued for (relative error ≈ 1.04%)",
	}, func() float64 {
		return float64(m.UniqueDevices())
	})); err != nil {
		return nil, errors.Wrap(err, "failed to register command metrics")
	}

	return m, nil
})

// ObserveDevices adds the UDIDs a command was queued for to the
// distinct-device estimate.
func (m *CommandMetrics) ObserveDevices(udids []string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, udid := range udids {
		m.uniqueDevices.Insert([]byte(udid))
	}
}

func (m *CommandMetrics) UniqueDevices() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uniqueDevices.Estimate()
}

func (m *CommandMetrics) Observe(operation, requestType string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if requestType == "" {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.Commands.WithLabelValues(requestType, label).Inc()
}
