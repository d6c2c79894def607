package metrics

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const TopBlockedApps = 25

type ProfileMetrics struct {
	Generated   *prometheus.CounterVec
	Payloads    prometheus.Histogram
	BlockedApps *TopK
}

// NewProfileMetrics returns the process-wide profile metrics, registering
// them on first use.
var NewProfileMetrics = sync.OnceValues(newProfileMetrics)

func newProfileMetrics() (*ProfileMetrics, error) {
	blockedApps := NewTopK(TopBlockedApps)

	generated, err := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hideaway_profiles_generated_total",
		Help: "Counts assembled profiles, broken down by kind (block, unblock, enrollment, web)",
	}, []string{"kind"}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register profile metrics")
	}

	payloads, err := register(prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hideaway_profile_payloads",
		Help:    "Number of payloads carried by each assembled profile",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
	}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register profile metrics")
	}

	if _, err := register(NewStatsCollector("hideaway_top_blocked_apps", "bundle_id",
		fmt.Sprintf("Shows the top %d most frequently blocked apps", TopBlockedApps),
		func() map[string]int { return blockedApps.Snapshot(TopBlockedApps) },
	)); err != nil {
		return nil, errors.Wrap(err, "failed to register profile metrics")
	}

	return &ProfileMetrics{
		Generated:   generated,
		Payloads:    payloads,
		BlockedApps: blockedApps,
	}, nil
}

func (m *ProfileMetrics) Observe(kind string, payloads int, bundleIDs []string) {
	if m == nil {
		return
	}
	m.Generated.WithLabelValues(kind).Inc()
	m.Payloads.Observe(float64(payloads))
	for _, bundleID := range bundleIDs {
		m.BlockedApps.Observe(bundleID)
	}
}
