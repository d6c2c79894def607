package metrics

import (
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type ValidationMetrics struct {
	Results *prometheus.CounterVec
	Issues  *prometheus.CounterVec
}

var NewValidationMetrics = sync.OnceValues(func() (*ValidationMetrics, error) {
	results, err := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hideaway_validations_total",
		Help: "Counts validated profile documents, broken down by outcome (valid true/false)",
	}, []string{"valid"}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register validation metrics")
	}

	issues, err := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hideaway_validation_issues_total",
		Help: "Counts validation issues, broken down by kind",
	}, []string{"kind"}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to register validation metrics")
	}

	return &ValidationMetrics{Results: results, Issues: issues}, nil
})

func (m *ValidationMetrics) Observe(valid bool, issueKinds []string) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(strconv.FormatBool(valid)).Inc()
	for _, kind := range issueKinds {
		m.Issues.WithLabelValues(kind).Inc()
	}
}
