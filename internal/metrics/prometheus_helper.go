package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// register adds c to the default registry. When an identical collector is
// already registered, that one is returned instead so repeated constructors
// share the same series.
func register[T prometheus.Collector](c T) (T, error) {
	err := prometheus.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

// StatsCollector exposes a callback's map as one gauge per label value.
type StatsCollector struct {
	callbackFn func() map[string]int
	desc       *prometheus.Desc
}

func NewStatsCollector(name, label, help string, callbackFn func() map[string]int) *StatsCollector {
	return &StatsCollector{
		callbackFn: callbackFn,
		desc:       prometheus.NewDesc(name, help, []string{label}, nil),
	}
}

func (coll *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- coll.desc
}

func (coll *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	for label, value := range coll.callbackFn() {
		ch <- prometheus.MustNewConstMetric(coll.desc, prometheus.GaugeValue, float64(value), label)
	}
}
