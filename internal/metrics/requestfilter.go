package metrics

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// RequestFilter is the Prometheus-based implementation of the
// [requestfilter.Metrics] interface.
type RequestFilter struct {
	// rulesCount is a gauge with the number of rules of the active engine by
	// category.
	rulesCount *prometheus.GaugeVec

	// reloadDuration is a histogram with the durations of the engine reloads.
	reloadDuration prometheus.Histogram

	// reloadStatus is a gauge with the status of the last reload.
	reloadStatus prometheus.Gauge

	// reloadTime is a gauge with the time of the last successful reload.
	reloadTime prometheus.Gauge
}

// NewRequestFilter registers the request-filter metrics in reg and returns a
// properly initialized [*RequestFilter].
func NewRequestFilter(namespace string, reg prometheus.Registerer) (m *RequestFilter, err error) {
	const (
		rulesCount     = "engine_rules_total"
		reloadDuration = "reload_duration_seconds"
		reloadStatus   = "reload_status"
		reloadTime     = "reload_time"
	)

	m = &RequestFilter{
		rulesCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      rulesCount,
			Namespace: namespace,
			Subsystem: subsystemFilter,
			Help:      "The number of rules in the active engine by category.",
		}, []string{"category"}),
		reloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      reloadDuration,
			Namespace: namespace,
			Subsystem: subsystemFilter,
			Help:      "Time elapsed on building a new engine.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10},
		}),
		reloadStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      reloadStatus,
			Namespace: namespace,
			Subsystem: subsystemFilter,
			Help:      "Status of the last engine reload. 1 means success.",
		}),
		reloadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      reloadTime,
			Namespace: namespace,
			Subsystem: subsystemFilter,
			Help:      "Time when the engine was last successfully reloaded.",
		}),
	}

	collectors := container.KeyValues[string, prometheus.Collector]{{
		Key:   rulesCount,
		Value: m.rulesCount,
	}, {
		Key:   reloadDuration,
		Value: m.reloadDuration,
	}, {
		Key:   reloadStatus,
		Value: m.reloadStatus,
	}, {
		Key:   reloadTime,
		Value: m.reloadTime,
	}}

	err = registerCollectors(reg, collectors)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	return m, nil
}

// SetRulesCount implements the [requestfilter.Metrics] interface for
// *RequestFilter.
func (m *RequestFilter) SetRulesCount(_ context.Context, category string, n int) {
	m.rulesCount.WithLabelValues(category).Set(float64(n))
}

// ObserveReload implements the [requestfilter.Metrics] interface for
// *RequestFilter.
func (m *RequestFilter) ObserveReload(_ context.Context, dur time.Duration, err error) {
	m.reloadDuration.Observe(dur.Seconds())
	SetStatusGauge(m.reloadStatus, err)
	if err == nil {
		m.reloadTime.SetToCurrentTime()
	}
}
