package metrics

import (
	"context"

	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// RuleStat is the Prometheus-based implementation of the [rulestat.Metrics]
// interface.
type RuleStat struct {
	pendingHits    prometheus.Gauge
	uploadedRules  prometheus.Gauge
	lastUploadTime prometheus.Gauge

	// uploads has the label "status" with the values "success" and "error".
	uploads *prometheus.CounterVec
}

// NewRuleStat registers the rule hit statistics metrics in reg and returns a
// properly initialized [*RuleStat].
func NewRuleStat(namespace string, reg prometheus.Registerer) (m *RuleStat, err error) {
	const (
		pendingHits    = "pending_hits"
		uploadedRules  = "uploaded_rules"
		lastUploadTime = "last_upload_time"
		uploads        = "uploads_total"
	)

	m = &RuleStat{
		pendingHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      pendingHits,
			Namespace: namespace,
			Subsystem: subsystemRuleStat,
			Help:      "The number of rule hits collected since the last upload.",
		}),
		uploadedRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      uploadedRules,
			Namespace: namespace,
			Subsystem: subsystemRuleStat,
			Help:      "The number of rules in the last successful upload.",
		}),
		lastUploadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      lastUploadTime,
			Namespace: namespace,
			Subsystem: subsystemRuleStat,
			Help:      "The time of the last successful upload as a Unix timestamp.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      uploads,
			Namespace: namespace,
			Subsystem: subsystemRuleStat,
			Help:      "The number of uploads of the rule hit statistics by status.",
		}, []string{"status"}),
	}

	collectors := container.KeyValues[string, prometheus.Collector]{{
		Key:   pendingHits,
		Value: m.pendingHits,
	}, {
		Key:   uploadedRules,
		Value: m.uploadedRules,
	}, {
		Key:   lastUploadTime,
		Value: m.lastUploadTime,
	}, {
		Key:   uploads,
		Value: m.uploads,
	}}

	err = registerCollectors(reg, collectors)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	return m, nil
}

// SetPendingHits implements the [rulestat.Metrics] interface for *RuleStat.
func (m *RuleStat) SetPendingHits(_ context.Context, hits int64) {
	m.pendingHits.Set(float64(hits))
}

// ObserveUpload implements the [rulestat.Metrics] interface for *RuleStat.
func (m *RuleStat) ObserveUpload(_ context.Context, n int, err error) {
	if err != nil {
		m.uploads.WithLabelValues("error").Inc()

		return
	}

	m.uploads.WithLabelValues("success").Inc()
	m.uploadedRules.Set(float64(n))
	m.lastUploadTime.SetToCurrentTime()
}
