package metrics

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/container"
	"github.com/advblocker/advfilter/internal/webrequest"
	"github.com/prometheus/client_golang/prometheus"
)

// WebRequest is the Prometheus-based implementation of the
// [webrequest.Metrics] interface.
type WebRequest struct {
	// verdicts maps each verdict kind to its counter.
	verdicts map[webrequest.VerdictKind]prometheus.Counter

	// contexts is a gauge with the number of the stored request contexts.
	contexts prometheus.Gauge
}

// NewWebRequest registers the request-adapter metrics in reg and returns a
// properly initialized [*WebRequest].
func NewWebRequest(namespace string, reg prometheus.Registerer) (m *WebRequest, err error) {
	const (
		verdictsTotal = "verdicts_total"
		contexts      = "contexts"
	)

	verdictsCV := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      verdictsTotal,
		Namespace: namespace,
		Subsystem: subsystemWebRequest,
		Help:      "The number of request verdicts by kind.",
	}, []string{"kind"})

	m = &WebRequest{
		verdicts: map[webrequest.VerdictKind]prometheus.Counter{},
		contexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      contexts,
			Namespace: namespace,
			Subsystem: subsystemWebRequest,
			Help:      "The number of request contexts kept in memory.",
		}),
	}

	for _, k := range []webrequest.VerdictKind{
		webrequest.VerdictKindAllow,
		webrequest.VerdictKindCancel,
		webrequest.VerdictKindRedirect,
		webrequest.VerdictKindHeaders,
	} {
		m.verdicts[k] = verdictsCV.WithLabelValues(string(k))
	}

	collectors := container.KeyValues[string, prometheus.Collector]{{
		Key:   verdictsTotal,
		Value: verdictsCV,
	}, {
		Key:   contexts,
		Value: m.contexts,
	}}

	err = registerCollectors(reg, collectors)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	return m, nil
}

// IncrementVerdicts implements the [webrequest.Metrics] interface for
// *WebRequest.
func (m *WebRequest) IncrementVerdicts(_ context.Context, kind webrequest.VerdictKind) {
	ctr, ok := m.verdicts[kind]
	if !ok {
		panic(fmt.Errorf("incrementing verdicts: bad kind %q", kind))
	}

	ctr.Inc()
}

// SetContextsCount implements the [webrequest.Metrics] interface for
// *WebRequest.
func (m *WebRequest) SetContextsCount(_ context.Context, n int) {
	m.contexts.Set(float64(n))
}
