package metrics

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
)

// FilterList is the Prometheus-based implementation of the
// [filterlist.Metrics] interface.
type FilterList struct {
	// rulesTotal is a gauge with the number of rules loaded by each filter
	// list.
	rulesTotal *prometheus.GaugeVec

	// updatedTime is a gauge with the time when each filter list was last
	// updated.
	updatedTime *prometheus.GaugeVec

	// updateStatus is a gauge with the status of the last update of each
	// filter list.  "0" means error, "1" means success.
	updateStatus *prometheus.GaugeVec
}

// NewFilterList registers the filter-list metrics in reg and returns a
// properly initialized [*FilterList].
func NewFilterList(namespace string, reg prometheus.Registerer) (m *FilterList, err error) {
	const (
		rulesTotal   = "rules_total"
		updatedTime  = "updated_time"
		updateStatus = "update_status"
	)

	m = &FilterList{
		rulesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      rulesTotal,
			Namespace: namespace,
			Subsystem: subsystemFilterList,
			Help:      "The number of rules loaded by filter lists.",
		}, []string{"list"}),
		updatedTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      updatedTime,
			Namespace: namespace,
			Subsystem: subsystemFilterList,
			Help:      "Time when the filter list was last time updated.",
		}, []string{"list"}),
		updateStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      updateStatus,
			Namespace: namespace,
			Subsystem: subsystemFilterList,
			Help:      "Status of the filter list update. 1 means success.",
		}, []string{"list"}),
	}

	collectors := container.KeyValues[string, prometheus.Collector]{{
		Key:   rulesTotal,
		Value: m.rulesTotal,
	}, {
		Key:   updatedTime,
		Value: m.updatedTime,
	}, {
		Key:   updateStatus,
		Value: m.updateStatus,
	}}

	err = registerCollectors(reg, collectors)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	return m, nil
}

// SetListStatus implements the [filterlist.Metrics] interface for
// *FilterList.
func (m *FilterList) SetListStatus(
	_ context.Context,
	id string,
	updTime time.Time,
	ruleCount int,
	err error,
) {
	SetStatusGauge(m.updateStatus.WithLabelValues(id), err)
	if err != nil {
		return
	}

	m.updatedTime.WithLabelValues(id).Set(float64(updTime.Unix()))
	m.rulesTotal.WithLabelValues(id).Set(float64(ruleCount))
}
