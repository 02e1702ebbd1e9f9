// Package metrics contains definitions of most of the prometheus metrics
// that we use in AdvFilter.
package metrics

import (
	"fmt"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// constants with the namespace and the subsystem names that we use in our
// prometheus metrics.
const (
	namespace = "advfilter"

	subsystemApplication = "app"
	subsystemFilter      = "filter"
	subsystemFilterList  = "filterlist"
	subsystemRuleStat    = "rulestat"
	subsystemWebRequest  = "webrequest"
	subsystemWebSvc      = "websvc"
)

// Namespace returns the namespace of the metrics of the application.
func Namespace() (ns string) {
	return namespace
}

// SetUpGauge signals that the filtering engine has been started and exposes the
// build information as the labels of the gauge.
func SetUpGauge(version, buildtime, branch, revision, goversion string) {
	upGauge := promauto.NewGauge(
		prometheus.GaugeOpts{
			Name:      "up",
			Namespace: namespace,
			Subsystem: subsystemApplication,
			Help: `A metric with a constant '1' value labeled by ` +
				`version and goversion from which the program was built.`,
			ConstLabels: prometheus.Labels{
				"version":   version,
				"buildtime": buildtime,
				"branch":    branch,
				"revision":  revision,
				"goversion": goversion,
			},
		},
	)

	upGauge.Set(1)
}

// SetStatusGauge is a helper function that automatically checks if there's an
// error and sets the gauge to either 1 (success) or 0 (error).
func SetStatusGauge(gauge prometheus.Gauge, err error) {
	if err == nil {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}

// SetAdditionalInfo adds a gauge with extra info labels.  If info is nil,
// SetAdditionalInfo does nothing.
func SetAdditionalInfo(info map[string]string) {
	if info == nil {
		return
	}

	gauge := promauto.NewGauge(
		prometheus.GaugeOpts{
			Name:      "additional_info",
			Namespace: namespace,
			Subsystem: subsystemApplication,
			Help: `A metric with a constant '1' value labeled by additional ` +
				`info provided in configuration`,
			ConstLabels: info,
		},
	)

	gauge.Set(1)
}

// registerCollectors registers the values of collectors in reg.  The keys are
// used in the error messages.
func registerCollectors(
	reg prometheus.Registerer,
	collectors container.KeyValues[string, prometheus.Collector],
) (err error) {
	var errs []error
	for _, c := range collectors {
		err = reg.Register(c.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.Key, err))
		}
	}

	return errors.Join(errs...)
}
