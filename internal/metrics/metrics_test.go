package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/filter/filterlist"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/metrics"
	"github.com/advblocker/advfilter/internal/rulestat"
	"github.com/advblocker/advfilter/internal/webrequest"
	"github.com/advblocker/advfilter/internal/websvc"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// type check
var (
	_ filterlist.Metrics    = (*metrics.FilterList)(nil)
	_ requestfilter.Metrics = (*metrics.RequestFilter)(nil)
	_ rulestat.Metrics      = (*metrics.RuleStat)(nil)
	_ webrequest.Metrics    = (*metrics.WebRequest)(nil)
	_ websvc.Metrics        = (*metrics.WebSvc)(nil)
)

// testNamespace is the metrics namespace for tests.
const testNamespace = "test"

// gatherFamily returns the metric family with the given name from reg.
func gatherFamily(tb testing.TB, reg prometheus.Gatherer, name string) (mf *dto.MetricFamily) {
	tb.Helper()

	mfs, err := reg.Gather()
	require.NoError(tb, err)

	for _, mf = range mfs {
		if mf.GetName() == name {
			return mf
		}
	}

	tb.Fatalf("no metric family %q", name)

	return nil
}

// labeledGauge returns the value of the gauge from mf with the given value of
// the label.
func labeledGauge(tb testing.TB, mf *dto.MetricFamily, label, val string) (v float64) {
	tb.Helper()

	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == val {
				return m.GetGauge().GetValue()
			}
		}
	}

	tb.Fatalf("no metric with %s=%q in %q", label, val, mf.GetName())

	return 0
}

func TestFilterList_SetListStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewFilterList(testNamespace, reg)
	require.NoError(t, err)

	ctx := context.Background()
	updTime := time.Unix(1_700_000_000, 0)

	m.SetListStatus(ctx, "1", updTime, 42, nil)
	m.SetListStatus(ctx, "2", updTime, 0, errors.Error("test error"))

	status := gatherFamily(t, reg, "test_filterlist_update_status")
	assert.Equal(t, 1.0, labeledGauge(t, status, "list", "1"))
	assert.Equal(t, 0.0, labeledGauge(t, status, "list", "2"))

	rules := gatherFamily(t, reg, "test_filterlist_rules_total")
	assert.Equal(t, 42.0, labeledGauge(t, rules, "list", "1"))
	assert.Len(t, rules.GetMetric(), 1)

	updated := gatherFamily(t, reg, "test_filterlist_updated_time")
	assert.Equal(t, float64(updTime.Unix()), labeledGauge(t, updated, "list", "1"))
}

func TestNewFilterList_duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewFilterList(testNamespace, reg)
	require.NoError(t, err)

	_, err = metrics.NewFilterList(testNamespace, reg)
	assert.Error(t, err)
}

func TestWebSvc_IncrementReqCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewWebSvc(testNamespace, reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.IncrementReqCount(ctx, websvc.RequestTypeRequest)
	m.IncrementReqCount(ctx, websvc.RequestTypeRequest)
	m.IncrementReqCount(ctx, websvc.RequestTypeError404)

	mf := gatherFamily(t, reg, "test_websvc_requests_total")

	got := map[string]float64{}
	for _, metric := range mf.GetMetric() {
		got[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}

	assert.Equal(t, 2.0, got[websvc.RequestTypeRequest])
	assert.Equal(t, 1.0, got[websvc.RequestTypeError404])
	assert.Equal(t, 0.0, got[websvc.RequestTypeLists])

	assert.Panics(t, func() {
		m.IncrementReqCount(ctx, "unknown")
	})
}

func TestWebRequest_IncrementVerdicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewWebRequest(testNamespace, reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.IncrementVerdicts(ctx, webrequest.VerdictKindCancel)
	m.SetContextsCount(ctx, 3)

	mf := gatherFamily(t, reg, "test_webrequest_contexts")
	require.Len(t, mf.GetMetric(), 1)

	assert.Equal(t, 3.0, mf.GetMetric()[0].GetGauge().GetValue())

	assert.Panics(t, func() {
		m.IncrementVerdicts(ctx, "unknown")
	})
}

func TestRuleStat_ObserveUpload(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewRuleStat(testNamespace, reg)
	require.NoError(t, err)

	ctx := context.Background()

	m.SetPendingHits(ctx, 10)
	m.ObserveUpload(ctx, 3, nil)
	m.ObserveUpload(ctx, 2, errors.Error("test error"))
	m.SetPendingHits(ctx, 0)

	pending := gatherFamily(t, reg, "test_rulestat_pending_hits")
	require.Len(t, pending.GetMetric(), 1)
	assert.Zero(t, pending.GetMetric()[0].GetGauge().GetValue())

	rules := gatherFamily(t, reg, "test_rulestat_uploaded_rules")
	require.Len(t, rules.GetMetric(), 1)
	assert.Equal(t, float64(3), rules.GetMetric()[0].GetGauge().GetValue())

	uploads := gatherFamily(t, reg, "test_rulestat_uploads_total")
	require.Len(t, uploads.GetMetric(), 2)

	for _, mtrc := range uploads.GetMetric() {
		assert.Equal(t, float64(1), mtrc.GetCounter().GetValue())
	}
}
