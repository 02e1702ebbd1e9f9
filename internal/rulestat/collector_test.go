package rulestat_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/rulestat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testListID is the common filter list ID for tests.
const testListID filter.ListID = 2

// Common rules for tests.
const (
	testRuleAds     filter.RuleText = "||ads.example^"
	testRuleTracker filter.RuleText = "||tracker.example^"
)

// testMetrics is a [rulestat.Metrics] for tests.
type testMetrics struct {
	onSetPendingHits func(ctx context.Context, hits int64)
	onObserveUpload  func(ctx context.Context, n int, err error)
}

// type check
var _ rulestat.Metrics = (*testMetrics)(nil)

// SetPendingHits implements the [rulestat.Metrics] interface for *testMetrics.
func (m *testMetrics) SetPendingHits(ctx context.Context, hits int64) {
	m.onSetPendingHits(ctx, hits)
}

// ObserveUpload implements the [rulestat.Metrics] interface for *testMetrics.
func (m *testMetrics) ObserveUpload(ctx context.Context, n int, err error) {
	m.onObserveUpload(ctx, n, err)
}

// handleWithURL starts the test server with h, finishes it on cleanup, and
// returns its URL.
func handleWithURL(tb testing.TB, h http.Handler) (u *url.URL) {
	tb.Helper()

	srv := httptest.NewServer(h)
	tb.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(tb, err)

	return u
}

func TestCollector_Refresh(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		want string
		hits []*rulestat.Hit
	}{{
		name: "single",
		want: `{"filters":{"2":{"||ads.example^":1}}}`,
		hits: []*rulestat.Hit{{
			Rule:   testRuleAds,
			URL:    "https://ads.example/a.js",
			ListID: testListID,
		}},
	}, {
		name: "several_alike",
		want: `{"filters":{"2":{"||ads.example^":2}}}`,
		hits: []*rulestat.Hit{{
			Rule:   testRuleAds,
			URL:    "https://ads.example/a.js",
			ListID: testListID,
		}, {
			Rule:   testRuleAds,
			URL:    "https://ads.example/b.js",
			ListID: testListID,
		}},
	}, {
		name: "several_different",
		want: `{"filters":{"2":{"||ads.example^":1,"||tracker.example^":1},"0":{"||ads.example^":1}}}`,
		hits: []*rulestat.Hit{{
			Rule:   testRuleAds,
			URL:    "https://ads.example/a.js",
			ListID: testListID,
		}, {
			Rule:   testRuleTracker,
			URL:    "https://tracker.example/",
			ListID: testListID,
		}, {
			Rule:   testRuleAds,
			URL:    "https://ads.example/a.js",
			ListID: filter.ListIDUser,
		}},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := &bytes.Buffer{}
			u := handleWithURL(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				pt := testutil.PanicT{}

				_, err := io.Copy(b, r.Body)
				require.NoError(pt, err)

				w.WriteHeader(http.StatusOK)
			}))

			var uploadErr error
			s := rulestat.New(&rulestat.Config{
				Logger: slogutil.NewDiscardLogger(),
				Metrics: &testMetrics{
					onSetPendingHits: func(_ context.Context, _ int64) {},
					onObserveUpload: func(_ context.Context, _ int, err error) {
						uploadErr = err
					},
				},
				URL: u,
			})

			ctx := testutil.ContextWithTimeout(t, testTimeout)
			for _, hit := range tc.hits {
				s.Collect(ctx, hit)
			}

			err := s.Refresh(testutil.ContextWithTimeout(t, testTimeout))
			require.NoError(t, err)
			require.NoError(t, uploadErr)

			assert.JSONEq(t, tc.want, b.String())
			assert.Empty(t, s.Stats())
		})
	}
}

func TestCollector_Stats(t *testing.T) {
	t.Parallel()

	var hitCount int64
	s := rulestat.New(&rulestat.Config{
		Logger: slogutil.NewDiscardLogger(),
		Metrics: &testMetrics{
			onSetPendingHits: func(_ context.Context, hits int64) {
				hitCount = hits
			},
			onObserveUpload: func(_ context.Context, _ int, _ error) {
				panic("unexpected upload")
			},
		},
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	for _, u := range []string{"https://a.ads.example/", "https://b.ads.example/", "https://a.ads.example/x"} {
		s.Collect(ctx, &rulestat.Hit{
			Rule:   testRuleAds,
			URL:    u,
			ListID: testListID,
			TabID:  1,
		})
	}

	s.Collect(ctx, &rulestat.Hit{
		Rule:   testRuleTracker,
		URL:    "https://tracker.example/",
		ListID: testListID,
		TabID:  2,
	})

	assert.Equal(t, int64(4), hitCount)

	want := []*rulestat.RuleStat{{
		Rule:   testRuleAds,
		Hits:   3,
		Hosts:  2,
		Tabs:   1,
		ListID: testListID,
	}, {
		Rule:   testRuleTracker,
		Hits:   1,
		Hosts:  1,
		Tabs:   1,
		ListID: testListID,
	}}
	assert.Equal(t, want, s.Stats())

	// Without a URL, the statistics are kept.
	require.NoError(t, s.Refresh(ctx))
	assert.Len(t, s.Stats(), 2)
}

func TestCollector_Refresh_errors(t *testing.T) {
	t.Parallel()

	u := handleWithURL(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	var uploadErr error
	s := rulestat.New(&rulestat.Config{
		Logger: slogutil.NewDiscardLogger(),
		Metrics: &testMetrics{
			onSetPendingHits: func(_ context.Context, _ int64) {},
			onObserveUpload: func(_ context.Context, _ int, err error) {
				uploadErr = err
			},
		},
		URL: u,
	})

	var serr *advhttp.StatusError
	err := s.Refresh(testutil.ContextWithTimeout(t, testTimeout))
	require.ErrorAs(t, err, &serr)

	assert.Equal(t, http.StatusInternalServerError, serr.Got)
	assert.Equal(t, err, uploadErr)
}
