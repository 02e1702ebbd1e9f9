package webrequest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/advcache"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/advblocker/advfilter/internal/filter/stealth"
	"github.com/advblocker/advfilter/internal/filter/whitelist"
	"github.com/advblocker/advfilter/internal/rulestat"
	"github.com/advblocker/advfilter/internal/webrequest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testListID is the ID of the filter list of the rules in tests.
const testListID filter.ListID = 2

// testTabID is the common tab ID for tests.
const testTabID = 1

// Common hosts and URLs for tests.
const (
	hostAds   = "ads.example.com"
	hostSite  = "site.com"
	hostPopup = "example.com"

	urlSite      = "http://" + hostSite
	urlSitePage  = "http://" + hostSite + "/"
	urlAdsScript = "http://" + hostAds + "/x.js"
	urlPopup     = "http://" + hostPopup + "/landing"
	urlAPI       = "http://" + hostSite + "/api/data"
)

// testRedirects is the YAML list of the redirect resources for tests.
const testRedirects = `
- title: noopjs
  contentType: application/javascript
  content: |
    (function() {})()
`

// testRuleStat is the [rulestat.Interface] implementation for tests.
type testRuleStat struct {
	mu   *sync.Mutex
	hits []*rulestat.Hit
}

// type check
var _ rulestat.Interface = (*testRuleStat)(nil)

// Collect implements the [rulestat.Interface] interface for *testRuleStat.
func (s *testRuleStat) Collect(_ context.Context, hit *rulestat.Hit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits = append(s.hits, hit)
}

// collected returns the hits collected so far.
func (s *testRuleStat) collected() (hits []*rulestat.Hit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*rulestat.Hit(nil), s.hits...)
}

// testEnv is the common environment for the request adapter tests.
type testEnv struct {
	svc       *webrequest.Service
	filter    *requestfilter.Filter
	whitelist *whitelist.Whitelist
	ruleStat  *testRuleStat
}

// newEnv is a helper that returns a new test environment with a filter
// containing the rules with the given texts.
func newEnv(tb testing.TB, texts ...string) (env *testEnv) {
	tb.Helper()

	ctx := testutil.ContextWithTimeout(tb, testTimeout)

	redirects, err := requestfilter.ParseRedirects([]byte(testRedirects))
	require.NoError(tb, err)

	f := requestfilter.New(&requestfilter.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Metrics:      requestfilter.EmptyMetrics{},
		CacheManager: advcache.EmptyManager{},
		Clock:        timeutil.SystemClock{},
		Redirects:    redirects,
		CacheSize:    100,
	})

	rules := make([]rule.Rule, 0, len(texts))
	for _, text := range texts {
		var r rule.Rule
		r, err = rule.New(text, testListID)
		require.NoError(tb, err)
		require.NotNil(tb, r)

		rules = append(rules, r)
	}

	require.NoError(tb, f.Reload(ctx, rules))

	wl, err := whitelist.New(ctx, &whitelist.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Clock:        timeutil.SystemClock{},
		CacheManager: advcache.EmptyManager{},
		Initial:      &whitelist.State{DefaultMode: true},
	})
	require.NoError(tb, err)

	st, err := stealth.New(&stealth.Config{
		Logger:  slogutil.NewDiscardLogger(),
		Rules:   f,
		Enabled: false,
	})
	require.NoError(tb, err)

	rs := &testRuleStat{
		mu: &sync.Mutex{},
	}

	svc := webrequest.New(&webrequest.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Filter:       f,
		Whitelist:    wl,
		Stealth:      st,
		RuleStat:     rs,
		Metrics:      webrequest.EmptyMetrics{},
		CacheManager: advcache.EmptyManager{},
		ContextTTL:   1 * time.Minute,
		TabTTL:       1 * time.Minute,
		CollectHits:  true,
	})

	return &testEnv{
		svc:       svc,
		filter:    f,
		whitelist: wl,
		ruleStat:  rs,
	}
}

// openPage is a helper that navigates the tab to the document at u.
func (env *testEnv) openPage(tb testing.TB, tabID int, u string) {
	tb.Helper()

	ctx := testutil.ContextWithTimeout(tb, testTimeout)
	v := env.svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
		RequestID: "doc-" + u,
		URL:       u,
		Type:      filter.TypeDocument,
		TabID:     tabID,
		FrameID:   webrequest.MainFrameID,
	})
	require.Equal(tb, &webrequest.Verdict{}, v)
}

func TestService_OnBeforeRequest(t *testing.T) {
	t.Parallel()

	const (
		ruleBlockAds      = "||" + hostAds + "^"
		ruleDocumentAllow = "@@||" + hostAds + "^$document"
		ruleRedirect      = "||cdn.example^$redirect=noopjs"
		ruleRedirectBad   = "||missing.example^$redirect=nooptext"
		ruleReplace       = "||" + hostAds + "^$replace=/ad/x/"
	)

	testCases := []struct {
		want    *webrequest.Verdict
		name    string
		url     string
		ref     string
		rules   []string
		typ     filter.RequestType
		wantHit bool
	}{{
		want:    &webrequest.Verdict{Cancel: true},
		name:    "blocked",
		url:     urlAdsScript,
		ref:     urlSite,
		rules:   []string{ruleBlockAds},
		typ:     filter.TypeScript,
		wantHit: true,
	}, {
		want:    &webrequest.Verdict{},
		name:    "document_whitelist",
		url:     urlAdsScript,
		ref:     urlSite,
		rules:   []string{ruleBlockAds, ruleDocumentAllow},
		typ:     filter.TypeScript,
		wantHit: false,
	}, {
		want:    &webrequest.Verdict{},
		name:    "no_rules",
		url:     urlAdsScript,
		ref:     urlSite,
		rules:   nil,
		typ:     filter.TypeScript,
		wantHit: false,
	}, {
		want:    &webrequest.Verdict{},
		name:    "not_http",
		url:     "chrome-extension://" + hostAds + "/x.js",
		ref:     urlSite,
		rules:   []string{ruleBlockAds},
		typ:     filter.TypeScript,
		wantHit: false,
	}, {
		want: &webrequest.Verdict{
			RedirectURL: "data:application/javascript;base64,KGZ1bmN0aW9uKCkge30pKCkK",
		},
		name:    "redirect",
		url:     "http://cdn.example/lib.js",
		ref:     urlSite,
		rules:   []string{ruleRedirect},
		typ:     filter.TypeScript,
		wantHit: true,
	}, {
		want:    &webrequest.Verdict{Cancel: true},
		name:    "redirect_missing",
		url:     "http://missing.example/lib.js",
		ref:     urlSite,
		rules:   []string{ruleRedirectBad},
		typ:     filter.TypeScript,
		wantHit: true,
	}, {
		want:    &webrequest.Verdict{},
		name:    "replace",
		url:     urlAdsScript,
		ref:     urlSite,
		rules:   []string{ruleReplace},
		typ:     filter.TypeScript,
		wantHit: false,
	}, {
		want:    &webrequest.Verdict{Cancel: true},
		name:    "websocket",
		url:     "wss://" + hostAds + "/feed",
		ref:     urlSite,
		rules:   []string{ruleBlockAds},
		typ:     filter.TypeWebSocket,
		wantHit: true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newEnv(t, tc.rules...)
			env.openPage(t, testTabID, urlSitePage)

			ctx := testutil.ContextWithTimeout(t, testTimeout)
			v := env.svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
				RequestID:   "1",
				URL:         tc.url,
				ReferrerURL: tc.ref,
				Type:        tc.typ,
				TabID:       testTabID,
				FrameID:     webrequest.MainFrameID,
			})
			assert.Equal(t, tc.want, v)

			hits := env.ruleStat.collected()
			if !tc.wantHit {
				assert.Empty(t, hits)

				return
			}

			require.Len(t, hits, 1)

			assert.Equal(t, tc.url, hits[0].URL)
			assert.Equal(t, testListID, hits[0].ListID)
			assert.Equal(t, testTabID, hits[0].TabID)
		})
	}
}

func TestService_OnBeforeRequest_notReady(t *testing.T) {
	t.Parallel()

	f := requestfilter.New(&requestfilter.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Metrics:      requestfilter.EmptyMetrics{},
		CacheManager: advcache.EmptyManager{},
		Clock:        timeutil.SystemClock{},
	})

	svc := webrequest.New(&webrequest.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Filter:       f,
		Whitelist:    nil,
		Stealth:      nil,
		RuleStat:     rulestat.Empty{},
		Metrics:      webrequest.EmptyMetrics{},
		CacheManager: advcache.EmptyManager{},
		ContextTTL:   1 * time.Minute,
		TabTTL:       1 * time.Minute,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	v := svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
		RequestID: "1",
		URL:       urlAdsScript,
		Type:      filter.TypeScript,
		TabID:     testTabID,
	})
	assert.Equal(t, &webrequest.Verdict{}, v)

	res := svc.GetSelectorsAndScripts(ctx, testTabID, urlSitePage, requestfilter.DefaultCSSOptions, true)
	assert.Equal(t, &webrequest.SelectorsAndScripts{}, res)
}

func TestService_OnBeforeRequest_userWhitelist(t *testing.T) {
	t.Parallel()

	env := newEnv(t, "||"+hostAds+"^")

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, env.whitelist.AddToWhiteList(ctx, hostSite))

	env.openPage(t, testTabID, urlSitePage)

	d := &webrequest.RequestDetails{
		RequestID: "1",
		URL:       urlAdsScript,
		Type:      filter.TypeScript,
		TabID:     testTabID,
	}

	v := env.svc.OnBeforeRequest(ctx, d)
	assert.Equal(t, &webrequest.Verdict{}, v)

	rc, ok := env.svc.Context(d.RequestID)
	require.True(t, ok)
	require.NotNil(t, rc.Rule)

	assert.Equal(t, filter.ListIDWhitelist, rc.Rule.ListID())
	assert.Equal(t, urlSitePage, rc.ReferrerURL)

	t.Run("background", func(t *testing.T) {
		bg := &webrequest.RequestDetails{
			RequestID:   "2",
			URL:         urlAdsScript,
			ReferrerURL: urlSitePage,
			Type:        filter.TypeXMLHTTPRequest,
			TabID:       webrequest.BackgroundTabID,
		}

		assert.Equal(t, &webrequest.Verdict{}, env.svc.OnBeforeRequest(ctx, bg))

		bg.ReferrerURL = "http://other.example/"
		bg.RequestID = "3"
		assert.Equal(t, &webrequest.Verdict{Cancel: true}, env.svc.OnBeforeRequest(ctx, bg))
	})

	env.svc.OnRequestCompleted(ctx, d.RequestID)
	_, ok = env.svc.Context(d.RequestID)
	assert.False(t, ok)
}

func TestService_OnBeforeRequest_referrer(t *testing.T) {
	t.Parallel()

	const (
		frameURL = "http://frame.example/widget.html"
		frameID  = 5
	)

	// The rule only applies to the requests made from the frame.
	env := newEnv(t, "||"+hostAds+"^$domain=frame.example")
	env.openPage(t, testTabID, urlSitePage)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	v := env.svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
		RequestID:      "frame",
		URL:            frameURL,
		Type:           filter.TypeSubdocument,
		TabID:          testTabID,
		FrameID:        frameID,
		RequestFrameID: webrequest.MainFrameID,
	})
	require.Equal(t, &webrequest.Verdict{}, v)

	testCases := []struct {
		want           *webrequest.Verdict
		name           string
		requestFrameID int
	}{{
		want:           &webrequest.Verdict{Cancel: true},
		name:           "frame",
		requestFrameID: frameID,
	}, {
		want:           &webrequest.Verdict{},
		name:           "main_frame",
		requestFrameID: webrequest.MainFrameID,
	}, {
		want:           &webrequest.Verdict{},
		name:           "unknown_frame",
		requestFrameID: 42,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v = env.svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
				RequestID:      tc.name,
				URL:            urlAdsScript,
				Type:           filter.TypeScript,
				TabID:          testTabID,
				FrameID:        tc.requestFrameID,
				RequestFrameID: tc.requestFrameID,
			})
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestService_OnBeforeRequest_popup(t *testing.T) {
	t.Parallel()

	const popupTabID = 2

	env := newEnv(t, hostPopup+"^$popup")
	env.openPage(t, testTabID, urlSitePage)

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	t.Run("popup", func(t *testing.T) {
		v := env.svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
			RequestID:   "popup",
			URL:         urlPopup,
			Type:        filter.TypeDocument,
			TabID:       popupTabID,
			SourceTabID: testTabID,
			Popup:       true,
		})
		assert.Equal(t, &webrequest.Verdict{Cancel: true}, v)

		hits := env.ruleStat.collected()
		require.Len(t, hits, 1)

		assert.Equal(t, filter.RuleText(hostPopup+"^$popup"), hits[0].Rule)
		assert.Equal(t, testTabID, hits[0].TabID)
	})

	t.Run("image", func(t *testing.T) {
		v := env.svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
			RequestID: "image",
			URL:       "http://" + hostPopup + "/pic.png",
			Type:      filter.TypeImage,
			TabID:     testTabID,
		})
		assert.Equal(t, &webrequest.Verdict{}, v)
	})

	t.Run("navigation", func(t *testing.T) {
		v := env.svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
			RequestID: "navigation",
			URL:       urlPopup,
			Type:      filter.TypeDocument,
			TabID:     popupTabID,
		})
		assert.Equal(t, &webrequest.Verdict{}, v)
	})
}

func TestService_OnBeforeRequest_stealth(t *testing.T) {
	t.Parallel()

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	f := requestfilter.New(&requestfilter.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Metrics:      requestfilter.EmptyMetrics{},
		CacheManager: advcache.EmptyManager{},
		Clock:        timeutil.SystemClock{},
	})
	require.NoError(t, f.Reload(ctx, nil))

	wl, err := whitelist.New(ctx, &whitelist.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Clock:        timeutil.SystemClock{},
		CacheManager: advcache.EmptyManager{},
		Initial:      &whitelist.State{DefaultMode: true},
	})
	require.NoError(t, err)

	st, err := stealth.New(&stealth.Config{
		Logger:                  slogutil.NewDiscardLogger(),
		Rules:                   f,
		TrackingParameters:      []string{"utm_*"},
		Enabled:                 true,
		SendDoNotTrack:          true,
		StripTrackingParameters: true,
	})
	require.NoError(t, err)

	cm := advcache.NewDefaultManager()
	svc := webrequest.New(&webrequest.Config{
		Logger:       slogutil.NewDiscardLogger(),
		Filter:       f,
		Whitelist:    wl,
		Stealth:      st,
		RuleStat:     rulestat.Empty{},
		Metrics:      webrequest.EmptyMetrics{},
		CacheManager: cm,
		ContextTTL:   1 * time.Minute,
		TabTTL:       1 * time.Minute,
	})

	assert.Equal(t, []string{webrequest.CacheIDTabs}, cm.IDs())

	v := svc.OnBeforeRequest(ctx, &webrequest.RequestDetails{
		RequestID: "1",
		URL:       urlSitePage + "?utm_source=x&id=1",
		Type:      filter.TypeDocument,
		TabID:     testTabID,
	})
	assert.Equal(t, &webrequest.Verdict{RedirectURL: urlSitePage + "?id=1"}, v)

	d := &webrequest.HeadersDetails{
		RequestDetails: webrequest.RequestDetails{
			RequestID: "2",
			URL:       urlSitePage + "?id=1",
			Type:      filter.TypeDocument,
			TabID:     testTabID,
		},
		Headers: []filter.Header{{
			Name:  "User-Agent",
			Value: "test",
		}},
	}

	v = svc.OnBeforeSendHeaders(ctx, d)
	assert.Equal(t, &webrequest.Verdict{
		RequestHeaders: []filter.Header{{
			Name:  "User-Agent",
			Value: "test",
		}, {
			Name:  stealth.HeaderDoNotTrack,
			Value: "1",
		}},
	}, v)

	rc, ok := svc.Context(d.RequestID)
	require.True(t, ok)

	assert.Equal(t, stealth.ActionSendDoNotTrack, rc.StealthActions)
	assert.Len(t, d.Headers, 1)
}
