package websvc_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/advblocker/advfilter/internal/advtest"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/filterlist"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/whitelist"
	"github.com/advblocker/advfilter/internal/webrequest"
	"github.com/advblocker/advfilter/internal/websvc"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	testutil.DiscardLogOutput(m)
}

// testCustomListID is the ID of the custom list for tests.
const testCustomListID filter.ListID = 1000

// testListURL is the URL of the custom list for tests.
const testListURL = "https://lists.example/list.txt"

// newTestWebRequest returns a *advtest.WebRequest with all methods panicking.
func newTestWebRequest() (wr *advtest.WebRequest) {
	return &advtest.WebRequest{
		OnOnBeforeRequest: func(
			_ context.Context,
			_ *webrequest.RequestDetails,
		) (v *webrequest.Verdict) {
			panic(testutil.UnexpectedCall())
		},
		OnOnBeforeSendHeaders: func(
			_ context.Context,
			_ *webrequest.HeadersDetails,
		) (v *webrequest.Verdict) {
			panic(testutil.UnexpectedCall())
		},
		OnOnHeadersReceived: func(
			_ context.Context,
			_ *webrequest.HeadersDetails,
		) (v *webrequest.Verdict) {
			panic(testutil.UnexpectedCall())
		},
		OnOnRequestCompleted: func(_ context.Context, _ string) {
			panic(testutil.UnexpectedCall())
		},
		OnOnTabRemoved: func(_ context.Context, _ int) {
			panic(testutil.UnexpectedCall())
		},
		OnGetSelectorsAndScripts: func(
			_ context.Context,
			_ int,
			_ string,
			_ requestfilter.CSSOptions,
			_ bool,
		) (res *webrequest.SelectorsAndScripts) {
			panic(testutil.UnexpectedCall())
		},
	}
}

// newTestWhitelist returns a *advtest.Whitelist with all methods panicking.
func newTestWhitelist() (wl *advtest.Whitelist) {
	return &advtest.Whitelist{
		OnState: func() (st *whitelist.State) {
			panic(testutil.UnexpectedCall())
		},
		OnConfigure: func(_ context.Context, _ *whitelist.State) (err error) {
			panic(testutil.UnexpectedCall())
		},
		OnWhiteListURL: func(_ context.Context, _ string) (err error) {
			panic(testutil.UnexpectedCall())
		},
		OnUnWhiteListURL: func(_ context.Context, _ string) (err error) {
			panic(testutil.UnexpectedCall())
		},
	}
}

// newTestLists returns a *advtest.Lists with all methods panicking.
func newTestLists() (l *advtest.Lists) {
	return &advtest.Lists{
		OnLists: func() (statuses []*filterlist.Status) {
			panic(testutil.UnexpectedCall())
		},
		OnAddCustomList: func(_ context.Context, _ *url.URL) (id filter.ListID, err error) {
			panic(testutil.UnexpectedCall())
		},
		OnSetEnabled: func(_ context.Context, _ filter.ListID, _ bool) (err error) {
			panic(testutil.UnexpectedCall())
		},
		OnRemoveList: func(_ context.Context, _ filter.ListID) (err error) {
			panic(testutil.UnexpectedCall())
		},
	}
}

// testReqCounter is a [websvc.Metrics] that remembers the request types.
type testReqCounter struct {
	types []websvc.RequestType
}

// type check
var _ websvc.Metrics = (*testReqCounter)(nil)

// IncrementReqCount implements the [websvc.Metrics] interface for
// *testReqCounter.
func (c *testReqCounter) IncrementReqCount(_ context.Context, reqType websvc.RequestType) {
	c.types = append(c.types, reqType)
}

// newTestService returns a new *websvc.Service with the given dependencies and
// no servers.  Any of the dependencies may be nil, in which case a panicking
// mock is used.
func newTestService(
	tb testing.TB,
	wr *advtest.WebRequest,
	wl *advtest.Whitelist,
	l *advtest.Lists,
	mtrc websvc.Metrics,
) (svc *websvc.Service) {
	tb.Helper()

	if wr == nil {
		wr = newTestWebRequest()
	}

	if wl == nil {
		wl = newTestWhitelist()
	}

	if l == nil {
		l = newTestLists()
	}

	if mtrc == nil {
		mtrc = websvc.EmptyMetrics{}
	}

	return websvc.New(&websvc.Config{
		Logger:      slogutil.NewDiscardLogger(),
		WebRequest:  wr,
		Whitelist:   wl,
		Lists:       l,
		Metrics:     mtrc,
		ErrColl:     advtest.NewErrorCollector(tb),
		RateLimit:   rate.Inf,
		RateBurst:   1,
		MaxBodySize: 1 * datasize.KB,
		Timeout:     advtest.Timeout,
	})
}

// serve sends a request with the given method, path, and body to h and returns
// the recorded response.
func serve(tb testing.TB, h http.Handler, method, path, body string) (rw *httptest.ResponseRecorder) {
	tb.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	req = req.WithContext(advtest.ContextWithTimeout(tb))
	rw = httptest.NewRecorder()

	h.ServeHTTP(rw, req)

	return rw
}

func TestService_ServeHTTP_request(t *testing.T) {
	var gotDetails *webrequest.RequestDetails
	wr := newTestWebRequest()
	wr.OnOnBeforeRequest = func(
		_ context.Context,
		d *webrequest.RequestDetails,
	) (v *webrequest.Verdict) {
		gotDetails = d

		return &webrequest.Verdict{Cancel: true}
	}

	mtrc := &testReqCounter{}
	svc := newTestService(t, wr, nil, nil, mtrc)

	const body = `{` +
		`"requestId":"42",` +
		`"url":"https://ads.example/ad.js",` +
		`"referrerUrl":"https://site.example/",` +
		`"requestType":"SCRIPT",` +
		`"tabId":1,` +
		`"frameId":0` +
		`}`

	rw := serve(t, svc, http.MethodPost, websvc.PathPatternRequest, body)
	require.Equal(t, http.StatusOK, rw.Code)

	assert.Equal(t, advhttp.HdrValApplicationJSON, rw.Header().Get(httphdr.ContentType))
	assert.Equal(t, advhttp.UserAgent(), rw.Header().Get(httphdr.Server))
	assert.JSONEq(t, `{"cancel":true}`, rw.Body.String())

	require.NotNil(t, gotDetails)

	assert.Equal(t, &webrequest.RequestDetails{
		RequestID:   "42",
		URL:         "https://ads.example/ad.js",
		ReferrerURL: "https://site.example/",
		Type:        filter.TypeScript,
		TabID:       1,
	}, gotDetails)
	assert.Equal(t, []websvc.RequestType{websvc.RequestTypeRequest}, mtrc.types)
}

func TestService_ServeHTTP_events(t *testing.T) {
	var gotReqID string
	var gotTabID int
	wr := newTestWebRequest()
	wr.OnOnRequestCompleted = func(_ context.Context, requestID string) {
		gotReqID = requestID
	}
	wr.OnOnTabRemoved = func(_ context.Context, tabID int) {
		gotTabID = tabID
	}

	svc := newTestService(t, wr, nil, nil, nil)

	rw := serve(t, svc, http.MethodPost, websvc.PathPatternRequestDone, `{"requestId":"42"}`)
	assert.Equal(t, http.StatusNoContent, rw.Code)
	assert.Equal(t, "42", gotReqID)

	rw = serve(t, svc, http.MethodPost, websvc.PathPatternTabRemoved, `{"tabId":5}`)
	assert.Equal(t, http.StatusNoContent, rw.Code)
	assert.Equal(t, 5, gotTabID)
}

func TestService_ServeHTTP_headers(t *testing.T) {
	var gotHeaders []filter.Header
	wr := newTestWebRequest()
	wr.OnOnBeforeSendHeaders = func(
		_ context.Context,
		d *webrequest.HeadersDetails,
	) (v *webrequest.Verdict) {
		gotHeaders = d.Headers

		return &webrequest.Verdict{}
	}
	wr.OnOnHeadersReceived = func(
		_ context.Context,
		d *webrequest.HeadersDetails,
	) (v *webrequest.Verdict) {
		return &webrequest.Verdict{
			ResponseHeaders: append(d.Headers, filter.Header{
				Name:  "Content-Security-Policy",
				Value: "script-src 'self'",
			}),
		}
	}

	svc := newTestService(t, wr, nil, nil, nil)

	const body = `{` +
		`"requestId":"42",` +
		`"url":"https://site.example/",` +
		`"requestType":"DOCUMENT",` +
		`"tabId":1,` +
		`"headers":[{"name":"X-Test","value":"1"}]` +
		`}`

	rw := serve(t, svc, http.MethodPost, websvc.PathPatternRequestHeaders, body)
	require.Equal(t, http.StatusOK, rw.Code)

	assert.JSONEq(t, `{}`, rw.Body.String())
	assert.Equal(t, []filter.Header{{Name: "X-Test", Value: "1"}}, gotHeaders)

	rw = serve(t, svc, http.MethodPost, websvc.PathPatternResponseHeaders, body)
	require.Equal(t, http.StatusOK, rw.Code)

	assert.JSONEq(t, `{"responseHeaders":[`+
		`{"name":"X-Test","value":"1"},`+
		`{"name":"Content-Security-Policy","value":"script-src 'self'"}`+
		`]}`, rw.Body.String())
}

func TestService_ServeHTTP_selectors(t *testing.T) {
	var gotOpts requestfilter.CSSOptions
	wr := newTestWebRequest()
	wr.OnGetSelectorsAndScripts = func(
		_ context.Context,
		tabID int,
		documentURL string,
		opts requestfilter.CSSOptions,
		retrieveScripts bool,
	) (res *webrequest.SelectorsAndScripts) {
		gotOpts = opts

		return &webrequest.SelectorsAndScripts{
			Scripts:            fmt.Sprintf("%d %s %t", tabID, documentURL, retrieveScripts),
			RequestFilterReady: true,
		}
	}

	svc := newTestService(t, wr, nil, nil, nil)

	testCases := []struct {
		name     string
		body     string
		wantResp string
		wantOpts requestfilter.CSSOptions
	}{{
		name: "default_options",
		body: `{"url":"https://site.example/","tabId":1,"retrieveScripts":true}`,
		wantResp: `{` +
			`"scripts":"1 https://site.example/ true",` +
			`"collapseAllElements":false,` +
			`"requestFilterReady":true` +
			`}`,
		wantOpts: requestfilter.DefaultCSSOptions,
	}, {
		name: "ext_css",
		body: fmt.Sprintf(
			`{"url":"https://site.example/","tabId":2,"options":%d}`,
			requestfilter.RetrieveExtCSS,
		),
		wantResp: `{` +
			`"scripts":"2 https://site.example/ false",` +
			`"collapseAllElements":false,` +
			`"requestFilterReady":true` +
			`}`,
		wantOpts: requestfilter.RetrieveExtCSS,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rw := serve(t, svc, http.MethodPost, websvc.PathPatternSelectors, tc.body)
			require.Equal(t, http.StatusOK, rw.Code)

			assert.JSONEq(t, tc.wantResp, rw.Body.String())
			assert.Equal(t, tc.wantOpts, gotOpts)
		})
	}
}

func TestService_ServeHTTP_whitelist(t *testing.T) {
	st := &whitelist.State{
		Whitelisted: []string{"site.example"},
		DefaultMode: true,
	}

	wl := newTestWhitelist()
	wl.OnState = func() (got *whitelist.State) {
		return st
	}
	wl.OnConfigure = func(_ context.Context, newSt *whitelist.State) (err error) {
		if len(newSt.Whitelisted) > 0 && newSt.Whitelisted[0] == "" {
			return errors.Error("bad domain")
		}

		st = newSt

		return nil
	}
	wl.OnWhiteListURL = func(_ context.Context, u string) (err error) {
		st.Whitelisted = append(st.Whitelisted, filter.ExtractHostname(u))

		return nil
	}

	svc := newTestService(t, nil, wl, nil, nil)

	testCases := []struct {
		name     string
		method   string
		path     string
		body     string
		wantResp string
		wantCode int
	}{{
		name:     "get",
		method:   http.MethodGet,
		path:     websvc.PathPatternWhitelist,
		body:     "",
		wantResp: `{"whitelisted":["site.example"],"blocklisted":null,"default_mode":true}`,
		wantCode: http.StatusOK,
	}, {
		name:     "put_bad",
		method:   http.MethodPut,
		path:     websvc.PathPatternWhitelist,
		body:     `{"whitelisted":[""]}`,
		wantResp: "",
		wantCode: http.StatusBadRequest,
	}, {
		name:     "put",
		method:   http.MethodPut,
		path:     websvc.PathPatternWhitelist,
		body:     `{"blocklisted":["other.example"],"default_mode":false}`,
		wantResp: `{"whitelisted":null,"blocklisted":["other.example"],"default_mode":false}`,
		wantCode: http.StatusOK,
	}, {
		name:     "url_no_host",
		method:   http.MethodPost,
		path:     websvc.PathPatternWhitelistURL,
		body:     `{"url":"about:blank","whitelisted":true}`,
		wantResp: "",
		wantCode: http.StatusBadRequest,
	}, {
		name:   "url",
		method: http.MethodPost,
		path:   websvc.PathPatternWhitelistURL,
		body:   `{"url":"https://new.example/page","whitelisted":true}`,
		wantResp: `{` +
			`"whitelisted":["new.example"],` +
			`"blocklisted":["other.example"],` +
			`"default_mode":false` +
			`}`,
		wantCode: http.StatusOK,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rw := serve(t, svc, tc.method, tc.path, tc.body)
			require.Equal(t, tc.wantCode, rw.Code)

			if tc.wantResp != "" {
				assert.JSONEq(t, tc.wantResp, rw.Body.String())
			}
		})
	}
}

func TestService_ServeHTTP_lists(t *testing.T) {
	l := newTestLists()
	l.OnLists = func() (statuses []*filterlist.Status) {
		return []*filterlist.Status{{
			URL:        testListURL,
			RulesCount: 2,
			ID:         testCustomListID,
			Enabled:    true,
		}}
	}
	l.OnAddCustomList = func(_ context.Context, u *url.URL) (id filter.ListID, err error) {
		if u.String() == testListURL {
			return 0, filterlist.ErrDuplicateURL
		}

		return testCustomListID + 1, nil
	}
	l.OnSetEnabled = func(_ context.Context, id filter.ListID, _ bool) (err error) {
		if id != testCustomListID {
			return errors.ErrNoValue
		}

		return nil
	}
	l.OnRemoveList = func(_ context.Context, id filter.ListID) (err error) {
		if id != testCustomListID {
			return errors.ErrNoValue
		}

		return nil
	}

	svc := newTestService(t, nil, nil, l, nil)

	listPath := websvc.PathPatternLists + "/" + testCustomListID.String()
	unknownPath := websvc.PathPatternLists + "/1234"

	testCases := []struct {
		name     string
		method   string
		path     string
		body     string
		wantResp string
		wantCode int
	}{{
		name:   "get",
		method: http.MethodGet,
		path:   websvc.PathPatternLists,
		body:   "",
		wantResp: `{"lists":[{` +
			`"metadata":null,` +
			`"last_refresh":"0001-01-01T00:00:00Z",` +
			`"url":"https://lists.example/list.txt",` +
			`"rules_count":2,` +
			`"dropped":0,` +
			`"id":1000,` +
			`"enabled":true` +
			`}]}`,
		wantCode: http.StatusOK,
	}, {
		name:     "add",
		method:   http.MethodPost,
		path:     websvc.PathPatternLists,
		body:     `{"url":"https://lists.example/other.txt"}`,
		wantResp: `{"id":1001}`,
		wantCode: http.StatusOK,
	}, {
		name:     "add_duplicate",
		method:   http.MethodPost,
		path:     websvc.PathPatternLists,
		body:     `{"url":"` + testListURL + `"}`,
		wantResp: "",
		wantCode: http.StatusConflict,
	}, {
		name:     "add_bad_url",
		method:   http.MethodPost,
		path:     websvc.PathPatternLists,
		body:     `{"url":"ftp://lists.example/list.txt"}`,
		wantResp: "",
		wantCode: http.StatusBadRequest,
	}, {
		name:     "disable",
		method:   http.MethodPut,
		path:     listPath,
		body:     `{"enabled":false}`,
		wantResp: "",
		wantCode: http.StatusNoContent,
	}, {
		name:     "disable_unknown",
		method:   http.MethodPut,
		path:     unknownPath,
		body:     `{"enabled":false}`,
		wantResp: "",
		wantCode: http.StatusNotFound,
	}, {
		name:     "disable_bad_id",
		method:   http.MethodPut,
		path:     websvc.PathPatternLists + "/abc",
		body:     `{"enabled":false}`,
		wantResp: "",
		wantCode: http.StatusBadRequest,
	}, {
		name:     "remove",
		method:   http.MethodDelete,
		path:     listPath,
		body:     "",
		wantResp: "",
		wantCode: http.StatusNoContent,
	}, {
		name:     "remove_unknown",
		method:   http.MethodDelete,
		path:     unknownPath,
		body:     "",
		wantResp: "",
		wantCode: http.StatusNotFound,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rw := serve(t, svc, tc.method, tc.path, tc.body)
			require.Equal(t, tc.wantCode, rw.Code)

			if tc.wantResp != "" {
				assert.JSONEq(t, tc.wantResp, rw.Body.String())
			}
		})
	}
}

func TestService_ServeHTTP_errors(t *testing.T) {
	mtrc := &testReqCounter{}
	svc := newTestService(t, nil, nil, nil, mtrc)

	testCases := []struct {
		name     string
		method   string
		path     string
		body     string
		wantType websvc.RequestType
		wantCode int
	}{{
		name:     "not_found",
		method:   http.MethodGet,
		path:     "/api/v1/unknown",
		body:     "",
		wantType: websvc.RequestTypeError404,
		wantCode: http.StatusNotFound,
	}, {
		name:     "bad_json",
		method:   http.MethodPost,
		path:     websvc.PathPatternRequest,
		body:     `{"requestId":`,
		wantType: websvc.RequestTypeError400,
		wantCode: http.StatusBadRequest,
	}, {
		name:     "bad_request_type",
		method:   http.MethodPost,
		path:     websvc.PathPatternRequest,
		body:     `{"requestType":"BAD"}`,
		wantType: websvc.RequestTypeError400,
		wantCode: http.StatusBadRequest,
	}, {
		name:     "too_large",
		method:   http.MethodPost,
		path:     websvc.PathPatternRequest,
		body:     `{"url":"` + strings.Repeat("a", int(2*datasize.KB)) + `"}`,
		wantType: websvc.RequestTypeError400,
		wantCode: http.StatusBadRequest,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mtrc.types = nil

			rw := serve(t, svc, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantCode, rw.Code)
			assert.Equal(t, []websvc.RequestType{tc.wantType}, mtrc.types)
		})
	}
}

func TestService_ServeHTTP_rateLimit(t *testing.T) {
	mtrc := &testReqCounter{}
	svc := websvc.New(&websvc.Config{
		Logger:      slogutil.NewDiscardLogger(),
		WebRequest:  newTestWebRequest(),
		Whitelist:   newTestWhitelist(),
		Lists:       newTestLists(),
		Metrics:     mtrc,
		ErrColl:     advtest.NewErrorCollector(t),
		RateLimit:   0,
		RateBurst:   1,
		MaxBodySize: 1 * datasize.KB,
		Timeout:     advtest.Timeout,
	})

	rw := serve(t, svc, http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, rw.Code)

	rw = serve(t, svc, http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusTooManyRequests, rw.Code)

	assert.Equal(t, []websvc.RequestType{
		websvc.RequestTypeError404,
		websvc.RequestTypeRateLimited,
	}, mtrc.types)
}

func TestService_Start(t *testing.T) {
	wl := newTestWhitelist()
	wl.OnState = func() (st *whitelist.State) {
		return &whitelist.State{DefaultMode: true}
	}

	svc := websvc.New(&websvc.Config{
		Logger:      slogutil.NewDiscardLogger(),
		WebRequest:  newTestWebRequest(),
		Whitelist:   wl,
		Lists:       newTestLists(),
		Metrics:     websvc.EmptyMetrics{},
		ErrColl:     advtest.NewErrorCollector(t),
		Bind:        []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:0")},
		RateLimit:   rate.Inf,
		RateBurst:   1,
		MaxBodySize: 1 * datasize.KB,
		Timeout:     advtest.Timeout,
	})

	ctx := advtest.ContextWithTimeout(t)
	err := svc.Start(ctx)
	require.NoError(t, err)

	testutil.CleanupAndRequireSuccess(t, func() (err error) {
		return svc.Shutdown(advtest.ContextWithTimeout(t))
	})

	addrs := svc.LocalAddrs()
	require.Len(t, addrs, 1)

	u := &url.URL{
		Scheme: "http",
		Host:   addrs[0].String(),
		Path:   websvc.PathPatternWhitelist,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	testutil.CleanupAndRequireSuccess(t, resp.Body.Close)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.JSONEq(t, `{"whitelisted":null,"blocklisted":null,"default_mode":true}`, string(body))
}
