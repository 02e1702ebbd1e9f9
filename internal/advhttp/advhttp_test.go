package advhttp_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/stretchr/testify/assert"
)

// testSrv is the common Server header value for tests.
const testSrv = "testServer/1.0"

// testError is the common error for tests.
const testError errors.Error = "test error"

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		srv        string
		wantErrMsg string
		exp        int
		got        int
	}{{
		name:       "ok",
		srv:        testSrv,
		wantErrMsg: "",
		exp:        http.StatusOK,
		got:        http.StatusOK,
	}, {
		name:       "not_found",
		srv:        "",
		wantErrMsg: `server "": status code error: expected 200, got 404`,
		exp:        http.StatusOK,
		got:        http.StatusNotFound,
	}, {
		name:       "not_found_srv",
		srv:        testSrv,
		wantErrMsg: `server "` + testSrv + `": status code error: expected 200, got 404`,
		exp:        http.StatusOK,
		got:        http.StatusNotFound,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp := &http.Response{
				StatusCode: tc.got,
				Header: http.Header{
					httphdr.Server: []string{tc.srv},
				},
			}

			testutil.AssertErrorMsg(t, tc.wantErrMsg, advhttp.CheckStatus(resp, tc.exp))
		})
	}
}

func TestWrapServerError(t *testing.T) {
	t.Parallel()

	resp := &http.Response{
		Header: http.Header{
			httphdr.Server: []string{testSrv},
		},
	}

	err := advhttp.WrapServerError(testError, resp)
	assert.ErrorIs(t, err, testError)
	testutil.AssertErrorMsg(t, `server "`+testSrv+`": `+string(testError), err)
}

func TestParseHTTPURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want       *url.URL
		name       string
		in         string
		wantErrMsg string
	}{{
		want: &url.URL{
			Scheme:   "https",
			Host:     "lists.example",
			Path:     "/filter.txt",
			RawQuery: "v=1",
		},
		name:       "ok",
		in:         "https://lists.example/filter.txt?v=1",
		wantErrMsg: ``,
	}, {
		want:       nil,
		name:       "invalid",
		in:         "\n",
		wantErrMsg: `parse "\n": net/url: invalid control character in URL`,
	}, {
		want:       nil,
		name:       "bad_scheme",
		in:         "ftp://lists.example/filter.txt",
		wantErrMsg: `parse "ftp://lists.example/filter.txt": bad scheme "ftp"`,
	}, {
		want:       nil,
		name:       "relative",
		in:         "/filter.txt",
		wantErrMsg: `parse "/filter.txt": empty host`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := advhttp.ParseHTTPURL(tc.in)
			assert.Equal(t, tc.want, got)
			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)
		})
	}
}

func TestParseListURL(t *testing.T) {
	t.Parallel()

	u, err := advhttp.ParseListURL("file:///var/lib/advfilter/user.txt")
	assert.NoError(t, err)
	assert.Equal(t, "/var/lib/advfilter/user.txt", u.Path)

	_, err = advhttp.ParseListURL("file://")
	testutil.AssertErrorMsg(t, `parse "file://": empty path`, err)

	_, err = advhttp.ParseListURL("https://lists.example/filter.txt")
	assert.NoError(t, err)
}
