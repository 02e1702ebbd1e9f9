package advhttp_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// newServerURL starts a test server with h and returns its URL.
func newServerURL(tb testing.TB, h http.Handler) (u *url.URL) {
	tb.Helper()

	srv := httptest.NewServer(h)
	tb.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(tb, err)

	return u
}

func TestClient_Get(t *testing.T) {
	t.Parallel()

	const testUA = "TestAgent/1.0"

	mux := http.NewServeMux()
	mux.HandleFunc("/list.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(httphdr.Server, r.Header.Get(httphdr.UserAgent))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/list.txt", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "file:///etc/passwd", http.StatusFound)
	})

	srvURL := newServerURL(t, mux)
	c := advhttp.NewClient(&advhttp.ClientConfig{
		UserAgent:    testUA,
		Timeout:      testTimeout,
		MaxRedirects: 2,
	})

	testCases := []struct {
		name    string
		path    string
		wantErr bool
	}{{
		name:    "direct",
		path:    "/list.txt",
		wantErr: false,
	}, {
		name:    "redirect",
		path:    "/moved",
		wantErr: false,
	}, {
		name:    "redirect_loop",
		path:    "/loop",
		wantErr: true,
	}, {
		name:    "redirect_file",
		path:    "/file",
		wantErr: true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			u := srvURL.JoinPath(tc.path)
			resp, err := c.Get(testutil.ContextWithTimeout(t, testTimeout), u)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			testutil.CleanupAndRequireSuccess(t, resp.Body.Close)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, testUA, resp.Header.Get(httphdr.Server))
		})
	}
}

func TestClient_Get_redirectLimit(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	u := newServerURL(t, mux).JoinPath("/loop")
	c := advhttp.NewClient(&advhttp.ClientConfig{
		Timeout: testTimeout,
	})

	_, err := c.Get(testutil.ContextWithTimeout(t, testTimeout), u)
	assert.ErrorIs(t, err, advhttp.ErrTooManyRedirects)
}
