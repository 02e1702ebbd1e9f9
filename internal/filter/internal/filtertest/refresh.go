package filtertest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/stretchr/testify/require"
)

// ListServer is a test HTTP server serving a filter list.
type ListServer struct {
	// URL is the URL of the list.
	URL *url.URL

	// Requests receives a value every time the list is requested, if not nil.
	Requests chan struct{}
}

// NewListServer starts a test server that responds with text and code to every
// request.  If withReqs is true, the server sends a value to the Requests
// channel on every request, so the test must read them.
func NewListServer(tb testing.TB, text string, code int, withReqs bool) (s *ListServer) {
	tb.Helper()

	s = &ListServer{}
	if withReqs {
		s.Requests = make(chan struct{}, 1)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pt := testutil.PanicT{}
		if s.Requests != nil {
			testutil.RequireSend(pt, s.Requests, struct{}{}, Timeout)
		}

		w.Header().Set(httphdr.Server, ServerName)
		w.Header().Set(httphdr.ContentType, "text/plain; charset=utf-8")
		w.WriteHeader(code)

		_, writeErr := io.WriteString(w, text)
		require.NoError(pt, writeErr)
	}))
	tb.Cleanup(srv.Close)

	var err error
	s.URL, err = advhttp.ParseHTTPURL(srv.URL + "/list.txt")
	require.NoError(tb, err)

	return s
}

// NewCachePath returns the path to a new empty cache file in a temporary
// directory.
func NewCachePath(tb testing.TB) (cachePath string) {
	tb.Helper()

	f, err := os.CreateTemp(tb.TempDir(), filepath.Base(tb.Name()))
	require.NoError(tb, err)
	require.NoError(tb, f.Close())

	return f.Name()
}
