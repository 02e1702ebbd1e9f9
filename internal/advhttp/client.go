package advhttp

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
)

// DefaultMaxRedirects is the number of redirects a [Client] follows by default.
const DefaultMaxRedirects = 5

// ErrTooManyRedirects is returned by [Client] methods when the server redirects
// the request more times than allowed.
const ErrTooManyRedirects errors.Error = "too many redirects"

// Client sends the outgoing HTTP requests of AdvFilter, such as the filter list
// downloads and the statistics uploads.  It sets the User-Agent header and only
// follows the redirects to HTTP(S) URLs.
type Client struct {
	http      *http.Client
	userAgent string
}

// ClientConfig is the configuration structure for Client.
type ClientConfig struct {
	// UserAgent is the value of the User-Agent header.  If it's empty,
	// [UserAgent] is used.
	UserAgent string

	// Timeout is the timeout for all requests, including the time to read the
	// response body.
	Timeout time.Duration

	// MaxRedirects is the maximum number of redirects to follow.  If it's
	// zero, [DefaultMaxRedirects] is used.
	MaxRedirects int
}

// NewClient returns a new client.  conf must not be nil.
func NewClient(conf *ClientConfig) (c *Client) {
	maxRedirects := cmp.Or(conf.MaxRedirects, DefaultMaxRedirects)

	return &Client{
		http: &http.Client{
			Timeout: conf.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) (err error) {
				return checkRedirect(req, via, maxRedirects)
			},
		},
		userAgent: cmp.Or(conf.UserAgent, UserAgent()),
	}
}

// checkRedirect returns an error if req is not an HTTP(S) request or if there
// were more than max requests before it.
func checkRedirect(req *http.Request, via []*http.Request, max int) (err error) {
	if len(via) > max {
		return fmt.Errorf("%w: %d", ErrTooManyRedirects, len(via))
	}

	if !urlutil.IsValidHTTPURLScheme(req.URL.Scheme) {
		return fmt.Errorf("redirect to %q: bad scheme %q", req.URL.Redacted(), req.URL.Scheme)
	}

	return nil
}

// Get sends a GET request to u.  When err is nil, resp.Body is never nil and
// the caller must close it.
func (c *Client) Get(ctx context.Context, u *url.URL) (resp *http.Response, err error) {
	return c.do(ctx, http.MethodGet, u, "", nil)
}

// Post sends a POST request to u with the body of the given content type.
// When err is nil, resp.Body is never nil and the caller must close it.
func (c *Client) Post(
	ctx context.Context,
	u *url.URL,
	contentType string,
	body io.Reader,
) (resp *http.Response, err error) {
	return c.do(ctx, http.MethodPost, u, contentType, body)
}

// do sends the request and wraps the redirect errors with the response data.
func (c *Client) do(
	ctx context.Context,
	method string,
	u *url.URL,
	contentType string,
	body io.Reader,
) (resp *http.Response, err error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}

	req.Header.Set(httphdr.UserAgent, c.userAgent)
	if contentType != "" {
		req.Header.Set(httphdr.ContentType, contentType)
	}

	resp, err = c.http.Do(req)
	if err == nil {
		return resp, nil
	} else if resp != nil && resp.Header != nil {
		// The response is only returned along with an error if the redirect
		// check has failed.
		return resp, WrapServerError(err, resp)
	}

	return nil, err
}
