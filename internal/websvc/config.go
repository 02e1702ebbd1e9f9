package websvc

import (
	"context"
	"log/slog"
	"net/netip"
	"net/url"
	"time"

	"github.com/advblocker/advfilter/internal/errcoll"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/filterlist"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/whitelist"
	"github.com/advblocker/advfilter/internal/webrequest"
	"github.com/c2h5oh/datasize"
	"golang.org/x/time/rate"
)

// Config is the AdvFilter web service configuration structure.
type Config struct {
	// Logger is used for logging the operation of the web service.  It must not
	// be nil.
	Logger *slog.Logger

	// WebRequest handles the request events.  It must not be nil.
	WebRequest WebRequest

	// Whitelist is the user whitelist.  It must not be nil.
	Whitelist Whitelist

	// Lists is the storage of the filter lists.  It must not be nil.
	Lists Lists

	// Metrics is used for the collection of the web service statistics.  It
	// must not be nil.
	Metrics Metrics

	// ErrColl is used to collect the unexpected errors of the handlers.  It
	// must not be nil.
	ErrColl errcoll.Interface

	// Bind are the addresses on which to serve the API.  All items must be
	// valid.
	Bind []netip.AddrPort

	// RateLimit is the number of requests per second all clients are allowed
	// to make.  If it's [rate.Inf], the requests aren't limited.
	RateLimit rate.Limit

	// RateBurst is the maximum burst of requests.  It must be positive unless
	// RateLimit is [rate.Inf].
	RateBurst int

	// MaxBodySize is the maximum size of a request body.  It must be positive.
	MaxBodySize datasize.ByteSize

	// Timeout is the timeout for all server operations.  It must be positive.
	Timeout time.Duration
}

// WebRequest handles the events of the requests of the browser tabs.
type WebRequest interface {
	// OnBeforeRequest returns the verdict for a new request.
	OnBeforeRequest(ctx context.Context, d *webrequest.RequestDetails) (v *webrequest.Verdict)

	// OnBeforeSendHeaders returns the verdict for the request headers.
	OnBeforeSendHeaders(ctx context.Context, d *webrequest.HeadersDetails) (v *webrequest.Verdict)

	// OnHeadersReceived returns the verdict for the response headers.
	OnHeadersReceived(ctx context.Context, d *webrequest.HeadersDetails) (v *webrequest.Verdict)

	// OnRequestCompleted removes the state of the request.
	OnRequestCompleted(ctx context.Context, requestID string)

	// OnTabRemoved removes the state of the tab.
	OnTabRemoved(ctx context.Context, tabID int)

	// GetSelectorsAndScripts returns the cosmetic payload for a document.
	GetSelectorsAndScripts(
		ctx context.Context,
		tabID int,
		documentURL string,
		opts requestfilter.CSSOptions,
		retrieveScripts bool,
	) (res *webrequest.SelectorsAndScripts)
}

// type check
var _ WebRequest = (*webrequest.Service)(nil)

// Whitelist is the user whitelist.
type Whitelist interface {
	// State returns the current state.
	State() (st *whitelist.State)

	// Configure replaces the state.
	Configure(ctx context.Context, st *whitelist.State) (err error)

	// WhiteListURL disables the filtering on the host of url.
	WhiteListURL(ctx context.Context, url string) (err error)

	// UnWhiteListURL enables the filtering on the host of url.
	UnWhiteListURL(ctx context.Context, url string) (err error)
}

// type check
var _ Whitelist = (*whitelist.Whitelist)(nil)

// Lists is the storage of the filter lists.
type Lists interface {
	// Lists returns the statuses of the lists.
	Lists() (statuses []*filterlist.Status)

	// AddCustomList adds a list by its URL.
	AddCustomList(ctx context.Context, u *url.URL) (id filter.ListID, err error)

	// SetEnabled enables or disables a list.
	SetEnabled(ctx context.Context, id filter.ListID, enabled bool) (err error)

	// RemoveList removes a list.
	RemoveList(ctx context.Context, id filter.ListID) (err error)
}

// type check
var _ Lists = (*filterlist.Storage)(nil)
