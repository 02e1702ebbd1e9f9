package websvc

import (
	"fmt"
	"net/http"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/filterlist"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/whitelist"
	"github.com/advblocker/advfilter/internal/webrequest"
)

// errNoHostname is returned when a URL in a request has no hostname.
const errNoHostname errors.Error = "no hostname"

// serveRequest handles the POST /api/v1/request endpoint.
func (svc *Service) serveRequest(w http.ResponseWriter, r *http.Request) {
	d := &webrequest.RequestDetails{}
	if !svc.decodeJSON(w, r, d) {
		return
	}

	ctx := r.Context()
	svc.writeJSON(ctx, w, RequestTypeRequest, svc.webRequest.OnBeforeRequest(ctx, d))
}

// requestDoneRequest describes the request to the POST
// /api/v1/request/completed HTTP API.
type requestDoneRequest struct {
	RequestID string `json:"requestId"`
}

// serveRequestDone handles the POST /api/v1/request/completed endpoint.
func (svc *Service) serveRequestDone(w http.ResponseWriter, r *http.Request) {
	req := &requestDoneRequest{}
	if !svc.decodeJSON(w, r, req) {
		return
	}

	ctx := r.Context()
	svc.webRequest.OnRequestCompleted(ctx, req.RequestID)
	svc.writeNoContent(ctx, w, RequestTypeRequestDone)
}

// tabRemovedRequest describes the request to the POST /api/v1/tab/removed
// HTTP API.
type tabRemovedRequest struct {
	TabID int `json:"tabId"`
}

// serveTabRemoved handles the POST /api/v1/tab/removed endpoint.
func (svc *Service) serveTabRemoved(w http.ResponseWriter, r *http.Request) {
	req := &tabRemovedRequest{}
	if !svc.decodeJSON(w, r, req) {
		return
	}

	ctx := r.Context()
	svc.webRequest.OnTabRemoved(ctx, req.TabID)
	svc.writeNoContent(ctx, w, RequestTypeTabRemoved)
}

// serveRequestHeaders handles the POST /api/v1/headers/request endpoint.
func (svc *Service) serveRequestHeaders(w http.ResponseWriter, r *http.Request) {
	d := &webrequest.HeadersDetails{}
	if !svc.decodeJSON(w, r, d) {
		return
	}

	ctx := r.Context()
	svc.writeJSON(ctx, w, RequestTypeRequestHeaders, svc.webRequest.OnBeforeSendHeaders(ctx, d))
}

// serveResponseHeaders handles the POST /api/v1/headers/response endpoint.
func (svc *Service) serveResponseHeaders(w http.ResponseWriter, r *http.Request) {
	d := &webrequest.HeadersDetails{}
	if !svc.decodeJSON(w, r, d) {
		return
	}

	ctx := r.Context()
	svc.writeJSON(ctx, w, RequestTypeResponseHeaders, svc.webRequest.OnHeadersReceived(ctx, d))
}

// selectorsRequest describes the request to the POST /api/v1/selectors HTTP
// API.
type selectorsRequest struct {
	// Options are the parts of the stylesheet to retrieve.  If it's nil,
	// [requestfilter.DefaultCSSOptions] are used.
	Options *requestfilter.CSSOptions `json:"options"`

	URL             string `json:"url"`
	TabID           int    `json:"tabId"`
	RetrieveScripts bool   `json:"retrieveScripts"`
}

// serveSelectors handles the POST /api/v1/selectors endpoint.
func (svc *Service) serveSelectors(w http.ResponseWriter, r *http.Request) {
	req := &selectorsRequest{}
	if !svc.decodeJSON(w, r, req) {
		return
	}

	opts := requestfilter.DefaultCSSOptions
	if req.Options != nil {
		opts = *req.Options
	}

	ctx := r.Context()
	res := svc.webRequest.GetSelectorsAndScripts(ctx, req.TabID, req.URL, opts, req.RetrieveScripts)
	svc.writeJSON(ctx, w, RequestTypeSelectors, res)
}

// serveGetWhitelist handles the GET /api/v1/whitelist endpoint.
func (svc *Service) serveGetWhitelist(w http.ResponseWriter, r *http.Request) {
	svc.writeJSON(r.Context(), w, RequestTypeWhitelist, svc.whitelist.State())
}

// servePutWhitelist handles the PUT /api/v1/whitelist endpoint.
func (svc *Service) servePutWhitelist(w http.ResponseWriter, r *http.Request) {
	st := &whitelist.State{}
	if !svc.decodeJSON(w, r, st) {
		return
	}

	ctx := r.Context()
	err := svc.whitelist.Configure(ctx, st)
	if err != nil {
		svc.respondBadRequest(w, r, err)

		return
	}

	svc.writeJSON(ctx, w, RequestTypeWhitelist, svc.whitelist.State())
}

// whitelistURLRequest describes the request to the POST /api/v1/whitelist/url
// HTTP API.
type whitelistURLRequest struct {
	URL string `json:"url"`

	// Whitelisted is true if the filtering must be disabled on the host of
	// URL.
	Whitelisted bool `json:"whitelisted"`
}

// serveWhitelistURL handles the POST /api/v1/whitelist/url endpoint.
func (svc *Service) serveWhitelistURL(w http.ResponseWriter, r *http.Request) {
	req := &whitelistURLRequest{}
	if !svc.decodeJSON(w, r, req) {
		return
	}

	if filter.ExtractHostname(req.URL) == "" {
		svc.respondBadRequest(w, r, fmt.Errorf("url %q: %w", req.URL, errNoHostname))

		return
	}

	ctx := r.Context()

	var err error
	if req.Whitelisted {
		err = svc.whitelist.WhiteListURL(ctx, req.URL)
	} else {
		err = svc.whitelist.UnWhiteListURL(ctx, req.URL)
	}

	if err != nil {
		svc.respondError(w, r, "updating whitelist", err)

		return
	}

	svc.writeJSON(ctx, w, RequestTypeWhitelist, svc.whitelist.State())
}

// listsResponse describes the response to the GET /api/v1/lists HTTP API.
type listsResponse struct {
	Lists []*filterlist.Status `json:"lists"`
}

// serveGetLists handles the GET /api/v1/lists endpoint.
func (svc *Service) serveGetLists(w http.ResponseWriter, r *http.Request) {
	svc.writeJSON(r.Context(), w, RequestTypeLists, &listsResponse{
		Lists: svc.lists.Lists(),
	})
}

// addListRequest describes the request to the POST /api/v1/lists HTTP API.
type addListRequest struct {
	URL string `json:"url"`
}

// addListResponse describes the response to the POST /api/v1/lists HTTP API.
type addListResponse struct {
	ID filter.ListID `json:"id"`
}

// servePostLists handles the POST /api/v1/lists endpoint.
func (svc *Service) servePostLists(w http.ResponseWriter, r *http.Request) {
	req := &addListRequest{}
	if !svc.decodeJSON(w, r, req) {
		return
	}

	u, err := advhttp.ParseHTTPURL(req.URL)
	if err != nil {
		svc.respondBadRequest(w, r, fmt.Errorf("url: %w", err))

		return
	}

	ctx := r.Context()
	id, err := svc.lists.AddCustomList(ctx, u)
	if errors.Is(err, filterlist.ErrDuplicateURL) {
		svc.metrics.IncrementReqCount(ctx, RequestTypeError400)
		http.Error(w, err.Error(), http.StatusConflict)

		return
	} else if err != nil {
		svc.respondError(w, r, "adding list", err)

		return
	}

	svc.writeJSON(ctx, w, RequestTypeLists, &addListResponse{ID: id})
}

// setListRequest describes the request to the PUT /api/v1/lists/{id} HTTP API.
type setListRequest struct {
	Enabled bool `json:"enabled"`
}

// servePutList handles the PUT /api/v1/lists/{id} endpoint.
func (svc *Service) servePutList(w http.ResponseWriter, r *http.Request) {
	id, err := filter.NewListID(r.PathValue("id"))
	if err != nil {
		svc.respondBadRequest(w, r, err)

		return
	}

	req := &setListRequest{}
	if !svc.decodeJSON(w, r, req) {
		return
	}

	svc.respondListUpdate(w, r, svc.lists.SetEnabled(r.Context(), id, req.Enabled))
}

// serveDeleteList handles the DELETE /api/v1/lists/{id} endpoint.
func (svc *Service) serveDeleteList(w http.ResponseWriter, r *http.Request) {
	id, err := filter.NewListID(r.PathValue("id"))
	if err != nil {
		svc.respondBadRequest(w, r, err)

		return
	}

	svc.respondListUpdate(w, r, svc.lists.RemoveList(r.Context(), id))
}

// respondListUpdate responds to a list update with the result err.
func (svc *Service) respondListUpdate(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		svc.writeNoContent(r.Context(), w, RequestTypeLists)
	case errors.Is(err, errors.ErrNoValue):
		svc.serveNotFound(w, r)
	default:
		svc.respondError(w, r, "updating list", err)
	}
}
