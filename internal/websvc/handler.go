package websvc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/httputil"
	"github.com/advblocker/advfilter/internal/advhttp"
)

// Path pattern constants.
const (
	PathPatternLists           = "/api/v1/lists"
	PathPatternList            = "/api/v1/lists/{id}"
	PathPatternRequest         = "/api/v1/request"
	PathPatternRequestDone     = "/api/v1/request/completed"
	PathPatternRequestHeaders  = "/api/v1/headers/request"
	PathPatternResponseHeaders = "/api/v1/headers/response"
	PathPatternSelectors       = "/api/v1/selectors"
	PathPatternTabRemoved      = "/api/v1/tab/removed"
	PathPatternWhitelist       = "/api/v1/whitelist"
	PathPatternWhitelistURL    = "/api/v1/whitelist/url"
)

// route returns the handler of the API.
func (svc *Service) route() (h http.Handler) {
	mux := http.NewServeMux()

	routes := []struct {
		handler http.HandlerFunc
		pattern string
	}{{
		handler: svc.serveRequest,
		pattern: http.MethodPost + " " + PathPatternRequest,
	}, {
		handler: svc.serveRequestDone,
		pattern: http.MethodPost + " " + PathPatternRequestDone,
	}, {
		handler: svc.serveTabRemoved,
		pattern: http.MethodPost + " " + PathPatternTabRemoved,
	}, {
		handler: svc.serveRequestHeaders,
		pattern: http.MethodPost + " " + PathPatternRequestHeaders,
	}, {
		handler: svc.serveResponseHeaders,
		pattern: http.MethodPost + " " + PathPatternResponseHeaders,
	}, {
		handler: svc.serveSelectors,
		pattern: http.MethodPost + " " + PathPatternSelectors,
	}, {
		handler: svc.serveGetWhitelist,
		pattern: http.MethodGet + " " + PathPatternWhitelist,
	}, {
		handler: svc.servePutWhitelist,
		pattern: http.MethodPut + " " + PathPatternWhitelist,
	}, {
		handler: svc.serveWhitelistURL,
		pattern: http.MethodPost + " " + PathPatternWhitelistURL,
	}, {
		handler: svc.serveGetLists,
		pattern: http.MethodGet + " " + PathPatternLists,
	}, {
		handler: svc.servePostLists,
		pattern: http.MethodPost + " " + PathPatternLists,
	}, {
		handler: svc.servePutList,
		pattern: http.MethodPut + " " + PathPatternList,
	}, {
		handler: svc.serveDeleteList,
		pattern: http.MethodDelete + " " + PathPatternList,
	}, {
		handler: svc.serveNotFound,
		pattern: "/",
	}}

	for _, rt := range routes {
		mux.Handle(rt.pattern, rt.handler)
	}

	return httputil.NewLogMiddleware(svc.logger, slogutil.LevelTrace).Wrap(mux)
}

// type check
var _ http.Handler = (*Service)(nil)

// ServeHTTP implements the [http.Handler] interface for *Service.
func (svc *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(httphdr.Server, advhttp.UserAgent())

	if !svc.limiter.Allow() {
		svc.metrics.IncrementReqCount(r.Context(), RequestTypeRateLimited)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)

		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, svc.maxBodySize)

	svc.handler.ServeHTTP(w, r)
}

// serveNotFound responds with the 404 status to the unknown paths.
func (svc *Service) serveNotFound(w http.ResponseWriter, r *http.Request) {
	svc.metrics.IncrementReqCount(r.Context(), RequestTypeError404)
	http.NotFound(w, r)
}

// decodeJSON decodes the JSON body of r into v.  If the body is malformed, it
// responds with the 400 status and returns false.
func (svc *Service) decodeJSON(w http.ResponseWriter, r *http.Request, v any) (ok bool) {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	svc.respondBadRequest(w, r, errors.Annotate(err, "decoding request: %w"))

	return false
}

// respondBadRequest responds with the 400 status and the message of err.
func (svc *Service) respondBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	l := slogutil.MustLoggerFromContext(ctx)
	l.DebugContext(ctx, "bad request", slogutil.KeyError, err)

	svc.metrics.IncrementReqCount(ctx, RequestTypeError400)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

// respondError reports an unexpected error and responds with the 500 status.
func (svc *Service) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	svc.collectError(ctx, msg, err)

	svc.metrics.IncrementReqCount(ctx, RequestTypeError500)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// writeJSON writes v as the JSON body of the response and counts the request
// as reqType.
func (svc *Service) writeJSON(
	ctx context.Context,
	w http.ResponseWriter,
	reqType RequestType,
	v any,
) {
	svc.metrics.IncrementReqCount(ctx, reqType)

	w.Header().Set(httphdr.ContentType, advhttp.HdrValApplicationJSON)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		l := slogutil.MustLoggerFromContext(ctx)
		l.DebugContext(ctx, "writing response", slogutil.KeyError, err)
	}
}

// writeNoContent responds with the 204 status and counts the request as
// reqType.
func (svc *Service) writeNoContent(ctx context.Context, w http.ResponseWriter, reqType RequestType) {
	svc.metrics.IncrementReqCount(ctx, reqType)
	w.WriteHeader(http.StatusNoContent)
}
