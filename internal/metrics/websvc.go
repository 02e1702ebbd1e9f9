package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WebSvcReqType is a type alias for a string that represents the web service
// request type.
type WebSvcReqType = string

// Web service requests of [WebSvcReqType] type.
//
// NOTE:  Keep in sync with [websvc.RequestType].
const (
	WebSvcReqTypeError400        WebSvcReqType = "error400"
	WebSvcReqTypeError404        WebSvcReqType = "error404"
	WebSvcReqTypeError500        WebSvcReqType = "error500"
	WebSvcReqTypeRateLimited     WebSvcReqType = "rate_limited"
	WebSvcReqTypeRequest         WebSvcReqType = "request"
	WebSvcReqTypeRequestDone     WebSvcReqType = "request_done"
	WebSvcReqTypeTabRemoved      WebSvcReqType = "tab_removed"
	WebSvcReqTypeRequestHeaders  WebSvcReqType = "request_headers"
	WebSvcReqTypeResponseHeaders WebSvcReqType = "response_headers"
	WebSvcReqTypeSelectors       WebSvcReqType = "selectors"
	WebSvcReqTypeWhitelist       WebSvcReqType = "whitelist"
	WebSvcReqTypeLists           WebSvcReqType = "lists"
)

// WebSvc is the Prometheus-based implementation of the [websvc.Metrics]
// interface.
type WebSvc struct {
	// reqCounters maps each web service request type to its corresponding
	// Prometheus counter.
	reqCounters map[WebSvcReqType]prometheus.Counter
}

// NewWebSvc registers the web service metrics in reg and returns a properly
// initialized [*WebSvc].
func NewWebSvc(namespace string, reg prometheus.Registerer) (m *WebSvc, err error) {
	const requestsTotal = "requests_total"

	// reqCV is a Prometheus counter vector that tracks the number of web
	// service requests, categorized by request type.
	reqCV := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      requestsTotal,
		Namespace: namespace,
		Subsystem: subsystemWebSvc,
		Help:      "The number of HTTP requests to the API by kind.",
	}, []string{"kind"})

	m = &WebSvc{
		reqCounters: map[WebSvcReqType]prometheus.Counter{},
	}

	for _, t := range []WebSvcReqType{
		WebSvcReqTypeError400,
		WebSvcReqTypeError404,
		WebSvcReqTypeError500,
		WebSvcReqTypeRateLimited,
		WebSvcReqTypeRequest,
		WebSvcReqTypeRequestDone,
		WebSvcReqTypeTabRemoved,
		WebSvcReqTypeRequestHeaders,
		WebSvcReqTypeResponseHeaders,
		WebSvcReqTypeSelectors,
		WebSvcReqTypeWhitelist,
		WebSvcReqTypeLists,
	} {
		m.reqCounters[t] = reqCV.WithLabelValues(t)
	}

	err = reg.Register(reqCV)
	if err != nil {
		return nil, fmt.Errorf("registering metrics %q: %w", requestsTotal, err)
	}

	return m, nil
}

// IncrementReqCount implements the [websvc.Metrics] interface for *WebSvc.
func (m *WebSvc) IncrementReqCount(_ context.Context, reqType WebSvcReqType) {
	ctr, ok := m.reqCounters[reqType]
	if !ok {
		panic(fmt.Errorf("incrementing req counter: bad type %q", reqType))
	}

	ctr.Inc()
}
