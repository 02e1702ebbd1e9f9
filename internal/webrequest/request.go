package webrequest

import (
	"context"
	"strings"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/advblocker/advfilter/internal/rulestat"
)

// RequestDetails are the details of a request event sent by the browser.
type RequestDetails struct {
	// RequestID is the ID of the request, unique within a browser session.
	RequestID string `json:"requestId"`

	// URL is the URL of the request.
	URL string `json:"url"`

	// ReferrerURL is the URL of the document that made the request, if known.
	ReferrerURL string `json:"referrerUrl"`

	// Type is the type of the request.
	Type filter.RequestType `json:"requestType"`

	// TabID is the ID of the tab of the request or [BackgroundTabID].
	TabID int `json:"tabId"`

	// FrameID is the ID of the frame the request is loaded into for documents
	// or made from for other requests.
	FrameID int `json:"frameId"`

	// RequestFrameID is the ID of the frame that made the request.
	RequestFrameID int `json:"requestFrameId"`

	// SourceTabID is the ID of the tab that opened the tab of the request.  It
	// is only used for popups.
	SourceTabID int `json:"sourceTabId"`

	// Popup is true if the document is loaded into a tab opened by another
	// tab, for example by window.open.
	Popup bool `json:"popup"`
}

// Verdict is the decision for a request event.  The empty verdict allows the
// request without modifications.
type Verdict struct {
	// RedirectURL is the URL the request is redirected to, if any.
	RedirectURL string `json:"redirectUrl,omitzero"`

	// RequestHeaders are the modified headers of the request, if any.
	RequestHeaders []filter.Header `json:"requestHeaders,omitzero"`

	// ResponseHeaders are the modified headers of the response, if any.
	ResponseHeaders []filter.Header `json:"responseHeaders,omitzero"`

	// Cancel is true if the request is blocked.
	Cancel bool `json:"cancel,omitzero"`
}

// kind returns the kind of v for the metrics.
func (v *Verdict) kind() (k VerdictKind) {
	switch {
	case v.Cancel:
		return VerdictKindCancel
	case v.RedirectURL != "":
		return VerdictKindRedirect
	case v.RequestHeaders != nil, v.ResponseHeaders != nil:
		return VerdictKindHeaders
	default:
		return VerdictKindAllow
	}
}

// OnBeforeRequest returns the verdict for the request before it's sent.  d
// must not be nil.
func (s *Service) OnBeforeRequest(ctx context.Context, d *RequestDetails) (v *Verdict) {
	defer func() { s.metrics.IncrementVerdicts(ctx, v.kind()) }()

	if !s.filter.IsReady() {
		return &Verdict{}
	}

	switch d.Type {
	case filter.TypeDocument:
		if d.Popup {
			return s.onPopup(ctx, d)
		}

		s.tabs.recordFrame(d.TabID, MainFrameID, d.URL)

		return s.onDocument(ctx, d)
	case filter.TypeSubdocument:
		s.tabs.recordFrame(d.TabID, d.FrameID, d.URL)
	default:
		// Go on.
	}

	if !isHTTPOrWS(d.URL) {
		return &Verdict{}
	}

	ref := s.referrerURL(d)
	s.contexts.update(d, func(rc *RequestContext) { rc.ReferrerURL = ref })
	defer s.metrics.SetContextsCount(ctx, s.contexts.len())

	mainFrameURL := s.tabs.get(d.TabID).mainFrameURL()
	if stripped, ok := s.stealth.RemoveTrackersFromURL(ctx, d.URL, mainFrameURL, d.Type); ok {
		return &Verdict{RedirectURL: stripped}
	}

	r := s.ruleForRequest(d.TabID, d.URL, ref, d.Type)
	r = s.postProcess(ctx, d.TabID, d.URL, d.Type, r)
	if r != nil {
		s.contexts.update(d, func(rc *RequestContext) { rc.Rule = r })
	}

	return s.blockedResponse(ctx, d.Type, r)
}

// onDocument handles the top-level document request of a tab.  The URL
// blocking rules don't apply to such requests.
func (s *Service) onDocument(ctx context.Context, d *RequestDetails) (v *Verdict) {
	s.contexts.update(d, func(rc *RequestContext) { rc.ReferrerURL = d.URL })
	defer s.metrics.SetContextsCount(ctx, s.contexts.len())

	if stripped, ok := s.stealth.RemoveTrackersFromURL(ctx, d.URL, d.URL, d.Type); ok {
		return &Verdict{RedirectURL: stripped}
	}

	if wl := s.frameWhitelistRule(d.TabID); wl != nil {
		s.contexts.update(d, func(rc *RequestContext) { rc.Rule = wl })
	}

	return &Verdict{}
}

// onPopup handles the top-level document request of a tab opened by another
// tab.  The request is canceled if it's matched by a $popup rule in the
// context of the source tab.
func (s *Service) onPopup(ctx context.Context, d *RequestDetails) (v *Verdict) {
	ref := d.ReferrerURL
	if ref == "" {
		ref = s.tabs.get(d.SourceTabID).mainFrameURL()
	}

	if ref == "" {
		ref = d.URL
	}

	r := s.ruleForRequest(d.SourceTabID, d.URL, ref, filter.TypeDocument)
	if isPopupBlocking(r) {
		s.postProcess(ctx, d.SourceTabID, d.URL, filter.TypeDocument, r)
		s.logger.DebugContext(ctx, "popup blocked", "url", d.URL, "rule", r.Text())

		return &Verdict{Cancel: true}
	}

	s.tabs.recordFrame(d.TabID, MainFrameID, d.URL)

	return s.onDocument(ctx, d)
}

// OnRequestCompleted removes the context of the request with the given ID.
// It must be called when the request completes or fails.
func (s *Service) OnRequestCompleted(ctx context.Context, requestID string) {
	s.contexts.remove(requestID)
	s.metrics.SetContextsCount(ctx, s.contexts.len())
}

// OnTabRemoved removes the state of the tab with the given ID.
func (s *Service) OnTabRemoved(_ context.Context, tabID int) {
	s.tabs.remove(tabID)
}

// Context returns the context of the request with the given ID, if any.  rc
// must not be modified.
func (s *Service) Context(requestID string) (rc *RequestContext, ok bool) {
	return s.contexts.get(requestID)
}

// referrerURL returns the referrer of the request: the one from d, the URL of
// the frame that made the request, or the URL of the top-level document, in
// that order.
func (s *Service) referrerURL(d *RequestDetails) (ref string) {
	if d.ReferrerURL != "" {
		return d.ReferrerURL
	}

	t := s.tabs.get(d.TabID)
	if ref = t.frames[d.RequestFrameID]; ref != "" {
		return ref
	}

	return t.mainFrameURL()
}

// frameWhitelistRule returns the exception for the top-level document of the
// tab, either from the user's whitelist or from the filters, or nil.
func (s *Service) frameWhitelistRule(tabID int) (r *rule.URLRule) {
	u := s.tabs.get(tabID).mainFrameURL()
	if u == "" {
		return nil
	}

	if r = s.whitelist.FindWhiteListRule(u); r != nil {
		return r
	}

	return s.filter.FindWhiteListRule(u, u, filter.TypeDocument)
}

// isTabWhitelisted returns true if the filtering is disabled for the whole tab.
func (s *Service) isTabWhitelisted(tabID int) (ok bool) {
	wl := s.frameWhitelistRule(tabID)

	return wl != nil && wl.IsDocumentWhitelist()
}

// ruleForRequest returns the rule deciding the fate of the request made from
// the tab.  The requests of the background are whitelisted by the user's
// whitelist for their referrer.
func (s *Service) ruleForRequest(tabID int, url, ref string, typ filter.RequestType) (r *rule.URLRule) {
	var wl *rule.URLRule
	if tabID == BackgroundTabID {
		wl = s.whitelist.FindWhiteListRule(ref)
	} else {
		wl = s.frameWhitelistRule(tabID)
	}

	if wl != nil && wl.IsDocumentWhitelist() {
		return wl
	} else if wl == nil {
		wl = s.filter.FindWhiteListRule(url, ref, filter.TypeDocument)
	}

	return s.filter.FindRuleForRequest(url, ref, typ, wl)
}

// postProcess drops the rules not applicable to the request type and reports
// the blocking ones.  The URL blocking rules don't apply to documents, the
// $popup rules only apply to them, and the $replace rules never block.
func (s *Service) postProcess(
	ctx context.Context,
	tabID int,
	url string,
	typ filter.RequestType,
	r *rule.URLRule,
) (res *rule.URLRule) {
	if r == nil || r.IsWhitelist() {
		return r
	}

	switch {
	case r.IsReplace():
		return nil
	case r.IsPopup():
		if typ != filter.TypeDocument {
			return nil
		}
	case typ == filter.TypeDocument:
		return nil
	default:
		// Go on.
	}

	s.reportHit(ctx, tabID, url, r)

	return r
}

// reportHit reports the application of r to the request to the statistics.
// The rules of the user's own lists are not reported.
func (s *Service) reportHit(ctx context.Context, tabID int, url string, r *rule.URLRule) {
	s.logger.DebugContext(ctx, "rule applied", "url", url, "tab", tabID, "rule", r.Text())

	if !s.collectHits || !isReportable(r.ListID()) {
		return
	}

	s.ruleStat.Collect(ctx, &rulestat.Hit{
		Rule:   r.Text(),
		URL:    url,
		ListID: r.ListID(),
		TabID:  tabID,
	})
}

// isReportable returns true if the hits of the rules of the list are reported
// to the statistics.
func isReportable(id filter.ListID) (ok bool) {
	switch id {
	case filter.ListIDStealth, filter.ListIDUser, filter.ListIDWhitelist:
		return false
	default:
		return true
	}
}

// blockedResponse returns the verdict for the request of type typ decided by
// r.  A redirect that can't be built falls back to blocking.  Documents are
// never canceled.
func (s *Service) blockedResponse(ctx context.Context, typ filter.RequestType, r *rule.URLRule) (v *Verdict) {
	if !isBlocking(r) {
		return &Verdict{}
	}

	if r.IsRedirect() {
		u, err := s.filter.GetRedirectURL(r)
		if err == nil {
			return &Verdict{RedirectURL: u}
		}

		s.logger.DebugContext(ctx, "redirecting", "rule", r.Text(), slogutil.KeyError, err)
	}

	if typ == filter.TypeDocument {
		return &Verdict{}
	}

	return &Verdict{Cancel: true}
}

// isBlocking returns true if r blocks the request it was found for.
func isBlocking(r *rule.URLRule) (ok bool) {
	return r != nil && !r.IsWhitelist() && !r.IsReplace() && !r.IsPopup()
}

// isPopupBlocking returns true if r blocks the popup it was found for.
func isPopupBlocking(r *rule.URLRule) (ok bool) {
	return r != nil && !r.IsWhitelist() && r.IsPopup()
}

// isHTTPOrWS returns true if the scheme of u is one of HTTP, HTTPS, WS, or
// WSS.
func isHTTPOrWS(u string) (ok bool) {
	scheme, _, found := strings.Cut(u, ":")
	if !found {
		return false
	}

	switch strings.ToLower(scheme) {
	case "http", "https", "ws", "wss":
		return true
	default:
		return false
	}
}
