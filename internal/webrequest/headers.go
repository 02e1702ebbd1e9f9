package webrequest

import (
	"context"
	"slices"
	"strings"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/advblocker/advfilter/internal/filter/stealth"
)

// HeadersDetails are the details of a request event with the headers of the
// request or the response.
type HeadersDetails struct {
	RequestDetails

	// Headers are the headers of the request or the response.
	Headers []filter.Header `json:"headers"`

	// StatusCode is the status code of the response.  It's zero for the
	// request headers.
	StatusCode int `json:"statusCode"`
}

// OnBeforeSendHeaders returns the verdict with the modified request headers,
// if any were modified.  The cookies blocked by the $cookie rules are removed,
// and the stealth mode is applied.  d must not be nil, d.Headers are not
// modified.
func (s *Service) OnBeforeSendHeaders(ctx context.Context, d *HeadersDetails) (v *Verdict) {
	defer func() { s.metrics.IncrementVerdicts(ctx, v.kind()) }()

	if !s.filter.IsReady() {
		return &Verdict{}
	}

	req := &d.RequestDetails
	ref := s.referrerURL(req)
	headers := slices.Clone(d.Headers)

	headers, mods, applied, modified := s.filterRequestCookies(ctx, req, ref, headers)

	mainFrameURL := s.tabs.get(d.TabID).mainFrameURL()
	if mainFrameURL == "" {
		mainFrameURL = ref
	}

	stealthHeaders, actions, _ := s.stealth.ProcessRequestHeaders(ctx, d.URL, mainFrameURL, d.Type, headers)
	if actions != stealth.ActionNone {
		headers = stealthHeaders
		modified = true
	}

	for _, r := range applied {
		actions |= s.stealth.CookieRuleActions(r)
	}

	s.contexts.update(req, func(rc *RequestContext) {
		rc.StealthActions |= actions
		rc.CookieRules = appendRules(rc.CookieRules, applied)
		rc.ModifiedCookies = mods
		if modified {
			rc.RequestHeaders = headers
		}
	})

	if !modified {
		return &Verdict{}
	}

	return &Verdict{RequestHeaders: headers}
}

// OnHeadersReceived returns the verdict with the modified response headers,
// if any were modified.  The CSP headers are added to the documents, and the
// cookies of the response are filtered.  d must not be nil, d.Headers are not
// modified.
func (s *Service) OnHeadersReceived(ctx context.Context, d *HeadersDetails) (v *Verdict) {
	defer func() { s.metrics.IncrementVerdicts(ctx, v.kind()) }()

	if !s.filter.IsReady() {
		return &Verdict{}
	}

	req := &d.RequestDetails
	ref := s.referrerURL(req)
	headers := slices.Clone(d.Headers)

	var modified bool
	var cspRules []*rule.URLRule
	if d.Type == filter.TypeDocument || d.Type == filter.TypeSubdocument {
		var cspHeaders []filter.Header
		cspHeaders, cspRules = s.cspHeaders(req)
		if len(cspHeaders) > 0 {
			headers = append(headers, cspHeaders...)
			modified = true
		}
	}

	headers, applied, cookiesModified := s.filterResponseCookies(ctx, req, ref, headers)
	modified = modified || cookiesModified

	var replaceRules []*rule.URLRule
	if !s.isTabWhitelisted(d.TabID) {
		replaceRules = s.filter.GetReplaceRules(d.URL, ref, d.Type)
	}

	s.contexts.update(req, func(rc *RequestContext) {
		rc.CSPRules = cspRules
		rc.ReplaceRules = replaceRules
		rc.CookieRules = appendRules(rc.CookieRules, applied)
		if modified {
			rc.ResponseHeaders = headers
		}
	})

	if !modified {
		return &Verdict{}
	}

	return &Verdict{ResponseHeaders: headers}
}

// cspHeaders returns the Content-Security-Policy headers for the document
// request and the rules they are added by.  The legacy rules blocking the
// WebRTC and WebSocket connections add the default directive.
func (s *Service) cspHeaders(d *RequestDetails) (headers []filter.Header, rules []*rule.URLRule) {
	if s.isTabWhitelisted(d.TabID) {
		return nil, nil
	}

	frameURL := s.tabs.get(d.TabID).frames[d.FrameID]
	if frameURL == "" {
		frameURL = d.URL
	}

	legacy := s.ruleForRequest(d.TabID, requestfilter.CSPLegacyProbeURL, frameURL, filter.TypeWebRTC)
	if legacy != nil {
		rules = append(rules, legacy)
		if isBlocking(legacy) {
			headers = append(headers, filter.Header{
				Name:  requestfilter.CSPHeaderName,
				Value: requestfilter.CSPDefaultDirective,
			})
		}
	}

	cspRules := s.filter.GetCSPRules(d.URL, frameURL, d.Type)
	for _, dir := range requestfilter.CSPDirectives(cspRules) {
		headers = append(headers, filter.Header{
			Name:  requestfilter.CSPHeaderName,
			Value: dir,
		})
	}

	return headers, append(rules, cspRules...)
}

// cookieRules returns the $cookie rules for the request, including the ones
// of the stealth mode.
func (s *Service) cookieRules(d *RequestDetails, ref string) (cr *cookieRules) {
	if s.isTabWhitelisted(d.TabID) {
		return &cookieRules{}
	}

	rules := s.filter.GetCookieRules(d.URL, ref, d.Type)
	rules = append(rules, s.stealth.GetCookieRules(d.URL, ref, d.Type)...)

	return &cookieRules{
		rules:      rules,
		exceptions: s.filter.GetCookieExceptions(d.URL, ref, d.Type),
	}
}

// filterRequestCookies removes the blocked cookies from the Cookie headers.
// headers are modified.
func (s *Service) filterRequestCookies(
	ctx context.Context,
	d *RequestDetails,
	ref string,
	headers []filter.Header,
) (res []filter.Header, mods []*cookieModification, applied []*rule.URLRule, modified bool) {
	cr := s.cookieRules(d, ref)
	if cr.isEmpty() {
		return headers, nil, nil, false
	}

	res = headers[:0]
	for _, h := range headers {
		if !strings.EqualFold(h.Name, headerCookie) {
			res = append(res, h)

			continue
		}

		val, hdrMods, hdrApplied, hdrModified := cr.filterCookieHeader(h.Value)
		mods = append(mods, hdrMods...)
		applied = appendRules(applied, hdrApplied)
		if !hdrModified {
			res = append(res, h)

			continue
		}

		modified = true
		if val != "" {
			res = append(res, filter.Header{Name: h.Name, Value: val})
		}
	}

	for _, r := range applied {
		s.reportHit(ctx, d.TabID, d.URL, r)
	}

	return res, mods, applied, modified
}

// filterResponseCookies removes or modifies the blocked cookies of the
// Set-Cookie headers and adds the headers modifying the cookies of the request
// matched by the modifying rules.  headers are modified.
func (s *Service) filterResponseCookies(
	ctx context.Context,
	d *RequestDetails,
	ref string,
	headers []filter.Header,
) (res []filter.Header, applied []*rule.URLRule, modified bool) {
	cr := s.cookieRules(d, ref)
	if cr.isEmpty() {
		return headers, nil, false
	}

	res = headers[:0]
	for _, h := range headers {
		if !strings.EqualFold(h.Name, headerSetCookie) {
			res = append(res, h)

			continue
		}

		val, ok, r := cr.filterSetCookie(h.Value)
		if r == nil {
			res = append(res, h)

			continue
		}

		modified = true
		applied = appendRule(applied, r)
		if ok {
			res = append(res, filter.Header{Name: h.Name, Value: val})
		}
	}

	if rc, ok := s.contexts.get(d.RequestID); ok {
		if extra := modificationHeaders(rc.ModifiedCookies, res); len(extra) > 0 {
			res = append(res, extra...)
			modified = true
		}
	}

	for _, r := range applied {
		s.reportHit(ctx, d.TabID, d.URL, r)
	}

	return res, applied, modified
}

// appendRules appends the rules of added missing from rules.
func appendRules(rules, added []*rule.URLRule) (res []*rule.URLRule) {
	res = rules
	for _, r := range added {
		res = appendRule(res, r)
	}

	return res
}
