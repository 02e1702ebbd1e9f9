// Package stealth contains the stealth mode, which hides the user's data from
// the trackers by modifying the requests.
package stealth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/grafana/regexp"
)

// Action is a bitmask of the actions taken by the stealth mode on a request.
type Action uint8

// Action values.
//
// NOTE:  DO NOT change these as the browser-side adapter depends on these
// values.
const (
	ActionHideReferrer Action = 1 << iota
	ActionHideSearchQueries
	ActionBlockChromeClientData
	ActionSendDoNotTrack
	ActionStrippedTrackingURL
	ActionFirstPartyCookies
	ActionThirdPartyCookies

	ActionNone Action = 0
)

// Header names used by the stealth mode.
const (
	HeaderReferer     = "Referer"
	HeaderXClientData = "X-Client-Data"
	HeaderDoNotTrack  = "DNT"
)

// doNotTrackEnabled is the value of the DNT header sent by the stealth mode.
const doNotTrackEnabled = "1"

// secondsInMinute is used to convert the cookie lifetimes.
const secondsInMinute = 60

// Tracking parameter wildcard and its regular expression.
const (
	trackingParamGlob  = "*"
	trackingParamMatch = `[^&#=]*`
)

// searchEngines are the patterns of the URLs of the search engines.
var searchEngines = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^https?://(www\.)?google\.`),
	regexp.MustCompile(`(?i)^https?://(www\.)?yandex\.`),
	regexp.MustCompile(`(?i)^https?://(www\.)?bing\.`),
	regexp.MustCompile(`(?i)^https?://(www\.)?yahoo\.`),
	regexp.MustCompile(`(?i)^https?://(www\.)?go\.mail\.ru`),
	regexp.MustCompile(`(?i)^https?://(www\.)?ask\.com`),
	regexp.MustCompile(`(?i)^https?://(www\.)?aol\.com`),
	regexp.MustCompile(`(?i)^https?://(www\.)?baidu\.com`),
	regexp.MustCompile(`(?i)^https?://(www\.)?seznam\.cz`),
}

// RuleFinder finds the exceptions disabling the stealth mode.
type RuleFinder interface {
	// FindWhiteListRule returns the exception rule for the request or nil.
	FindWhiteListRule(url, referrer string, typ filter.RequestType) (r *rule.URLRule)

	// FindStealthWhiteListRule returns the $stealth exception for the request
	// or nil.
	FindStealthWhiteListRule(url, referrer string, typ filter.RequestType) (r *rule.URLRule)
}

// Config is the configuration of the stealth mode.
type Config struct {
	// Logger is used to log the actions.  It must not be nil.
	Logger *slog.Logger

	// Rules finds the exceptions.  It must not be nil.
	Rules RuleFinder

	// TrackingParameters are the names of the query parameters removed from
	// the document URLs.  "*" matches any number of characters.
	TrackingParameters []string

	// FirstPartyCookiesMaxAge is the lifetime of the first-party cookies in
	// minutes.  Zero means that the cookies are removed immediately.
	FirstPartyCookiesMaxAge uint

	// ThirdPartyCookiesMaxAge is the lifetime of the third-party cookies in
	// minutes.  Zero means that the cookies are removed immediately.
	ThirdPartyCookiesMaxAge uint

	// Enabled enables the stealth mode.
	Enabled bool

	// HideReferrer replaces the referrer of the third-party requests with the
	// origin of the request.
	HideReferrer bool

	// HideSearchQueries hides the referrer of the documents opened from the
	// search engines.
	HideSearchQueries bool

	// BlockChromeClientData removes the X-Client-Data header.
	BlockChromeClientData bool

	// SendDoNotTrack adds the DNT header.
	SendDoNotTrack bool

	// SelfDestructFirstPartyCookies limits the lifetime of all cookies.
	SelfDestructFirstPartyCookies bool

	// SelfDestructThirdPartyCookies limits the lifetime of the cookies of the
	// third-party requests.
	SelfDestructThirdPartyCookies bool

	// StripTrackingParameters enables the removal of TrackingParameters.
	StripTrackingParameters bool
}

// Service is the stealth mode service.  It's safe for concurrent use.
type Service struct {
	logger *slog.Logger
	rules  RuleFinder

	// trackingParams matches the tracking parameters in a query.  It's nil if
	// the parameters aren't stripped.
	trackingParams *regexp.Regexp

	// firstPartyRule and thirdPartyRule are the generated cookie rules.  They
	// are nil if the corresponding option is disabled.
	firstPartyRule *rule.URLRule
	thirdPartyRule *rule.URLRule

	conf *Config
}

// New returns a new stealth mode service.  c must not be nil.
func New(c *Config) (s *Service, err error) {
	s = &Service{
		logger: c.Logger,
		rules:  c.Rules,
		conf:   c,
	}

	var errs []error
	if c.SelfDestructFirstPartyCookies {
		s.firstPartyRule, err = newCookieRule(c.FirstPartyCookiesMaxAge)
		if err != nil {
			errs = append(errs, fmt.Errorf("first-party cookies: %w", err))
		}
	}

	if c.SelfDestructThirdPartyCookies {
		s.thirdPartyRule, err = newCookieRule(c.ThirdPartyCookiesMaxAge)
		if err != nil {
			errs = append(errs, fmt.Errorf("third-party cookies: %w", err))
		}
	}

	if c.StripTrackingParameters {
		s.trackingParams, err = newTrackingParamsRegexp(c.TrackingParameters)
		if err != nil {
			errs = append(errs, fmt.Errorf("tracking parameters: %w", err))
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, fmt.Errorf("stealth: %w", err)
	}

	return s, nil
}

// newCookieRule returns the rule limiting the lifetime of all cookies to
// maxAgeMin minutes.
func newCookieRule(maxAgeMin uint) (r *rule.URLRule, err error) {
	text := "$cookie=/.+/"
	if maxAgeMin > 0 {
		text = fmt.Sprintf("%s;maxAge=%d", text, maxAgeMin*secondsInMinute)
	}

	return rule.NewURLRule(text, filter.ListIDStealth)
}

// newTrackingParamsRegexp returns the regular expression matching the query
// parameters named params.
func newTrackingParamsRegexp(params []string) (re *regexp.Regexp, err error) {
	var alts []string
	for _, p := range params {
		p = strings.TrimSpace(strings.ReplaceAll(p, "=", ""))
		if p == "" {
			continue
		}

		parts := strings.Split(p, trackingParamGlob)
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}

		alts = append(alts, strings.Join(parts, trackingParamMatch))
	}

	if len(alts) == 0 {
		return nil, errors.ErrEmptyValue
	}

	return regexp.Compile(`(?i)(^|&)(` + strings.Join(alts, "|") + `)=[^&#]*`)
}

// isSearchEngine returns true if u is a URL of a search engine.
func isSearchEngine(u string) (ok bool) {
	return slices.ContainsFunc(searchEngines, func(re *regexp.Regexp) (ok bool) {
		return re.MatchString(u)
	})
}

// hiddenReferrer returns the referrer that hides everything except the origin
// of u.
func hiddenReferrer(u string) (ref string) {
	scheme := "http://"
	if strings.HasPrefix(u, "https") {
		scheme = "https://"
	}

	return scheme + filter.ExtractHostname(u) + "/"
}

// isThirdParty returns true if the request to u made from the page at ref is
// third-party.
func isThirdParty(u, ref string) (ok bool) {
	return filter.IsThirdParty(filter.ExtractHostname(u), filter.ExtractHostname(ref))
}

// findWhitelistRule returns the exception disabling the stealth mode for the
// request.  It's either a $document exception or a $stealth one.
func (s *Service) findWhitelistRule(u, ref string, typ filter.RequestType) (r *rule.URLRule) {
	r = s.rules.FindWhiteListRule(u, ref, typ)
	if r != nil && r.IsDocumentWhitelist() {
		return r
	}

	r = s.rules.FindStealthWhiteListRule(ref, ref, typ)
	if r != nil && r.IsDocumentWhitelist() {
		return r
	}

	return s.rules.FindStealthWhiteListRule(u, ref, typ)
}

// ProcessRequestHeaders applies the stealth mode to the headers of the request
// to u made from the page at mainFrameURL.  res is a modified copy of headers.
// If the stealth mode is disabled for the request, wlRule is the exception that
// disabled it.
func (s *Service) ProcessRequestHeaders(
	ctx context.Context,
	u string,
	mainFrameURL string,
	typ filter.RequestType,
	headers []filter.Header,
) (res []filter.Header, actions Action, wlRule *rule.URLRule) {
	if !s.conf.Enabled || mainFrameURL == "" {
		return headers, ActionNone, nil
	}

	wlRule = s.findWhitelistRule(u, mainFrameURL, typ)
	if wlRule != nil {
		s.logger.DebugContext(ctx, "whitelisted", "url", u, "rule", wlRule.Text())

		return headers, ActionNone, wlRule
	}

	res = slices.Clone(headers)

	if s.conf.HideReferrer {
		i := filter.FindHeader(res, HeaderReferer)
		if i != -1 && isThirdParty(u, res[i].Value) {
			res[i].Value = hiddenReferrer(u)
			actions |= ActionHideReferrer
		}
	}

	if s.conf.HideSearchQueries && typ == filter.TypeDocument {
		i := filter.FindHeader(res, HeaderReferer)
		if i != -1 && isSearchEngine(res[i].Value) && isThirdParty(u, res[i].Value) {
			res[i].Value = hiddenReferrer(u)
			actions |= ActionHideSearchQueries
		}
	}

	if s.conf.BlockChromeClientData {
		var removed bool
		res, removed = filter.RemoveHeaders(res, HeaderXClientData)
		if removed {
			actions |= ActionBlockChromeClientData
		}
	}

	if s.conf.SendDoNotTrack {
		res = append(res, filter.Header{
			Name:  HeaderDoNotTrack,
			Value: doNotTrackEnabled,
		})
		actions |= ActionSendDoNotTrack
	}

	if actions != ActionNone {
		s.logger.DebugContext(ctx, "processed request headers", "url", u, "actions", actions)
	}

	return res, actions, nil
}

// GetCookieRules returns the generated cookie rules for the request to u made
// from the page at ref.
func (s *Service) GetCookieRules(u, ref string, typ filter.RequestType) (rules []*rule.URLRule) {
	if !s.conf.Enabled || s.findWhitelistRule(u, ref, typ) != nil {
		return nil
	}

	if s.firstPartyRule != nil {
		rules = append(rules, s.firstPartyRule)
	}

	if s.thirdPartyRule != nil && typ != filter.TypeDocument && ref != "" && isThirdParty(u, ref) {
		rules = append(rules, s.thirdPartyRule)
	}

	return rules
}

// CookieRuleActions returns the stealth actions of the rule r returned by
// [Service.GetCookieRules].  For other rules it returns [ActionNone].
func (s *Service) CookieRuleActions(r *rule.URLRule) (actions Action) {
	switch r {
	case nil:
		return ActionNone
	case s.firstPartyRule:
		return ActionFirstPartyCookies
	case s.thirdPartyRule:
		return ActionThirdPartyCookies
	default:
		return ActionNone
	}
}

// RemoveTrackersFromURL returns u without the tracking parameters.  ok is false
// if u wasn't modified.  Only the document URLs are modified.
func (s *Service) RemoveTrackersFromURL(
	ctx context.Context,
	u string,
	mainFrameURL string,
	typ filter.RequestType,
) (stripped string, ok bool) {
	if !s.conf.Enabled || s.trackingParams == nil || typ != filter.TypeDocument {
		return "", false
	}

	base, query, hasQuery := strings.Cut(u, "?")
	if !hasQuery || s.findWhitelistRule(u, mainFrameURL, typ) != nil {
		return "", false
	}

	query = strings.TrimLeft(s.trackingParams.ReplaceAllString(query, ""), "&")

	stripped = base
	if query != "" {
		stripped = base + "?" + query
	}

	if stripped == u {
		return "", false
	}

	s.logger.DebugContext(ctx, "stripped tracking parameters", "url", u)

	return stripped, true
}
