// Package webrequest contains the request adapter, which turns the events of
// the browser requests into the verdicts of the filtering engine.
package webrequest

import (
	"context"
	"log/slog"
	"time"

	"github.com/advblocker/advfilter/internal/advcache"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/advblocker/advfilter/internal/filter/stealth"
	"github.com/advblocker/advfilter/internal/rulestat"
)

// Special tab and frame IDs.
const (
	// BackgroundTabID is the ID of the tab of the requests not made by any
	// tab, such as the requests of other extensions.
	BackgroundTabID = -1

	// MainFrameID is the ID of the top-level frame of a tab.
	MainFrameID = 0
)

// CacheIDTabs is the ID of the tab cache in the cache manager.
const CacheIDTabs = "webrequest/tabs"

// RequestFilter is the filtering engine used by the adapter.
type RequestFilter interface {
	// IsReady returns false if the engine has no complete rule set.
	IsReady() (ok bool)

	// ShouldCollapseAllElements returns true if the content script must check
	// every element of a page for collapsing.
	ShouldCollapseAllElements() (ok bool)

	// FindWhiteListRule returns the exception rule for the request or nil.
	FindWhiteListRule(url, referrer string, typ filter.RequestType) (r *rule.URLRule)

	// FindRuleForRequest returns the rule deciding the fate of the request or
	// nil.
	FindRuleForRequest(
		url string,
		referrer string,
		typ filter.RequestType,
		whitelistRule *rule.URLRule,
	) (r *rule.URLRule)

	// GetCSPRules returns the $csp rules for the request.
	GetCSPRules(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule)

	// GetCookieRules returns the $cookie rules for the request.
	GetCookieRules(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule)

	// GetCookieExceptions returns the $cookie exceptions for the request.
	GetCookieExceptions(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule)

	// GetReplaceRules returns the $replace rules for the request.
	GetReplaceRules(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule)

	// GetSelectorsForURL returns the stylesheet for the document at url.
	GetSelectorsForURL(url string, opts requestfilter.CSSOptions) (s *requestfilter.Selectors)

	// GetScriptsForURL returns the scripts to inject into the document at url.
	GetScriptsForURL(url string, debug bool) (scripts []requestfilter.Script)

	// GetRedirectURL returns the URL the request blocked by r is redirected
	// to.
	GetRedirectURL(r *rule.URLRule) (u string, err error)
}

// type check
var _ RequestFilter = (*requestfilter.Filter)(nil)

// WhitelistFinder finds the rules of the user's whitelist.
type WhitelistFinder interface {
	// FindWhiteListRule returns the $document exception for the page at url or
	// nil.
	FindWhiteListRule(url string) (r *rule.URLRule)
}

// StealthService modifies the requests to hide the user's data.
type StealthService interface {
	// ProcessRequestHeaders returns the modified copy of headers.
	ProcessRequestHeaders(
		ctx context.Context,
		u string,
		mainFrameURL string,
		typ filter.RequestType,
		headers []filter.Header,
	) (res []filter.Header, actions stealth.Action, wlRule *rule.URLRule)

	// GetCookieRules returns the generated cookie rules for the request.
	GetCookieRules(u, ref string, typ filter.RequestType) (rules []*rule.URLRule)

	// CookieRuleActions returns the stealth actions of a generated cookie rule.
	CookieRuleActions(r *rule.URLRule) (actions stealth.Action)

	// RemoveTrackersFromURL returns u without the tracking parameters.
	RemoveTrackersFromURL(
		ctx context.Context,
		u string,
		mainFrameURL string,
		typ filter.RequestType,
	) (stripped string, ok bool)
}

// type check
var _ StealthService = (*stealth.Service)(nil)

// Config is the configuration structure for the request adapter.
type Config struct {
	// Logger is used to log the decisions.  It must not be nil.
	Logger *slog.Logger

	// Filter is the filtering engine.  It must not be nil.
	Filter RequestFilter

	// Whitelist is the user's whitelist.  It must not be nil.
	Whitelist WhitelistFinder

	// Stealth is the stealth mode.  It must not be nil.
	Stealth StealthService

	// RuleStat receives the hits of the blocking rules.  It must not be nil.
	RuleStat rulestat.Interface

	// Metrics is used to count the verdicts.  It must not be nil.
	Metrics Metrics

	// CacheManager is the global cache manager.  It must not be nil.
	CacheManager advcache.Manager

	// ContextTTL is the time after which the contexts of the requests that
	// never completed are removed.  It must be positive.
	ContextTTL time.Duration

	// TabTTL is the time after which the state of an inactive tab is removed.
	// It must be positive.
	TabTTL time.Duration

	// DebugScripts makes the injected scripts log their errors.
	DebugScripts bool

	// CollectHits enables the reporting of the rule hits to RuleStat.
	CollectHits bool
}

// Service is the request adapter.  It's safe for concurrent use.
type Service struct {
	logger       *slog.Logger
	filter       RequestFilter
	whitelist    WhitelistFinder
	stealth      StealthService
	ruleStat     rulestat.Interface
	metrics      Metrics
	contexts     *contextStorage
	tabs         *tabStorage
	debugScripts bool
	collectHits  bool
}

// New returns a new properly initialized request adapter.  c must not be nil.
func New(c *Config) (s *Service) {
	s = &Service{
		logger:       c.Logger,
		filter:       c.Filter,
		whitelist:    c.Whitelist,
		stealth:      c.Stealth,
		ruleStat:     c.RuleStat,
		metrics:      c.Metrics,
		contexts:     newContextStorage(c.ContextTTL),
		tabs:         newTabStorage(c.TabTTL),
		debugScripts: c.DebugScripts,
		collectHits:  c.CollectHits,
	}

	c.CacheManager.Add(CacheIDTabs, s.tabs)

	return s
}
