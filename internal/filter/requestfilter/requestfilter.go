// Package requestfilter contains the composite request filter that combines the
// specialized filters into a single decision engine.
package requestfilter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/advcache"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/content"
	"github.com/advblocker/advfilter/internal/filter/internal/csp"
	"github.com/advblocker/advfilter/internal/filter/internal/css"
	"github.com/advblocker/advfilter/internal/filter/internal/redirect"
	"github.com/advblocker/advfilter/internal/filter/internal/replace"
	"github.com/advblocker/advfilter/internal/filter/internal/script"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// CacheID is the ID of the decision cache in the cache manager.
const CacheID = "filters/request"

// Selectors is the stylesheet for a page.
type Selectors = css.Selectors

// CSSOptions is the bitmask of the parts of the stylesheet to retrieve.
type CSSOptions = css.Options

// CSSOptions values.
const (
	RetrieveTraditionalCSS = css.RetrieveTraditionalCSS
	RetrieveExtCSS         = css.RetrieveExtCSS
	GenericHideApplied     = css.GenericHideApplied
	DefaultCSSOptions      = css.Default
)

// Script is a single script to inject into a page.
type Script = script.Result

// Redirects is a set of redirect resources.
type Redirects = redirect.Resources

// ParseRedirects parses the YAML set of redirect resources.
func ParseRedirects(data []byte) (res *Redirects, err error) {
	return redirect.Parse(data)
}

// ErrNoRedirect is returned by [Filter.GetRedirectURL] when the redirect
// resource of a rule is unknown.
const ErrNoRedirect = redirect.ErrNoResource

// CSP constants re-exported for the request adapter.
const (
	CSPHeaderName       = csp.HeaderName
	CSPDefaultDirective = csp.DefaultDirective
	CSPLegacyProbeURL   = csp.LegacyProbeURL
)

// CSPDirectives returns the directives of the blocking rules among rules.
func CSPDirectives(rules []*rule.URLRule) (directives []string) {
	return csp.Directives(rules)
}

// ApplyReplace applies the blocking rules among rules to body.
func ApplyReplace(rules []*rule.URLRule, body string) (res string) {
	return replace.Apply(rules, body)
}

// MatchContent returns the first rule among rules matching el or nil.
func MatchContent(rules []*rule.ContentRule, el *rule.Element) (r *rule.ContentRule) {
	return content.Match(rules, el)
}

// Config is the configuration structure for the composite request filter.
type Config struct {
	// Logger is used to log the reloads.  It must not be nil.
	Logger *slog.Logger

	// Metrics is used to report the rule counts and the reloads.  It must not
	// be nil.
	Metrics Metrics

	// CacheManager is the global cache manager.  It must not be nil.
	CacheManager advcache.Manager

	// Clock is used to measure the duration of the reloads.  It must not be
	// nil.
	Clock timeutil.Clock

	// Redirects are the resources used by the $redirect rules.  It may be nil.
	Redirects *Redirects

	// CacheSize is the number of decisions kept in the cache.  If it's zero,
	// the decisions aren't cached.
	CacheSize int
}

// Filter is the composite request filter.  Readers never block: the lookups
// use the engine published last, and the reloads build a new engine and publish
// it atomically.
type Filter struct {
	logger    *slog.Logger
	metrics   Metrics
	clock     timeutil.Clock
	redirects *Redirects
	engine    *atomic.Pointer[engine]
	reloading *atomic.Bool
	cacheSize int

	// mu serializes the mutations.
	mu *sync.Mutex
}

// New returns a new composite filter.  It isn't ready until the first
// successful call to [Filter.Reload].  c must not be nil.
func New(c *Config) (f *Filter) {
	f = &Filter{
		logger:    c.Logger,
		metrics:   c.Metrics,
		clock:     c.Clock,
		redirects: c.Redirects,
		engine:    &atomic.Pointer[engine]{},
		reloading: &atomic.Bool{},
		cacheSize: c.CacheSize,
		mu:        &sync.Mutex{},
	}

	c.CacheManager.Add(CacheID, f)

	return f
}

// type check
var _ advcache.Clearer = (*Filter)(nil)

// Clear implements the [advcache.Clearer] interface for *Filter.  It clears
// the decision cache of the current engine.
func (f *Filter) Clear() {
	if e := f.engine.Load(); e != nil {
		e.cache.Clear()
	}
}

// IsReady returns true if f has a complete rule set and no reload is in
// progress.  Callers must not filter anything when it's false.
func (f *Filter) IsReady() (ok bool) {
	return f.engine.Load() != nil && !f.reloading.Load()
}

// newCache returns a new decision cache for an engine.
func (f *Filter) newCache() (c advcache.Interface[cacheKey, *rule.URLRule]) {
	if f.cacheSize <= 0 {
		return advcache.Empty[cacheKey, *rule.URLRule]{}
	}

	return advcache.NewLRU[cacheKey, *rule.URLRule](&advcache.LRUConfig{
		Size: f.cacheSize,
	})
}

// Reload replaces all rules of f with rules.  f isn't ready while the new
// engine is being built.  If an error is returned, the previous rules stay in
// effect.
func (f *Filter) Reload(ctx context.Context, rules []rule.Rule) (err error) {
	defer func() { err = errors.Annotate(err, "reloading request filter: %w") }()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.reloading.Store(true)
	defer f.reloading.Store(false)

	start := f.clock.Now()
	e, err := newEngine(ctx, rules, f.newCache())
	f.metrics.ObserveReload(ctx, f.clock.Now().Sub(start), err)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	f.publish(ctx, e)

	f.logger.InfoContext(ctx, "reloaded", "rules", len(e.rules))

	return nil
}

// AddRules adds rules to the current rule set.  The rules already present are
// ignored.
func (f *Filter) AddRules(ctx context.Context, rules []rule.Rule) (err error) {
	defer func() { err = errors.Annotate(err, "adding rules: %w") }()

	return f.update(ctx, func(cur []rule.Rule) (next []rule.Rule) {
		return append(slices.Clip(cur), rules...)
	})
}

// RemoveRules removes the rules equal to rules from the current rule set.
func (f *Filter) RemoveRules(ctx context.Context, rules []rule.Rule) (err error) {
	defer func() { err = errors.Annotate(err, "removing rules: %w") }()

	keys := make(map[rule.Key]struct{}, len(rules))
	for _, r := range rules {
		keys[rule.KeyOf(r)] = struct{}{}
	}

	return f.update(ctx, func(cur []rule.Rule) (next []rule.Rule) {
		return slices.DeleteFunc(slices.Clone(cur), func(r rule.Rule) (ok bool) {
			_, ok = keys[rule.KeyOf(r)]

			return ok
		})
	})
}

// update rebuilds the current engine with the rules returned by upd and
// publishes it.  upd must not modify its argument.
func (f *Filter) update(ctx context.Context, upd func(cur []rule.Rule) (next []rule.Rule)) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cur []rule.Rule
	if e := f.engine.Load(); e != nil {
		cur = e.rules
	}

	e, err := newEngine(ctx, upd(cur), f.newCache())
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	f.publish(ctx, e)

	return nil
}

// publish makes e the current engine and reports its metrics.  f.mu must be
// locked.
func (f *Filter) publish(ctx context.Context, e *engine) {
	f.engine.Store(e)

	for category, n := range e.counts() {
		f.metrics.SetRulesCount(ctx, category, n)
	}
}

// Rules returns all rules of f in the order they were added.
func (f *Filter) Rules() (rules []rule.Rule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	return slices.Clone(e.rules)
}

// RulesCount returns the number of rules in f.
func (f *Filter) RulesCount() (n int) {
	e := f.engine.Load()
	if e == nil {
		return 0
	}

	return len(e.rules)
}

// ShouldCollapseAllElements returns true if the content script must check
// every element of a page for collapsing, which is only needed if there are
// URL-blocking rules at all.
func (f *Filter) ShouldCollapseAllElements() (ok bool) {
	e := f.engine.Load()

	return e != nil && e.urlBlock.Len() > 0
}

// FindWhiteListRule returns the exception rule for the request or nil.  The
// $document exceptions are preferred.
func (f *Filter) FindWhiteListRule(url, referrer string, typ filter.RequestType) (r *rule.URLRule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	return e.urlBlock.FindWhiteListRule(filter.NewRequest(url, referrer, typ))
}

// FindStealthWhiteListRule returns the $stealth exception for the request or
// nil.
func (f *Filter) FindStealthWhiteListRule(url, referrer string, typ filter.RequestType) (r *rule.URLRule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	return e.urlBlock.FindStealthWhiteListRule(filter.NewRequest(url, referrer, typ))
}

// FindRuleForRequest returns the rule deciding the fate of the request or nil
// if the request is allowed.  whitelistRule is the exception rule found for the
// frame or the request document, if any.  A $document exception is returned as
// is.
func (f *Filter) FindRuleForRequest(
	url string,
	referrer string,
	typ filter.RequestType,
	whitelistRule *rule.URLRule,
) (r *rule.URLRule) {
	if whitelistRule != nil && whitelistRule.IsDocumentWhitelist() {
		return whitelistRule
	}

	e := f.engine.Load()
	if e == nil {
		return nil
	}

	r = e.isFiltered(filter.NewRequest(url, referrer, typ))
	switch {
	case r == nil:
		return whitelistRule
	case r.IsWhitelist():
		return r
	case whitelistRule != nil && whitelistRule.IsURLBlock() && !r.IsImportant():
		return whitelistRule
	default:
		return r
	}
}

// documentWhitelistRule returns the exception rule found for the request
// treated as a document.
func (e *engine) documentWhitelistRule(url, referrer string) (r *rule.URLRule) {
	return e.urlBlock.FindWhiteListRule(filter.NewRequest(url, referrer, filter.TypeDocument))
}

// GetCSPRules returns the $csp rules for the request.  The $urlblock and
// $document exceptions disable them.
func (f *Filter) GetCSPRules(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	if wl := e.documentWhitelistRule(url, referrer); wl != nil && wl.IsURLBlock() {
		return nil
	}

	return e.csp.FindCSPRules(filter.NewRequest(url, referrer, typ))
}

// GetCookieRules returns the $cookie rules for the request.  Only the $document
// exceptions disable them.
func (f *Filter) GetCookieRules(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	if wl := e.documentWhitelistRule(url, referrer); wl != nil && wl.IsDocumentWhitelist() {
		return nil
	}

	return e.cookie.FindCookieRules(filter.NewRequest(url, referrer, typ))
}

// GetCookieExceptions returns the $cookie exceptions matching the request.
// Only the $document exceptions disable them.
func (f *Filter) GetCookieExceptions(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	if wl := e.documentWhitelistRule(url, referrer); wl != nil && wl.IsDocumentWhitelist() {
		return nil
	}

	return e.cookie.FindExceptions(filter.NewRequest(url, referrer, typ))
}

// GetReplaceRules returns the $replace rules for the request.  The $content
// and $document exceptions disable them.
func (f *Filter) GetReplaceRules(url, referrer string, typ filter.RequestType) (rules []*rule.URLRule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	if wl := e.documentWhitelistRule(url, referrer); wl != nil && wl.IsContent() {
		return nil
	}

	return e.replace.FindReplaceRules(filter.NewRequest(url, referrer, typ))
}

// GetContentRulesForURL returns the HTML filtering rules for the document at
// url.  The $content and $document exceptions disable them.
func (f *Filter) GetContentRulesForURL(url string) (rules []*rule.ContentRule) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	if wl := e.documentWhitelistRule(url, url); wl != nil && wl.IsContent() {
		return nil
	}

	return e.content.RulesForDomain(filter.ExtractHostname(url))
}

// GetSelectorsForURL returns the stylesheet for the document at url.  The
// cosmetic exceptions must be reflected in opts by the caller.
func (f *Filter) GetSelectorsForURL(url string, opts CSSOptions) (s *Selectors) {
	e := f.engine.Load()
	if e == nil {
		return &Selectors{
			CSS:         []string{},
			ExtendedCSS: []string{},
		}
	}

	return e.css.BuildCSS(filter.ExtractHostname(url), opts)
}

// GetScriptsForURL returns the scripts to inject into the document at url.  If
// debug is true, the scripts log their errors.
func (f *Filter) GetScriptsForURL(url string, debug bool) (scripts []Script) {
	e := f.engine.Load()
	if e == nil {
		return nil
	}

	return e.script.BuildScript(filter.ExtractHostname(url), debug)
}

// GetRedirectURL returns the data URL the request blocked by r is redirected
// to.  r must be a $redirect rule.
func (f *Filter) GetRedirectURL(r *rule.URLRule) (u string, err error) {
	if !r.IsRedirect() {
		return "", fmt.Errorf("rule %q: %w", r.Text(), errors.ErrNoValue)
	}

	u, err = f.redirects.BuildURL(r.Redirect())
	if err != nil {
		f.logger.Debug("building redirect", slogutil.KeyError, err)

		return "", fmt.Errorf("rule %q: %w", r.Text(), err)
	}

	return u, nil
}
