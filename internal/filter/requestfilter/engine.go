package requestfilter

import (
	"context"
	"fmt"

	"github.com/advblocker/advfilter/internal/advcache"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/content"
	"github.com/advblocker/advfilter/internal/filter/internal/cookie"
	"github.com/advblocker/advfilter/internal/filter/internal/csp"
	"github.com/advblocker/advfilter/internal/filter/internal/css"
	"github.com/advblocker/advfilter/internal/filter/internal/replace"
	"github.com/advblocker/advfilter/internal/filter/internal/script"
	"github.com/advblocker/advfilter/internal/filter/internal/urlblock"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Rule categories used in the metrics.
const (
	CategoryURL     = "url"
	CategoryCookie  = "cookie"
	CategoryCSP     = "csp"
	CategoryReplace = "replace"
	CategoryCSS     = "css"
	CategoryScript  = "script"
	CategoryContent = "content"
)

// ctxCheckInterval is the number of rules added to an engine between the
// checks of the context.
const ctxCheckInterval = 1024

// cacheKey is the key of the decision cache.
type cacheKey struct {
	url      string
	referrer string
	typ      filter.RequestType
}

// engine is an immutable set of the specialized filters.  It's never modified
// after it's published.
type engine struct {
	urlBlock *urlblock.Filter
	cookie   *cookie.Filter
	csp      *csp.Filter
	replace  *replace.Filter
	css      *css.Filter
	script   *script.Filter
	content  *content.Filter

	// cache contains the results of [urlblock.Filter.IsFiltered].  The values
	// may be nil.
	cache advcache.Interface[cacheKey, *rule.URLRule]

	// rules are all rules of the engine in the order they were added.  They are
	// used to rebuild the engine with a delta.
	rules []rule.Rule

	// keys contains the keys of rules.
	keys map[rule.Key]struct{}
}

// newEngine builds a new engine containing rules.  Repeated rules are ignored.
// It returns an error only if ctx is canceled.
func newEngine(
	ctx context.Context,
	rules []rule.Rule,
	cache advcache.Interface[cacheKey, *rule.URLRule],
) (e *engine, err error) {
	e = &engine{
		urlBlock: urlblock.New(nil),
		cookie:   cookie.New(nil),
		csp:      csp.New(nil),
		replace:  replace.New(nil),
		css:      css.New(nil),
		script:   script.New(nil),
		content:  content.New(nil),
		cache:    cache,
		rules:    make([]rule.Rule, 0, len(rules)),
		keys:     make(map[rule.Key]struct{}, len(rules)),
	}

	for i, r := range rules {
		if i%ctxCheckInterval == 0 {
			err = ctx.Err()
			if err != nil {
				return nil, fmt.Errorf("building engine: %w", err)
			}
		}

		e.addRule(r)
	}

	return e, nil
}

// addRule adds r to the filter of its category.
func (e *engine) addRule(r rule.Rule) {
	key := rule.KeyOf(r)
	if _, ok := e.keys[key]; ok {
		return
	}

	e.keys[key] = struct{}{}
	e.rules = append(e.rules, r)

	switch r := r.(type) {
	case *rule.URLRule:
		e.addURLRule(r)
	case *rule.CSSRule:
		e.css.AddRule(r)
	case *rule.ScriptRule:
		e.script.AddRule(r)
	case *rule.ContentRule:
		e.content.AddRule(r)
	default:
		panic(fmt.Errorf("requestfilter: unexpected rule type %T", r))
	}
}

// addURLRule adds r to the filter chosen by its special options.
func (e *engine) addURLRule(r *rule.URLRule) {
	switch {
	case r.IsCookie():
		e.cookie.AddRule(r)
	case r.IsCSP():
		e.csp.AddRule(r)
	case r.IsReplace():
		e.replace.AddRule(r)
	default:
		e.urlBlock.AddRule(r)
	}
}

// counts returns the number of rules in each category of e.
func (e *engine) counts() (counts map[string]int) {
	return map[string]int{
		CategoryURL:     e.urlBlock.Len(),
		CategoryCookie:  e.cookie.Len(),
		CategoryCSP:     e.csp.Len(),
		CategoryReplace: e.replace.Len(),
		CategoryCSS:     e.css.Len(),
		CategoryScript:  e.script.Len(),
		CategoryContent: e.content.Len(),
	}
}

// isFiltered returns the rule deciding the fate of req using the cache.
func (e *engine) isFiltered(req *filter.Request) (r *rule.URLRule) {
	k := cacheKey{
		url:      req.URL,
		referrer: req.SourceHostname,
		typ:      req.Type,
	}

	r, ok := e.cache.Get(k)
	if ok {
		return r
	}

	r = e.urlBlock.IsFiltered(req)
	e.cache.Set(k, r)

	return r
}
