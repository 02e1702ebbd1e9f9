package webrequest

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Names of the cookie headers.
const (
	headerCookie    = "Cookie"
	headerSetCookie = "Set-Cookie"
)

// cookieModification is a cookie of a request matched by a modifying $cookie
// rule.
type cookieModification struct {
	rule  *rule.URLRule
	name  string
	value string
}

// cookieRules are the $cookie rules and exceptions applied to a request.
type cookieRules struct {
	rules      []*rule.URLRule
	exceptions []*rule.URLRule
}

// isEmpty returns true if there are no rules that could change a cookie.
func (cr *cookieRules) isEmpty() (ok bool) {
	return len(cr.rules) == 0
}

// find returns the rule deciding the fate of the cookie named name or nil.  The
// exceptions covering the name take precedence over the blocking rules.
func (cr *cookieRules) find(name string) (r *rule.URLRule) {
	for _, r = range cr.exceptions {
		if r.CookieOption().Matches(name) {
			return r
		}
	}

	for _, r = range cr.rules {
		if r.CookieOption().Matches(name) {
			return r
		}
	}

	return nil
}

// filterCookieHeader removes the cookies blocked by cr from the value of the
// Cookie request header.  The cookies matched by the modifying rules are kept
// and returned as mods.  applied are the blocking rules that changed anything.
func (cr *cookieRules) filterCookieHeader(
	value string,
) (res string, mods []*cookieModification, applied []*rule.URLRule, modified bool) {
	parts := strings.Split(value, ";")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		name, val, _ := strings.Cut(strings.TrimSpace(part), "=")
		if name == "" {
			continue
		}

		r := cr.find(name)
		switch {
		case r == nil, r.IsWhitelist():
			kept = append(kept, name+"="+val)
		case r.CookieOption().IsModifying():
			kept = append(kept, name+"="+val)
			mods = append(mods, &cookieModification{
				rule:  r,
				name:  name,
				value: val,
			})
			applied = appendRule(applied, r)
		default:
			modified = true
			applied = appendRule(applied, r)
		}
	}

	if !modified {
		return value, mods, applied, false
	}

	return strings.Join(kept, "; "), mods, applied, true
}

// filterSetCookie returns the new value of the Set-Cookie response header.  ok
// is false if the cookie must be removed.  r is the blocking rule applied to the
// cookie, if any.  Malformed headers are kept as is.
func (cr *cookieRules) filterSetCookie(value string) (res string, ok bool, r *rule.URLRule) {
	c, err := http.ParseSetCookie(value)
	if err != nil {
		return value, true, nil
	}

	r = cr.find(c.Name)
	if r == nil || r.IsWhitelist() {
		return value, true, nil
	}

	opt := r.CookieOption()
	if !opt.IsModifying() {
		return "", false, r
	}

	if !modifyCookie(c, opt) {
		return value, true, nil
	}

	return c.String(), true, r
}

// modifyCookie applies the attributes of opt to c and returns true if c was
// changed.  The Max-Age of c is only decreased, and it replaces Expires.
func modifyCookie(c *http.Cookie, opt *rule.CookieOption) (modified bool) {
	if opt.MaxAge > 0 && (c.MaxAge == 0 || c.MaxAge > opt.MaxAge) {
		c.MaxAge = opt.MaxAge
		c.Expires = time.Time{}
		c.RawExpires = ""
		modified = true
	}

	if ss := sameSiteMode(opt.SameSite); ss != 0 && c.SameSite != ss {
		c.SameSite = ss
		modified = true
	}

	return modified
}

// sameSiteMode converts the sameSite parameter of a $cookie rule into the
// cookie attribute.
func sameSiteMode(s rule.SameSite) (m http.SameSite) {
	switch s {
	case rule.SameSiteLax:
		return http.SameSiteLaxMode
	case rule.SameSiteStrict:
		return http.SameSiteStrictMode
	default:
		return 0
	}
}

// modificationHeaders returns the Set-Cookie headers applying mods to the
// cookies not already set by the response headers.
func modificationHeaders(mods []*cookieModification, headers []filter.Header) (res []filter.Header) {
	set := map[string]struct{}{}
	for _, h := range headers {
		if !strings.EqualFold(h.Name, headerSetCookie) {
			continue
		}

		if c, err := http.ParseSetCookie(h.Value); err == nil {
			set[c.Name] = struct{}{}
		}
	}

	for _, m := range mods {
		if _, ok := set[m.name]; ok {
			continue
		}

		c := &http.Cookie{
			Name:  m.name,
			Value: m.value,
			Path:  "/",
		}
		modifyCookie(c, m.rule.CookieOption())

		res = append(res, filter.Header{
			Name:  headerSetCookie,
			Value: c.String(),
		})
		set[m.name] = struct{}{}
	}

	return res
}

// appendRule appends r to rules unless it's already there.
func appendRule(rules []*rule.URLRule, r *rule.URLRule) (res []*rule.URLRule) {
	if slices.Contains(rules, r) {
		return rules
	}

	return append(rules, r)
}
