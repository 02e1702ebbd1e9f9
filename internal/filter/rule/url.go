package rule

import (
	"github.com/advblocker/advfilter/internal/filter"
)

// URLRule is a rule that blocks, allows, or modifies network requests.
type URLRule struct {
	base

	pattern  *pattern
	cookie   *CookieOption
	replace  *ReplaceOption
	domains  Domains
	csp      string
	redirect string

	enabled  Option
	disabled Option

	permittedTypes  filter.RequestType
	restrictedTypes filter.RequestType
}

// type check
var _ Rule = (*URLRule)(nil)

// Kind implements the [Rule] interface for *URLRule.
func (r *URLRule) Kind() (k Kind) {
	return KindURL
}

// Match returns true if r matches req under the full rule semantics: the
// third-party flags, the request type, the source domain, and the pattern.
func (r *URLRule) Match(req *filter.Request) (ok bool) {
	return r.matchThirdParty(req.ThirdParty) &&
		r.matchRequestType(req.Type) &&
		r.domains.Match(req.SourceHostname) &&
		r.pattern.match(req)
}

// matchThirdParty returns true if the third-party flags of r allow the request.
func (r *URLRule) matchThirdParty(thirdParty bool) (ok bool) {
	if r.enabled&OptionThirdParty != 0 {
		return thirdParty
	}

	if r.disabled&OptionThirdParty != 0 {
		return !thirdParty
	}

	return true
}

// matchRequestType returns true if the request-type bitmasks of r allow t.
func (r *URLRule) matchRequestType(t filter.RequestType) (ok bool) {
	if r.permittedTypes != filter.TypeNone && r.permittedTypes&t != t {
		return false
	}

	return r.restrictedTypes == filter.TypeNone || r.restrictedTypes&t != t
}

// IsOptionEnabled returns true if all options in opt are enabled.
func (r *URLRule) IsOptionEnabled(opt Option) (ok bool) {
	return r.enabled&opt == opt
}

// Domains returns the source-domain restrictions of r.  Callers must not
// modify the result.
func (r *URLRule) Domains() (d Domains) {
	return r.domains
}

// PermittedTypes returns the request types r is limited to.  TypeNone means
// that r isn't limited.
func (r *URLRule) PermittedTypes() (t filter.RequestType) {
	return r.permittedTypes
}

// Shortcut returns the lowercased substring that every URL matched by r must
// contain.  It is empty if there is none.
func (r *URLRule) Shortcut() (s string) {
	return r.pattern.shortcut
}

// Pattern returns the pattern text of r.
func (r *URLRule) Pattern() (p string) {
	return r.pattern.text
}

// IsDocumentWhitelist returns true if r is a $document exception that disables
// all filtering on the matching pages.
func (r *URLRule) IsDocumentWhitelist() (ok bool) {
	return r.whitelist && r.IsOptionEnabled(OptionDocumentWhitelist)
}

// IsURLBlock returns true if r disables URL blocking on the matching pages.
func (r *URLRule) IsURLBlock() (ok bool) {
	return r.whitelist && r.IsOptionEnabled(OptionURLBlock)
}

// IsContent returns true if r disables content filtering on the matching
// pages.
func (r *URLRule) IsContent() (ok bool) {
	return r.whitelist && r.IsOptionEnabled(OptionContent)
}

// IsElemhide returns true if r disables element hiding on the matching pages.
func (r *URLRule) IsElemhide() (ok bool) {
	return r.whitelist && r.IsOptionEnabled(OptionElemhide)
}

// IsGenerichide returns true if r disables generic element hiding on the
// matching pages.
func (r *URLRule) IsGenerichide() (ok bool) {
	return r.whitelist && r.IsOptionEnabled(OptionGenerichide)
}

// IsJSInject returns true if r disables script injection on the matching pages.
func (r *URLRule) IsJSInject() (ok bool) {
	return r.whitelist && r.IsOptionEnabled(OptionJSInject)
}

// IsStealth returns true if r disables the stealth mode for the matching
// requests.
func (r *URLRule) IsStealth() (ok bool) {
	return r.whitelist && r.IsOptionEnabled(OptionStealth)
}

// IsPopup returns true if r is a popup rule.
func (r *URLRule) IsPopup() (ok bool) {
	return r.IsOptionEnabled(OptionPopup)
}

// IsImportant returns true if r has the $important option.
func (r *URLRule) IsImportant() (ok bool) {
	return r.IsOptionEnabled(OptionImportant)
}

// IsURLWhitelist returns true if r is an exception that unblocks the matching
// requests.  Exceptions that only carry cosmetic or stealth options don't.
func (r *URLRule) IsURLWhitelist() (ok bool) {
	if !r.whitelist {
		return false
	}

	cosmetic := OptionElemhide | OptionGenerichide | OptionJSInject | OptionContent | OptionStealth
	if r.enabled&cosmetic != 0 && r.enabled&OptionURLBlock == 0 {
		return false
	}

	return r.enabled&optionSpecial == 0
}

// IsSpecial returns true if r is a $cookie, $csp, or $replace rule.  Such rules
// are never used to decide whether a request is blocked.
func (r *URLRule) IsSpecial() (ok bool) {
	return r.enabled&optionSpecial != 0
}

// CookieOption returns the $cookie option of r or nil.
func (r *URLRule) CookieOption() (c *CookieOption) {
	return r.cookie
}

// IsCookie returns true if r is a $cookie rule.
func (r *URLRule) IsCookie() (ok bool) {
	return r.IsOptionEnabled(OptionCookie)
}

// CSPDirective returns the value of the $csp option of r.  It is empty for
// exception rules that disable every $csp rule.
func (r *URLRule) CSPDirective() (d string) {
	return r.csp
}

// IsCSP returns true if r is a $csp rule.
func (r *URLRule) IsCSP() (ok bool) {
	return r.IsOptionEnabled(OptionCSP)
}

// ReplaceOption returns the $replace option of r.  It is nil for exception
// rules that disable every $replace rule.
func (r *URLRule) ReplaceOption() (o *ReplaceOption) {
	return r.replace
}

// IsReplace returns true if r is a $replace rule.
func (r *URLRule) IsReplace() (ok bool) {
	return r.IsOptionEnabled(OptionReplace)
}

// Redirect returns the title of the redirect resource of r.
func (r *URLRule) Redirect() (title string) {
	return r.redirect
}

// IsRedirect returns true if r is a $redirect rule.
func (r *URLRule) IsRedirect() (ok bool) {
	return r.IsOptionEnabled(OptionRedirect)
}

// IsGeneric returns true if r isn't limited to any source domains.
func (r *URLRule) IsGeneric() (ok bool) {
	return len(r.domains.Permitted) == 0
}

// priority returns the rank of r used to select a single rule from several
// matching ones.  Rules with a higher rank win.
func (r *URLRule) priority() (p int) {
	switch important := r.IsImportant(); {
	case r.whitelist && important:
		return 4
	case important:
		return 3
	case r.whitelist:
		return 2
	case r.IsRedirect():
		return 1
	default:
		return 0
	}
}

// IsHigherPriority returns true if r should be selected over other when both
// match the same request.  The ranks are: important exceptions, important
// blocking rules, exceptions, redirects, and then the other blocking rules.
// Within a rank, rules limited to domains win over generic ones, and longer
// patterns win over shorter ones.  If the result is false for both orders, the
// rules are equivalent and the caller keeps the first one.
func (r *URLRule) IsHigherPriority(other *URLRule) (ok bool) {
	rp, op := r.priority(), other.priority()
	if rp != op {
		return rp > op
	}

	if rg, og := r.IsGeneric(), other.IsGeneric(); rg != og {
		return og
	}

	return len(r.pattern.text) > len(other.pattern.text)
}
