// Package urlblock contains the filter deciding whether network requests are
// blocked by the URL rules.
package urlblock

import (
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/lookup"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Filter selects the single rule deciding the fate of a request among the
// blocking and exception URL rules.  It must not contain $cookie, $csp, or
// $replace rules.
//
// A Filter is not safe for concurrent mutation.  The find methods may be
// called concurrently as long as the filter isn't being modified.
type Filter struct {
	table *lookup.Table
}

// New returns a new filter containing rules.
func New(rules []*rule.URLRule) (f *Filter) {
	return &Filter{
		table: lookup.NewWithRules(rules),
	}
}

// AddRule adds r to f.
func (f *Filter) AddRule(r *rule.URLRule) {
	f.table.AddRule(r)
}

// RemoveRule removes the rule equal to r from f.
func (f *Filter) RemoveRule(r *rule.URLRule) {
	f.table.RemoveRule(r)
}

// Len returns the number of rules in f.
func (f *Filter) Len() (n int) {
	return f.table.Len()
}

// Rules returns all rules of f in the order they were added.
func (f *Filter) Rules() (rules []*rule.URLRule) {
	return f.table.Rules()
}

// IsFiltered returns the rule that decides whether req is blocked or nil if no
// rule applies.  For requests of type [filter.TypeDocument] only the popup
// rules can block; for all other requests the popup rules are ignored.
// Exceptions that only disable cosmetic filtering don't unblock requests.
//
// Among the applicable rules the one for which [rule.URLRule.IsHigherPriority]
// holds over all others is returned.  If several rules are equivalent, the one
// added first is returned.
func (f *Filter) IsFiltered(req *filter.Request) (r *rule.URLRule) {
	for _, candidate := range f.table.FindRules(req) {
		if !isApplicable(candidate, req.Type) {
			continue
		}

		if r == nil || candidate.IsHigherPriority(r) {
			r = candidate
		}
	}

	return r
}

// isApplicable returns true if r can decide the fate of a request of type t.
func isApplicable(r *rule.URLRule, t filter.RequestType) (ok bool) {
	if r.IsWhitelist() {
		return r.IsURLWhitelist()
	}

	return r.IsPopup() == (t == filter.TypeDocument)
}

// FindWhiteListRule returns the exception rule matching req, preferring the
// $document exceptions, or nil if there is none.  Unlike [Filter.IsFiltered],
// it also returns the exceptions that only disable cosmetic filtering.
func (f *Filter) FindWhiteListRule(req *filter.Request) (r *rule.URLRule) {
	for _, candidate := range f.table.FindRules(req) {
		if !candidate.IsWhitelist() {
			continue
		}

		if r == nil || isBetterWhitelist(candidate, r) {
			r = candidate
		}
	}

	return r
}

// FindStealthWhiteListRule returns the $stealth exception matching req with the
// highest priority or nil if there is none.
func (f *Filter) FindStealthWhiteListRule(req *filter.Request) (r *rule.URLRule) {
	for _, candidate := range f.table.FindRules(req) {
		if !candidate.IsStealth() {
			continue
		}

		if r == nil || candidate.IsHigherPriority(r) {
			r = candidate
		}
	}

	return r
}

// isBetterWhitelist returns true if the exception rule a should be preferred
// over the exception rule b.
func isBetterWhitelist(a, b *rule.URLRule) (ok bool) {
	if ad, bd := a.IsDocumentWhitelist(), b.IsDocumentWhitelist(); ad != bd {
		return ad
	}

	if au, bu := a.IsURLBlock(), b.IsURLBlock(); au != bu {
		return au
	}

	return a.IsHigherPriority(b)
}
