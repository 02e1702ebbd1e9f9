// Package cookie contains the filter of the $cookie rules.
package cookie

import (
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/lookup"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Filter contains the $cookie rules in two lookup tables, one for the blocking
// rules and one for the exceptions.
//
// A Filter is not safe for concurrent mutation.
type Filter struct {
	allow *lookup.Table
	block *lookup.Table
}

// New returns a new filter containing rules.  All rules must be $cookie rules.
func New(rules []*rule.URLRule) (f *Filter) {
	f = &Filter{
		allow: lookup.New(),
		block: lookup.New(),
	}

	for _, r := range rules {
		f.AddRule(r)
	}

	return f
}

// AddRule adds r to f.
func (f *Filter) AddRule(r *rule.URLRule) {
	f.table(r).AddRule(r)
}

// RemoveRule removes the rule equal to r from f.
func (f *Filter) RemoveRule(r *rule.URLRule) {
	f.table(r).RemoveRule(r)
}

// table returns the table r belongs to.
func (f *Filter) table(r *rule.URLRule) (t *lookup.Table) {
	if r.IsWhitelist() {
		return f.allow
	}

	return f.block
}

// Len returns the number of rules in f.
func (f *Filter) Len() (n int) {
	return f.allow.Len() + f.block.Len()
}

// Rules returns the exceptions followed by the blocking rules of f.
func (f *Filter) Rules() (rules []*rule.URLRule) {
	return append(f.allow.Rules(), f.block.Rules()...)
}

// FindCookieRules returns the rules to apply to the cookies of req or nil if
// there are none.  The result contains:
//
//   - nil if no blocking rule matches req;
//
//   - all matching blocking rules if no exception matches req;
//
//   - the single matching exception with an empty $cookie option, which
//     unblocks every cookie, if there is one;
//
//   - otherwise, each matching blocking rule replaced with the first matching
//     exception that covers its cookie, if any.
func (f *Filter) FindCookieRules(req *filter.Request) (rules []*rule.URLRule) {
	blockRules := f.block.FindRules(req)
	if len(blockRules) == 0 {
		return nil
	}

	allowRules := f.allow.FindRules(req)
	if len(allowRules) == 0 {
		return blockRules
	}

	for _, a := range allowRules {
		if a.CookieOption().IsEmpty() {
			return []*rule.URLRule{a}
		}
	}

	rules = make([]*rule.URLRule, 0, len(blockRules))
	for _, b := range blockRules {
		if a := findAllowRule(b, allowRules); a != nil {
			rules = append(rules, a)
		} else {
			rules = append(rules, b)
		}
	}

	return rules
}

// FindExceptions returns all exceptions matching req.  The adapter uses them to
// unblock the individual cookies matched by a broader blocking rule.
func (f *Filter) FindExceptions(req *filter.Request) (rules []*rule.URLRule) {
	return f.allow.FindRules(req)
}

// findAllowRule returns the first of allowRules that covers the cookie of the
// blocking rule b, either by its name or by an identical regular expression.
func findAllowRule(b *rule.URLRule, allowRules []*rule.URLRule) (a *rule.URLRule) {
	bc := b.CookieOption()
	for _, a = range allowRules {
		ac := a.CookieOption()
		if bc.Name != "" && ac.Matches(bc.Name) {
			return a
		}

		if bc.RegexpText != "" && bc.RegexpText == ac.RegexpText {
			return a
		}
	}

	return nil
}
