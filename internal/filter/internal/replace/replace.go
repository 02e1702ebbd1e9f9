// Package replace contains the filter of the $replace rules, which modify the
// bodies of the matching responses.
package replace

import (
	"slices"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/lookup"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Filter contains the $replace rules in two lookup tables, one for the
// blocking rules and one for the exceptions.
//
// A Filter is not safe for concurrent mutation.
type Filter struct {
	allow *lookup.Table
	block *lookup.Table
}

// New returns a new filter containing rules.  All rules must be $replace
// rules.
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
	if r.IsWhitelist() {
		f.allow.AddRule(r)
	} else {
		f.block.AddRule(r)
	}
}

// RemoveRule removes the rule equal to r from f.
func (f *Filter) RemoveRule(r *rule.URLRule) {
	if r.IsWhitelist() {
		f.allow.RemoveRule(r)
	} else {
		f.block.RemoveRule(r)
	}
}

// Len returns the number of rules in f.
func (f *Filter) Len() (n int) {
	return f.allow.Len() + f.block.Len()
}

// Rules returns the exceptions followed by the blocking rules of f.
func (f *Filter) Rules() (rules []*rule.URLRule) {
	return append(f.allow.Rules(), f.block.Rules()...)
}

// FindReplaceRules returns the rules to apply to the body of the response to
// req or nil if no rule matches.  An exception without a value disables every
// rule and is returned alone.  An exception with a value disables the rules
// with the identical value and replaces them in the result.
func (f *Filter) FindReplaceRules(req *filter.Request) (rules []*rule.URLRule) {
	blockRules := f.block.FindRules(req)
	if len(blockRules) == 0 {
		return nil
	}

	allowRules := f.allow.FindRules(req)
	if len(allowRules) == 0 {
		return blockRules
	}

	for _, a := range allowRules {
		if a.ReplaceOption() == nil {
			return []*rule.URLRule{a}
		}
	}

	for _, b := range blockRules {
		text := b.ReplaceOption().Text()
		i := slices.IndexFunc(allowRules, func(a *rule.URLRule) (ok bool) {
			return a.ReplaceOption().Text() == text
		})

		r := b
		if i != -1 {
			r = allowRules[i]
		}

		if !slices.Contains(rules, r) {
			rules = append(rules, r)
		}
	}

	return rules
}

// Apply applies the blocking rules among rules to body in order.
func Apply(rules []*rule.URLRule, body string) (res string) {
	res = body
	for _, r := range rules {
		if !r.IsWhitelist() {
			res = r.ReplaceOption().Apply(res)
		}
	}

	return res
}
