// Package content contains the filter of the HTML-content rules, which remove
// elements from the bodies of the matching pages.
package content

import (
	"github.com/advblocker/advfilter/internal/filter/internal/cosmetic"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Filter contains the HTML-content rules and their exceptions.  An exception
// disables the rules with the identical body on its domains.
//
// A Filter is not safe for concurrent mutation.
type Filter struct {
	table *cosmetic.Table[*rule.ContentRule]
}

// New returns a new filter containing rules.
func New(rules []*rule.ContentRule) (f *Filter) {
	f = &Filter{
		table: cosmetic.NewTable((*rule.ContentRule).Body),
	}

	for _, r := range rules {
		f.table.AddRule(r)
	}

	return f
}

// AddRule adds r to f.
func (f *Filter) AddRule(r *rule.ContentRule) {
	f.table.AddRule(r)
}

// RemoveRule removes the rule equal to r from f.
func (f *Filter) RemoveRule(r *rule.ContentRule) {
	f.table.RemoveRule(r)
}

// Len returns the number of rules in f.
func (f *Filter) Len() (n int) {
	return f.table.Len()
}

// Rules returns all rules of f in the order they were added.
func (f *Filter) Rules() (rules []*rule.ContentRule) {
	return f.table.Rules()
}

// RulesForDomain returns the rules to apply on the pages of domain or nil if
// there are none.
func (f *Filter) RulesForDomain(domain string) (rules []*rule.ContentRule) {
	rules = f.table.FindRules(domain, false)
	if len(rules) == 0 {
		return nil
	}

	return rules
}

// Match returns the first of rules that matches el or nil if there is none.
func Match(rules []*rule.ContentRule, el *rule.Element) (r *rule.ContentRule) {
	for _, r = range rules {
		if r.MatchElement(el) {
			return r
		}
	}

	return nil
}
