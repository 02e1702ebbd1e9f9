// Package csp contains the filter of the $csp rules, which add the
// Content-Security-Policy headers to the responses of the matching pages.
package csp

import (
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/lookup"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// HeaderName is the name of the response header the directives are added to.
const HeaderName = "Content-Security-Policy"

// DefaultDirective is the directive added to the pages matched by a blocking
// $webrtc or $websocket rule.  It blocks WebSocket connections, data: and
// blob: frames, and web workers.
const DefaultDirective = "connect-src http: https:; frame-src http: https:; child-src http: https:"

// LegacyProbeURL is the URL checked against the URL-blocking rules with the
// [filter.TypeWebRTC] type to find the rules that predate the $csp option,
// such as "$webrtc,domain=example.org".
const LegacyProbeURL = "stun:advblockerwebrtc.check"

// Filter contains the $csp rules in two lookup tables, one for the blocking
// rules and one for the exceptions.
//
// A Filter is not safe for concurrent mutation.
type Filter struct {
	allow *lookup.Table
	block *lookup.Table
}

// New returns a new filter containing rules.  All rules must be $csp rules.
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

// FindCSPRules returns the rules deciding the directives for req, at most one
// per directive, or nil if no blocking rule matches.  Only the blocking rules
// in the result add their directives; the exceptions are returned to record
// which directives were suppressed.
//
// An exception with an empty directive suppresses all directives, and an
// exception with a directive suppresses the blocking rules with the same
// directive.  $important blocking rules are never suppressed.
func (f *Filter) FindCSPRules(req *filter.Request) (rules []*rule.URLRule) {
	blockRules := f.block.FindRules(req)
	if len(blockRules) == 0 {
		return nil
	}

	var common *rule.URLRule
	byDirective := map[string]*rule.URLRule{}
	for _, a := range f.allow.FindRules(req) {
		d := a.CSPDirective()
		if d == "" {
			if common == nil || a.IsImportant() && !common.IsImportant() {
				common = a
			}

			continue
		}

		if _, ok := byDirective[d]; !ok {
			byDirective[d] = a
		}
	}

	seen := map[string]struct{}{}
	for _, b := range blockRules {
		d := b.CSPDirective()
		if _, ok := seen[d]; ok {
			continue
		}

		seen[d] = struct{}{}
		rules = append(rules, selectRule(b, byDirective[d], common))
	}

	return compactExceptions(rules)
}

// selectRule returns the rule that decides whether the directive of the
// blocking rule b is applied.
func selectRule(b, allow, common *rule.URLRule) (r *rule.URLRule) {
	switch {
	case b.IsImportant():
		return b
	case common != nil:
		return common
	case allow != nil:
		return allow
	default:
		return b
	}
}

// compactExceptions removes the repeated exceptions from rules keeping the
// first one.
func compactExceptions(rules []*rule.URLRule) (res []*rule.URLRule) {
	res = rules[:0]
	seen := map[*rule.URLRule]struct{}{}
	for _, r := range rules {
		if !r.IsWhitelist() {
			res = append(res, r)

			continue
		}

		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			res = append(res, r)
		}
	}

	return res
}

// Directives returns the directives of the blocking rules among rules.
func Directives(rules []*rule.URLRule) (directives []string) {
	for _, r := range rules {
		if !r.IsWhitelist() {
			directives = append(directives, r.CSPDirective())
		}
	}

	return directives
}
