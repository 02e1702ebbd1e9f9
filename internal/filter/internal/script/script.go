// Package script contains the filter of the JavaScript-injection rules.
package script

import (
	"maps"
	"slices"
	"strings"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Source is the origin of an injected script.
type Source string

// Source values.
const (
	// SourceLocal is the source of the scripts from the built-in and the
	// user's filter lists.
	SourceLocal Source = "local"

	// SourceRemote is the source of the scripts from the custom filter lists
	// added by URL.  Such scripts may be treated with less trust by the
	// browser-side adapter.
	SourceRemote Source = "remote"
)

// Result is a single script to inject into a page.
type Result struct {
	// Rule is the rule the script comes from.
	Rule *rule.ScriptRule

	// ScriptSource is the origin of the script.
	ScriptSource Source

	// Script is the rendered script body.
	Script string
}

// scriptEntry is a non-exception script rule along with the domains removed
// from it by the exceptions.
type scriptEntry struct {
	rule *rule.ScriptRule

	// restricted maps the domains on which the script must not run to the
	// number of exceptions that restrict it, so that removing an exception
	// restores exactly the state before the exception was added.
	restricted map[string]uint
}

// isPermitted returns true if the script of e may run on the pages of domain.
func (e *scriptEntry) isPermitted(domain string) (ok bool) {
	if !e.rule.Domains().Match(domain) {
		return false
	}

	for d := range e.restricted {
		if filter.MatchDomain(domain, d) {
			return false
		}
	}

	return true
}

// restrict adds the domains to the restricted ones of e.
func (e *scriptEntry) restrict(domains []string) {
	for _, d := range domains {
		e.restricted[d]++
	}
}

// unrestrict removes the domains previously added by [scriptEntry.restrict].
func (e *scriptEntry) unrestrict(domains []string) {
	for _, d := range domains {
		switch n := e.restricted[d]; n {
		case 0:
			// Not restricted.
		case 1:
			delete(e.restricted, d)
		default:
			e.restricted[d] = n - 1
		}
	}
}

// Filter contains the JavaScript-injection rules and their exceptions.  The
// exceptions are applied when rules are added and removed, not when the
// scripts are built.
//
// A Filter is not safe for concurrent mutation.
type Filter struct {
	scripts    []*scriptEntry
	exceptions []*rule.ScriptRule
}

// New returns a new filter containing rules.
func New(rules []*rule.ScriptRule) (f *Filter) {
	f = &Filter{}
	for _, r := range rules {
		f.AddRule(r)
	}

	return f
}

// AddRule adds r to f.  An exception restricts the domains of the scripts with
// the identical body, and a script is restricted by the existing exceptions
// with the identical body.
func (f *Filter) AddRule(r *rule.ScriptRule) {
	if r.IsWhitelist() {
		f.exceptions = append(f.exceptions, r)
		for _, e := range f.scripts {
			if e.rule.Script() == r.Script() {
				e.restrict(r.Domains().Permitted)
			}
		}

		return
	}

	e := &scriptEntry{
		rule:       r,
		restricted: map[string]uint{},
	}

	for _, exc := range f.exceptions {
		if exc.Script() == r.Script() {
			e.restrict(exc.Domains().Permitted)
		}
	}

	f.scripts = append(f.scripts, e)
}

// RemoveRule removes the rule equal to r from f.  Removing an exception
// restores the domains it restricted.
func (f *Filter) RemoveRule(r *rule.ScriptRule) {
	key := rule.KeyOf(r)
	if !r.IsWhitelist() {
		f.scripts = slices.DeleteFunc(f.scripts, func(e *scriptEntry) (ok bool) {
			return rule.KeyOf(e.rule) == key
		})

		return
	}

	i := slices.IndexFunc(f.exceptions, func(exc *rule.ScriptRule) (ok bool) {
		return rule.KeyOf(exc) == key
	})
	if i == -1 {
		return
	}

	exc := f.exceptions[i]
	f.exceptions = slices.Delete(f.exceptions, i, i+1)
	for _, e := range f.scripts {
		if e.rule.Script() == exc.Script() {
			e.unrestrict(exc.Domains().Permitted)
		}
	}
}

// Len returns the number of rules in f.
func (f *Filter) Len() (n int) {
	return len(f.scripts) + len(f.exceptions)
}

// Rules returns the scripts followed by the exceptions of f.
func (f *Filter) Rules() (rules []*rule.ScriptRule) {
	rules = make([]*rule.ScriptRule, 0, f.Len())
	for _, e := range f.scripts {
		rules = append(rules, e.rule)
	}

	return append(rules, f.exceptions...)
}

// RestrictedDomains returns the domains on which the script rule equal to r is
// not allowed to run because of the exceptions, sorted.
func (f *Filter) RestrictedDomains(r *rule.ScriptRule) (domains []string) {
	key := rule.KeyOf(r)
	for _, e := range f.scripts {
		if rule.KeyOf(e.rule) == key {
			return slices.Sorted(maps.Keys(e.restricted))
		}
	}

	return nil
}

// BuildScript returns the scripts to inject into the pages of domain in the
// order the rules were added.  If debug is true, the errors of the scripts are
// logged to the browser console.
func (f *Filter) BuildScript(domain string, debug bool) (results []Result) {
	for _, e := range f.scripts {
		if !e.isPermitted(domain) {
			continue
		}

		results = append(results, Result{
			Rule:         e.rule,
			ScriptSource: sourceOf(e.rule),
			Script:       render(e.rule.Script(), debug),
		})
	}

	return results
}

// sourceOf returns the source of the script of r.
func sourceOf(r *rule.ScriptRule) (src Source) {
	if r.ListID().IsCustom() {
		return SourceRemote
	}

	return SourceLocal
}

// render wraps the script body so that an error in one script doesn't stop
// the others.
func render(body string, debug bool) (s string) {
	b := &strings.Builder{}
	b.WriteString("try {\n")
	b.WriteString(body)
	b.WriteString("\n} catch (ex) {")
	if debug {
		b.WriteString(" console.error('Error executing AdvFilter js: ' + ex);")
	}

	b.WriteString(" }")

	return b.String()
}
