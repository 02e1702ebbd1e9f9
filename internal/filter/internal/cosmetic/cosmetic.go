// Package cosmetic contains the lookup table shared by the filters of the
// domain-limited cosmetic rules: the CSS and the HTML-content rules.
package cosmetic

import (
	"cmp"
	"slices"
	"strings"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Rule is the constraint for the rules stored in a [Table].
type Rule interface {
	rule.Rule

	// Domains returns the domains of the rule.
	Domains() (d rule.Domains)
}

// entry is a rule in a table with its insertion sequence number.
type entry[R Rule] struct {
	rule R
	seq  uint64
}

// Table is a lookup table of cosmetic rules grouped by their permitted
// domains.  The exceptions are grouped by the content the rules are compared
// by and are applied at lookup time.
//
// A Table is not safe for concurrent mutation.  [Table.FindRules] may be called
// concurrently as long as the table isn't being modified.
type Table[R Rule] struct {
	byHostname map[string][]entry[R]
	generic    []entry[R]
	whitelist  map[string][]entry[R]

	// wildcard are the rules with a permitted domain with a wildcard public
	// suffix, such as "example.*", which can't be found by the parent domains
	// of a host.
	wildcard []entry[R]

	// contentOf returns the content the exceptions are matched by.
	contentOf func(r R) (c string)

	keys    map[rule.Key]struct{}
	nextSeq uint64
}

// NewTable returns a new empty table.  contentOf must not be nil.
func NewTable[R Rule](contentOf func(r R) (c string)) (t *Table[R]) {
	return &Table[R]{
		byHostname: map[string][]entry[R]{},
		whitelist:  map[string][]entry[R]{},
		contentOf:  contentOf,
		keys:       map[rule.Key]struct{}{},
	}
}

// Len returns the number of rules in t.
func (t *Table[R]) Len() (n int) {
	return len(t.keys)
}

// AddRule adds r to t.  A rule equal to a rule in t is ignored.
func (t *Table[R]) AddRule(r R) {
	key := rule.KeyOf(r)
	if _, ok := t.keys[key]; ok {
		return
	}

	t.keys[key] = struct{}{}
	e := entry[R]{rule: r, seq: t.nextSeq}
	t.nextSeq++

	if r.IsWhitelist() {
		c := t.contentOf(r)
		t.whitelist[c] = append(t.whitelist[c], e)

		return
	}

	permitted := r.Domains().Permitted
	switch {
	case len(permitted) == 0:
		t.generic = append(t.generic, e)

		return
	case slices.ContainsFunc(permitted, isWildcard):
		t.wildcard = append(t.wildcard, e)

		return
	}

	for _, d := range permitted {
		t.byHostname[d] = append(t.byHostname[d], e)
	}
}

// RemoveRule removes the rule equal to r from t.
func (t *Table[R]) RemoveRule(r R) {
	key := rule.KeyOf(r)
	if _, ok := t.keys[key]; !ok {
		return
	}

	delete(t.keys, key)
	isKey := func(e entry[R]) (ok bool) { return rule.KeyOf(e.rule) == key }
	if r.IsWhitelist() {
		c := t.contentOf(r)
		t.whitelist[c] = slices.DeleteFunc(t.whitelist[c], isKey)
		if len(t.whitelist[c]) == 0 {
			delete(t.whitelist, c)
		}

		return
	}

	permitted := r.Domains().Permitted
	switch {
	case len(permitted) == 0:
		t.generic = slices.DeleteFunc(t.generic, isKey)

		return
	case slices.ContainsFunc(permitted, isWildcard):
		t.wildcard = slices.DeleteFunc(t.wildcard, isKey)

		return
	}

	for _, d := range permitted {
		t.byHostname[d] = slices.DeleteFunc(t.byHostname[d], isKey)
		if len(t.byHostname[d]) == 0 {
			delete(t.byHostname, d)
		}
	}
}

// FindRules returns the rules of t that apply on host and are not disabled by
// an exception, in the order they were added.  If genericHide is true, only the
// rules limited to specific domains are returned.
func (t *Table[R]) FindRules(host string, genericHide bool) (rules []R) {
	var found []entry[R]
	if !genericHide {
		for _, e := range t.generic {
			if t.isApplicable(e.rule, host) {
				found = append(found, e)
			}
		}
	}

	filter.ParentDomains(host, func(d string) (cont bool) {
		for _, e := range t.byHostname[d] {
			if t.isApplicable(e.rule, host) {
				found = append(found, e)
			}
		}

		return true
	})

	for _, e := range t.wildcard {
		if t.isApplicable(e.rule, host) {
			found = append(found, e)
		}
	}

	return sortedRules(found)
}

// sortedRules returns the rules of entries sorted by their sequence numbers
// without duplicates.  entries are modified.
func sortedRules[R Rule](entries []entry[R]) (rules []R) {
	slices.SortFunc(entries, func(a, b entry[R]) (res int) {
		return cmp.Compare(a.seq, b.seq)
	})
	entries = slices.CompactFunc(entries, func(a, b entry[R]) (ok bool) { return a.seq == b.seq })

	rules = make([]R, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, e.rule)
	}

	return rules
}

// isApplicable returns true if r applies on host and isn't disabled there by
// an exception.
func (t *Table[R]) isApplicable(r R, host string) (ok bool) {
	if !r.Domains().Match(host) {
		return false
	}

	for _, w := range t.whitelist[t.contentOf(r)] {
		if w.rule.Domains().Match(host) {
			return false
		}
	}

	return true
}

// isWildcard returns true if d is a domain with a wildcard public suffix.
func isWildcard(d string) (ok bool) {
	return strings.HasSuffix(d, ".*")
}

// Rules returns all rules of t in the order they were added.
func (t *Table[R]) Rules() (rules []R) {
	all := make([]entry[R], 0, t.Len())
	all = append(all, t.generic...)
	all = append(all, t.wildcard...)
	for _, entries := range t.byHostname {
		all = append(all, entries...)
	}

	for _, entries := range t.whitelist {
		all = append(all, entries...)
	}

	return sortedRules(all)
}
