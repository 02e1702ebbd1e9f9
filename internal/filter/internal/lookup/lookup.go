// Package lookup contains the rule index used to quickly find the URL rules
// that could match a request.
package lookup

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/bits-and-blooms/bloom/v3"
)

// Bloom filter parameters for the domain table.
const (
	bloomMinCapacity = 1024
	bloomFPRate      = 0.01
)

// entry is a rule in one of the buckets of a table.
type entry struct {
	rule *rule.URLRule

	// seq is the insertion sequence number of the rule.  It's used to return
	// the found rules in the insertion order.
	seq uint64
}

// placementKind is the kind of the bucket a rule is put in.
type placementKind uint8

// placementKind values.
const (
	placementShortcut placementKind = iota + 1
	placementDomains
	placementGeneric
)

// placement describes where a rule is stored in a table.
type placement struct {
	kind     placementKind
	shortcut uint32
}

// Table is an index of URL rules.  Rules are put into one of three partitions:
//
//   - The shortcut table, keyed by the hash of a fixed-length window of the
//     rule's shortcut, for rules with a long enough shortcut.  The least-used
//     window is selected for every rule.
//
//   - The domain table, keyed by each permitted domain, for rules without a
//     shortcut that are limited to source domains.  A bloom filter guards the
//     probes of the domain table.
//
//   - The generic list for all other rules.
//
// The index may return false-positive candidates, which are removed by the full
// match, but never misses a matching rule.
//
// A Table is not safe for concurrent mutation.  [Table.FindRules] may be called
// concurrently as long as the table isn't being modified.
type Table struct {
	shortcuts  map[uint32][]entry
	histogram  map[uint32]int
	domains    map[string][]entry
	domainsBF  *bloom.BloomFilter
	placements map[rule.Key]placement
	generic    []entry

	// nextSeq is the sequence number of the next added rule.
	nextSeq uint64

	// domainKeys is the number of keys added to domainsBF.
	domainKeys uint
	bfCapacity uint
}

// New returns a new empty table.
func New() (t *Table) {
	return &Table{
		shortcuts:  map[uint32][]entry{},
		histogram:  map[uint32]int{},
		domains:    map[string][]entry{},
		domainsBF:  bloom.NewWithEstimates(bloomMinCapacity, bloomFPRate),
		placements: map[rule.Key]placement{},
		bfCapacity: bloomMinCapacity,
	}
}

// NewWithRules returns a new table containing rules.
func NewWithRules(rules []*rule.URLRule) (t *Table) {
	t = New()
	t.AddRules(rules)

	return t
}

// Len returns the number of rules in t.
func (t *Table) Len() (n int) {
	return len(t.placements)
}

// AddRules adds every rule to t.
func (t *Table) AddRules(rules []*rule.URLRule) {
	for _, r := range rules {
		t.AddRule(r)
	}
}

// AddRule adds r to t.  A rule with the same text from the same list as a rule
// in t is ignored.
func (t *Table) AddRule(r *rule.URLRule) {
	key := rule.KeyOf(r)
	if _, ok := t.placements[key]; ok {
		return
	}

	e := entry{
		rule: r,
		seq:  t.nextSeq,
	}
	t.nextSeq++

	if hash, ok := t.addToShortcuts(e); ok {
		t.placements[key] = placement{kind: placementShortcut, shortcut: hash}
	} else if t.addToDomains(e) {
		t.placements[key] = placement{kind: placementDomains}
	} else {
		t.generic = append(t.generic, e)
		t.placements[key] = placement{kind: placementGeneric}
	}
}

// addToShortcuts adds e to the shortcut table using the least-used window of
// its shortcut.  ok is false if the rule has no usable shortcut.
func (t *Table) addToShortcuts(e entry) (hash uint32, ok bool) {
	shortcut := e.rule.Shortcut()
	if len(shortcut) < rule.ShortcutLength || isAnyURLShortcut(shortcut) {
		return 0, false
	}

	minCount := math.MaxInt
	for i := 0; i <= len(shortcut)-rule.ShortcutLength; i++ {
		h := djb2Hash(shortcut[i : i+rule.ShortcutLength])
		if count := t.histogram[h]; count < minCount {
			minCount, hash = count, h
		}
	}

	t.histogram[hash] = minCount + 1
	t.shortcuts[hash] = append(t.shortcuts[hash], e)

	return hash, true
}

// addToDomains adds e to the domain table under each of its permitted domains.
// ok is false if the rule has no permitted domains or if any of them is a
// wildcard one.
func (t *Table) addToDomains(e entry) (ok bool) {
	permitted := e.rule.Domains().Permitted
	if len(permitted) == 0 {
		return false
	}

	for _, d := range permitted {
		if strings.Contains(d, "*") {
			return false
		}
	}

	for _, d := range permitted {
		t.domains[d] = append(t.domains[d], e)
		t.addDomainKey(d)
	}

	return true
}

// addDomainKey adds d to the bloom filter, rebuilding it with a larger capacity
// when it becomes too full to keep the false-positive rate.
func (t *Table) addDomainKey(d string) {
	t.domainsBF.AddString(d)
	t.domainKeys++
	if t.domainKeys <= t.bfCapacity {
		return
	}

	t.bfCapacity *= 2
	t.domainsBF = bloom.NewWithEstimates(t.bfCapacity, bloomFPRate)
	t.domainKeys = 0
	for key := range t.domains {
		t.domainsBF.AddString(key)
		t.domainKeys++
	}
}

// RemoveRule removes the rule equal to r, if any, from t.
func (t *Table) RemoveRule(r *rule.URLRule) {
	key := rule.KeyOf(r)
	p, ok := t.placements[key]
	if !ok {
		return
	}

	delete(t.placements, key)

	isKey := func(e entry) (ok bool) { return rule.KeyOf(e.rule) == key }
	switch p.kind {
	case placementShortcut:
		t.shortcuts[p.shortcut] = slices.DeleteFunc(t.shortcuts[p.shortcut], isKey)
		if len(t.shortcuts[p.shortcut]) == 0 {
			delete(t.shortcuts, p.shortcut)
		}

		t.histogram[p.shortcut]--
		if t.histogram[p.shortcut] <= 0 {
			delete(t.histogram, p.shortcut)
		}
	case placementDomains:
		for _, d := range r.Domains().Permitted {
			t.domains[d] = slices.DeleteFunc(t.domains[d], isKey)
			if len(t.domains[d]) == 0 {
				delete(t.domains, d)
			}
		}
	case placementGeneric:
		t.generic = slices.DeleteFunc(t.generic, isKey)
	default:
		panic(fmt.Errorf("lookup: bad placement kind %d", p.kind))
	}
}

// FindRules returns all rules in t matching req, in the order they were added.
func (t *Table) FindRules(req *filter.Request) (rules []*rule.URLRule) {
	var found []entry
	found = t.matchShortcuts(req, found)
	found = t.matchDomains(req, found)
	for _, e := range t.generic {
		if e.rule.Match(req) {
			found = append(found, e)
		}
	}

	if len(found) == 0 {
		return nil
	}

	slices.SortFunc(found, compareSeq)

	// Rules from the domain table may be found under several domains.
	found = slices.CompactFunc(found, func(a, b entry) (ok bool) { return a.seq == b.seq })

	rules = make([]*rule.URLRule, 0, len(found))
	for _, e := range found {
		rules = append(rules, e.rule)
	}

	return rules
}

// caseFolder maps the non-ASCII runes that case-insensitive regular expressions
// consider equal to ASCII letters.  strings.ToLower keeps U+017F as is.
var caseFolder = strings.NewReplacer("\u017f", "s", "\u212a", "k")

// foldURL returns the lowercased URL u with the runes that fold to ASCII
// letters replaced by these letters, so that the shortcuts of the
// case-insensitive rules are found in it.
func foldURL(u string) (folded string) {
	if !strings.ContainsRune(u, '\u017f') && !strings.ContainsRune(u, '\u212a') {
		return u
	}

	return caseFolder.Replace(u)
}

// matchShortcuts appends the rules from the shortcut table that match req to
// found.
func (t *Table) matchShortcuts(req *filter.Request, found []entry) (res []entry) {
	res = found
	u := foldURL(req.URLLower)
	if len(t.shortcuts) == 0 || len(u) < rule.ShortcutLength {
		return res
	}

	var seen []uint32
	for i := 0; i <= len(u)-rule.ShortcutLength; i++ {
		h := djb2Hash(u[i : i+rule.ShortcutLength])
		bucket, ok := t.shortcuts[h]
		if !ok || slices.Contains(seen, h) {
			continue
		}

		seen = append(seen, h)
		for _, e := range bucket {
			if e.rule.Match(req) {
				res = append(res, e)
			}
		}
	}

	return res
}

// matchDomains appends the rules from the domain table that match req to
// found.
func (t *Table) matchDomains(req *filter.Request, found []entry) (res []entry) {
	res = found
	if len(t.domains) == 0 || req.SourceHostname == "" {
		return res
	}

	filter.ParentDomains(req.SourceHostname, func(d string) (cont bool) {
		if !t.domainsBF.TestString(d) {
			return true
		}

		for _, e := range t.domains[d] {
			if e.rule.Match(req) {
				res = append(res, e)
			}
		}

		return true
	})

	return res
}

// Rules returns all rules in t in the order they were added.
func (t *Table) Rules() (rules []*rule.URLRule) {
	all := make([]entry, 0, len(t.placements))
	all = append(all, t.generic...)
	for _, bucket := range t.shortcuts {
		all = append(all, bucket...)
	}

	for _, bucket := range t.domains {
		all = append(all, bucket...)
	}

	slices.SortFunc(all, compareSeq)
	all = slices.CompactFunc(all, func(a, b entry) (ok bool) { return a.seq == b.seq })

	rules = make([]*rule.URLRule, 0, len(all))
	for _, e := range all {
		rules = append(rules, e.rule)
	}

	return rules
}

// compareSeq compares the entries by their insertion sequence numbers.
func compareSeq(a, b entry) (res int) {
	return cmp.Compare(a.seq, b.seq)
}

// isAnyURLShortcut returns true if the shortcut is only a scheme prefix that
// almost every URL contains.
func isAnyURLShortcut(s string) (ok bool) {
	switch {
	case len(s) < 6 && strings.HasPrefix(s, "ws:"),
		len(s) < 7 && strings.HasPrefix(s, "|ws"),
		len(s) < 9 && strings.HasPrefix(s, "http"),
		len(s) < 10 && strings.HasPrefix(s, "|http"):
		return true
	default:
		return false
	}
}

// djb2Hash returns the djb2 hash of s.
func djb2Hash(s string) (h uint32) {
	h = 5381
	for i := range len(s) {
		h = (h * 33) ^ uint32(s[i])
	}

	return h
}
