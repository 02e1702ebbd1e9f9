// Package css contains the filter of the element-hiding and the CSS-injection
// rules.
package css

import (
	"strings"

	"github.com/advblocker/advfilter/internal/filter/internal/cosmetic"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// Options is a bitmask of the parts of the stylesheet to retrieve.
type Options uint8

// Options values.
//
// NOTE:  DO NOT change these as the browser-side adapter depends on these
// values.
const (
	// RetrieveTraditionalCSS means that the rules supported by the browser
	// natively are retrieved.
	RetrieveTraditionalCSS Options = 1 << iota

	// RetrieveExtCSS means that the rules evaluated by the extended-CSS
	// library of the content script are retrieved.
	RetrieveExtCSS

	// GenericHideApplied means that a $generichide exception applies to the
	// page, so only the domain-specific rules are retrieved.
	GenericHideApplied
)

// Default is the set of options used when the page has no exceptions.
const Default = RetrieveTraditionalCSS | RetrieveExtCSS

// chunkSize is the maximum number of selectors in a single style declaration.
// The browsers drop the whole declaration if any of its selectors is invalid,
// so the selectors are split into chunks.
const chunkSize = 50

// hideStyle is the declaration block that hides the selected elements.
const hideStyle = " { display: none!important; }"

// Selectors is the stylesheet for a page.
type Selectors struct {
	// CSS are the native style declarations.
	CSS []string `json:"css"`

	// ExtendedCSS are the declarations evaluated by the content script.
	ExtendedCSS []string `json:"extendedCss"`
}

// Filter contains the CSS rules and their exceptions.
//
// A Filter is not safe for concurrent mutation.
type Filter struct {
	table *cosmetic.Table[*rule.CSSRule]
}

// New returns a new filter containing rules.
func New(rules []*rule.CSSRule) (f *Filter) {
	f = &Filter{
		table: cosmetic.NewTable((*rule.CSSRule).Content),
	}

	for _, r := range rules {
		f.table.AddRule(r)
	}

	return f
}

// AddRule adds r to f.
func (f *Filter) AddRule(r *rule.CSSRule) {
	f.table.AddRule(r)
}

// RemoveRule removes the rule equal to r from f.
func (f *Filter) RemoveRule(r *rule.CSSRule) {
	f.table.RemoveRule(r)
}

// Len returns the number of rules in f.
func (f *Filter) Len() (n int) {
	return f.table.Len()
}

// Rules returns all rules of f in the order they were added.
func (f *Filter) Rules() (rules []*rule.CSSRule) {
	return f.table.Rules()
}

// BuildCSS returns the stylesheet for the pages of domain.
func (f *Filter) BuildCSS(domain string, opts Options) (s *Selectors) {
	s = &Selectors{
		CSS:         []string{},
		ExtendedCSS: []string{},
	}

	retrieveTraditional := opts&RetrieveTraditionalCSS != 0
	retrieveExt := opts&RetrieveExtCSS != 0
	if !retrieveTraditional && !retrieveExt {
		return s
	}

	var hide, extHide []string
	for _, r := range f.table.FindRules(domain, opts&GenericHideApplied != 0) {
		switch {
		case r.IsExtendedCSS() && !retrieveExt,
			!r.IsExtendedCSS() && !retrieveTraditional:
			continue
		case r.IsInjectStyle() && r.IsExtendedCSS():
			s.ExtendedCSS = append(s.ExtendedCSS, r.Content())
		case r.IsInjectStyle():
			s.CSS = append(s.CSS, r.Content())
		case r.IsExtendedCSS():
			extHide = append(extHide, r.Content())
		default:
			hide = append(hide, r.Content())
		}
	}

	s.CSS = append(s.CSS, hideDeclarations(hide)...)
	s.ExtendedCSS = append(s.ExtendedCSS, hideDeclarations(extHide)...)

	return s
}

// hideDeclarations returns the declarations hiding the elements matched by
// selectors, at most [chunkSize] selectors each.
func hideDeclarations(selectors []string) (decls []string) {
	for start := 0; start < len(selectors); start += chunkSize {
		end := min(start+chunkSize, len(selectors))
		decls = append(decls, strings.Join(selectors[start:end], ", ")+hideStyle)
	}

	return decls
}
