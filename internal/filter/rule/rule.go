// Package rule contains the types of the filtering rules and the parser of the
// filter-list rule syntax.
//
// All rules are immutable once constructed and are safe for concurrent use.
package rule

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/filter"
)

// Kind is the discriminant of the [Rule] sum type.
type Kind uint8

// Kind values.
const (
	KindURL Kind = iota + 1
	KindCSS
	KindScript
	KindContent
)

// String implements the [fmt.Stringer] interface for Kind.
func (k Kind) String() (s string) {
	switch k {
	case KindURL:
		return "url"
	case KindCSS:
		return "css"
	case KindScript:
		return "script"
	case KindContent:
		return "content"
	default:
		return fmt.Sprintf("!bad_kind_%d", uint8(k))
	}
}

// Rule is the sum type of all filtering rules.  The implementations are:
//   - [*ContentRule]
//   - [*CSSRule]
//   - [*ScriptRule]
//   - [*URLRule]
type Rule interface {
	// Kind returns the discriminant of the rule.
	Kind() (k Kind)

	// Text returns the original text of the rule.
	Text() (t filter.RuleText)

	// ListID returns the ID of the filter list the rule belongs to.
	ListID() (id filter.ListID)

	// IsWhitelist returns true if the rule is an exception rule.
	IsWhitelist() (ok bool)

	// isRule is a marker method.
	isRule()
}

// Key is the identity of a rule used for deduplication and removal.  Two rules
// with the same text from the same filter list are considered equal.
type Key struct {
	Text   filter.RuleText
	ListID filter.ListID
}

// KeyOf returns the key of r.  r must not be nil.
func KeyOf(r Rule) (k Key) {
	return Key{
		Text:   r.Text(),
		ListID: r.ListID(),
	}
}

// Errors returned by the parser.
const (
	// ErrTooWide is returned when a rule would match every request without any
	// constraining options.
	ErrTooWide errors.Error = "the rule is too wide"

	// ErrUnsupported is returned for rules that use syntax that is
	// recognized but not supported.
	ErrUnsupported errors.Error = "unsupported rule"
)

// SyntaxError describes a rule that could not be parsed.
type SyntaxError struct {
	// Err is the underlying error.
	Err error

	// Text is the text of the bad rule.
	Text string
}

// type check
var _ error = (*SyntaxError)(nil)

// Error implements the error interface for *SyntaxError.
func (err *SyntaxError) Error() (msg string) {
	return fmt.Sprintf("rule %q: %s", err.Text, err.Err)
}

// type check
var _ errors.Wrapper = (*SyntaxError)(nil)

// Unwrap implements the [errors.Wrapper] interface for *SyntaxError.
func (err *SyntaxError) Unwrap() (unwrapped error) {
	return err.Err
}

// base contains the data common to all rule kinds.
type base struct {
	text      filter.RuleText
	listID    filter.ListID
	whitelist bool
}

// Text implements the [Rule] interface for *base.
func (b *base) Text() (t filter.RuleText) {
	return b.text
}

// ListID implements the [Rule] interface for *base.
func (b *base) ListID() (id filter.ListID) {
	return b.listID
}

// IsWhitelist implements the [Rule] interface for *base.
func (b *base) IsWhitelist() (ok bool) {
	return b.whitelist
}

// isRule implements the [Rule] interface for *base.
func (*base) isRule() {}

// String implements the [fmt.Stringer] interface for *base.
func (b *base) String() (s string) {
	return string(b.text)
}
