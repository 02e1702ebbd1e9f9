package rule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/filter"
)

// cosmeticMarker describes one of the markers separating the domains of a
// cosmetic rule from its content.
type cosmeticMarker struct {
	text      string
	kind      Kind
	whitelist bool
	extended  bool
	style     bool
}

// cosmeticMarkers are all supported cosmetic markers, longest first, so that a
// marker that is a prefix of another one is never selected by mistake.
var cosmeticMarkers = []cosmeticMarker{{
	text:      "#@$?#",
	kind:      KindCSS,
	whitelist: true,
	extended:  true,
	style:     true,
}, {
	text:     "#$?#",
	kind:     KindCSS,
	extended: true,
	style:    true,
}, {
	text:      "#@?#",
	kind:      KindCSS,
	whitelist: true,
	extended:  true,
}, {
	text:      "#@$#",
	kind:      KindCSS,
	whitelist: true,
	style:     true,
}, {
	text:      "#@%#",
	kind:      KindScript,
	whitelist: true,
}, {
	text:     "#?#",
	kind:     KindCSS,
	extended: true,
}, {
	text:      "#@#",
	kind:      KindCSS,
	whitelist: true,
}, {
	text:  "#$#",
	kind:  KindCSS,
	style: true,
}, {
	text: "#%#",
	kind: KindScript,
}, {
	text:      "$@$",
	kind:      KindContent,
	whitelist: true,
}, {
	text: "##",
	kind: KindCSS,
}, {
	text: "$$",
	kind: KindContent,
}}

// findCosmeticMarker returns the position of the leftmost cosmetic marker in
// text and its description.  idx is -1 if there is none.
func findCosmeticMarker(text string) (idx int, m cosmeticMarker) {
	idx = -1
	for _, cm := range cosmeticMarkers {
		i := strings.Index(text, cm.text)
		if i != -1 && (idx == -1 || i < idx) {
			idx, m = i, cm
		}
	}

	return idx, m
}

// isDomainsPart returns true if s can be the domains part of a cosmetic rule.
// Rules with other characters there are URL rules that happen to contain a
// marker.
func isDomainsPart(s string) (ok bool) {
	return !strings.ContainsAny(s, "/|^$@#=&?:")
}

// extendedPseudoClasses are the pseudo-classes that can't be applied by the
// browser natively and require the extended CSS engine.
var extendedPseudoClasses = []string{
	"[-ext-",
	":-abp-contains(",
	":-abp-has(",
	":-abp-properties(",
	":contains(",
	":has(",
	":has-text(",
	":if(",
	":if-not(",
	":matches-css(",
	":matches-css-after(",
	":matches-css-before(",
	":nth-ancestor(",
	":properties(",
	":upward(",
	":xpath(",
}

// isExtendedSelector returns true if selector uses an extended pseudo-class.
func isExtendedSelector(selector string) (ok bool) {
	for _, pc := range extendedPseudoClasses {
		if strings.Contains(selector, pc) {
			return true
		}
	}

	return false
}

// CSSRule is an element-hiding rule or a CSS-injection rule.
type CSSRule struct {
	base

	domains Domains

	// content is the selector or, for style-injection rules, the whole CSS
	// declaration block.
	content string

	extended bool
	style    bool
}

// type check
var _ Rule = (*CSSRule)(nil)

// Kind implements the [Rule] interface for *CSSRule.
func (r *CSSRule) Kind() (k Kind) {
	return KindCSS
}

// Content returns the selector of an element-hiding rule or the CSS of a
// style-injection rule.
func (r *CSSRule) Content() (c string) {
	return r.content
}

// Domains returns the domains of r.  Callers must not modify the result.
func (r *CSSRule) Domains() (d Domains) {
	return r.domains
}

// IsExtendedCSS returns true if r requires the extended CSS engine.
func (r *CSSRule) IsExtendedCSS() (ok bool) {
	return r.extended
}

// IsInjectStyle returns true if r injects a style instead of hiding elements.
func (r *CSSRule) IsInjectStyle() (ok bool) {
	return r.style
}

// IsGeneric returns true if r applies on every domain not restricted by it.
func (r *CSSRule) IsGeneric() (ok bool) {
	return len(r.domains.Permitted) == 0
}

// ScriptRule is a JavaScript-injection rule.  Exceptions don't block anything,
// they stop the scripts with the identical body from running on their domains.
type ScriptRule struct {
	base

	domains Domains
	script  string
}

// type check
var _ Rule = (*ScriptRule)(nil)

// Kind implements the [Rule] interface for *ScriptRule.
func (r *ScriptRule) Kind() (k Kind) {
	return KindScript
}

// Script returns the script body of r.
func (r *ScriptRule) Script() (s string) {
	return r.script
}

// Domains returns the domains of r.  Callers must not modify the result.
func (r *ScriptRule) Domains() (d Domains) {
	return r.domains
}

// ContentAttribute is a single attribute condition of a [ContentRule].
type ContentAttribute struct {
	Name  string
	Value string
}

// Special attributes of content rules that don't correspond to HTML attributes.
const (
	attrTagContent = "tag-content"
	attrWildcard   = "wildcard"
	attrMaxLength  = "max-length"
	attrMinLength  = "min-length"
)

// ContentRule is an HTML filtering rule that removes elements from the response
// body, for example:
//
//	example.org$$script[tag-content="banner"][max-length="1000"]
type ContentRule struct {
	base

	domains    Domains
	body       string
	tagName    string
	tagContent string
	wildcard   string
	attributes []ContentAttribute
	maxLength  int
	minLength  int
}

// type check
var _ Rule = (*ContentRule)(nil)

// Kind implements the [Rule] interface for *ContentRule.
func (r *ContentRule) Kind() (k Kind) {
	return KindContent
}

// Domains returns the domains of r.  Callers must not modify the result.
func (r *ContentRule) Domains() (d Domains) {
	return r.domains
}

// Body returns the part of r after the marker.  Exceptions disable the rules
// with the identical body.
func (r *ContentRule) Body() (b string) {
	return r.body
}

// TagName returns the lowercased name of the HTML elements matched by r.
func (r *ContentRule) TagName() (n string) {
	return r.tagName
}

// Element is an HTML element considered for removal by content rules.
type Element struct {
	// Attributes are the attributes of the element.
	Attributes map[string]string

	// TagName is the lowercased tag name.
	TagName string

	// InnerHTML is the content of the element.
	InnerHTML string
}

// MatchElement returns true if el should be removed by r.
func (r *ContentRule) MatchElement(el *Element) (ok bool) {
	if el.TagName != r.tagName {
		return false
	}

	for _, a := range r.attributes {
		v, has := el.Attributes[a.Name]
		if !has || !strings.Contains(v, a.Value) {
			return false
		}
	}

	switch l := len(el.InnerHTML); {
	case r.maxLength > 0 && l > r.maxLength,
		r.minLength > 0 && l < r.minLength,
		r.tagContent != "" && !strings.Contains(el.InnerHTML, r.tagContent):
		return false
	case r.wildcard != "":
		return matchWildcard(el.InnerHTML, r.wildcard)
	default:
		return true
	}
}

// matchWildcard returns true if s contains the parts of the "*"-wildcard
// pattern in order.
func matchWildcard(s, pattern string) (ok bool) {
	for _, part := range strings.Split(pattern, "*") {
		i := strings.Index(s, part)
		if i == -1 {
			return false
		}

		s = s[i+len(part):]
	}

	return true
}

// newCosmeticRule parses a rule that contains the cosmetic marker m at index
// idx.
func newCosmeticRule(
	text string,
	idx int,
	m cosmeticMarker,
	listID filter.ListID,
) (r Rule, err error) {
	domainsPart, content := text[:idx], strings.TrimSpace(text[idx+len(m.text):])
	if content == "" {
		return nil, errors.Error("empty cosmetic rule content")
	}

	var d Domains
	if domainsPart != "" {
		d, err = parseDomains(domainsPart, ",")
		if err != nil {
			return nil, err
		}
	}

	if m.whitelist && len(d.Permitted) == 0 {
		return nil, errors.Error("cosmetic exception must have permitted domains")
	}

	b := base{
		text:      filter.RuleText(text),
		listID:    listID,
		whitelist: m.whitelist,
	}

	switch m.kind {
	case KindCSS:
		return newCSSRule(b, d, content, m)
	case KindScript:
		if strings.HasPrefix(content, "//scriptlet") {
			return nil, fmt.Errorf("scriptlets: %w", ErrUnsupported)
		}

		return &ScriptRule{base: b, domains: d, script: content}, nil
	case KindContent:
		return newContentRule(b, d, content)
	default:
		panic(fmt.Errorf("rule: unexpected cosmetic kind %s", m.kind))
	}
}

// newCSSRule returns a new CSS rule with the given content.
func newCSSRule(b base, d Domains, content string, m cosmeticMarker) (r *CSSRule, err error) {
	if m.style && !strings.HasSuffix(content, "}") {
		return nil, errors.Error("style rule must contain a declaration block")
	} else if !m.style && strings.ContainsAny(content, "{}") {
		return nil, errors.Error("selector must not contain braces")
	}

	return &CSSRule{
		base:     b,
		domains:  d,
		content:  content,
		extended: m.extended || isExtendedSelector(content),
		style:    m.style,
	}, nil
}

// newContentRule parses the content part of an HTML filtering rule.
func newContentRule(b base, d Domains, content string) (r *ContentRule, err error) {
	tagEnd := strings.IndexByte(content, '[')
	if tagEnd == -1 {
		tagEnd = len(content)
	}

	r = &ContentRule{
		base:    b,
		domains: d,
		body:    content,
		tagName: strings.ToLower(content[:tagEnd]),
	}

	if r.tagName == "" {
		return nil, errors.Error("empty tag name")
	}

	rest := content[tagEnd:]
	for rest != "" {
		var name, value string
		name, value, rest, err = cutContentAttribute(rest)
		if err != nil {
			return nil, err
		}

		err = r.setAttribute(name, value)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// setAttribute sets a special or an HTML attribute condition of r.
func (r *ContentRule) setAttribute(name, value string) (err error) {
	switch name {
	case attrTagContent:
		r.tagContent = value
	case attrWildcard:
		r.wildcard = value
	case attrMaxLength:
		r.maxLength, err = strconv.Atoi(value)
	case attrMinLength:
		r.minLength, err = strconv.Atoi(value)
	default:
		r.attributes = append(r.attributes, ContentAttribute{
			Name:  strings.ToLower(name),
			Value: value,
		})
	}

	if err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}

	return nil
}

// cutContentAttribute cuts the leading [name="value"] attribute from s.  Double
// quotes inside the value are escaped by doubling them.
func cutContentAttribute(s string) (name, value, rest string, err error) {
	if !strings.HasPrefix(s, "[") {
		return "", "", "", fmt.Errorf("bad attribute at %q", s)
	}

	eq := strings.Index(s, `="`)
	if eq == -1 {
		return "", "", "", fmt.Errorf("bad attribute at %q", s)
	}

	name = s[1:eq]
	b := &strings.Builder{}
	for i := eq + 2; i < len(s); i++ {
		if s[i] != '"' {
			b.WriteByte(s[i])

			continue
		}

		if i+1 < len(s) && s[i+1] == '"' {
			b.WriteByte('"')
			i++

			continue
		}

		if i+1 >= len(s) || s[i+1] != ']' {
			return "", "", "", fmt.Errorf("unterminated attribute %q", name)
		}

		return name, b.String(), s[i+2:], nil
	}

	return "", "", "", fmt.Errorf("unterminated attribute %q", name)
}
