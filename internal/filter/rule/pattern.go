package rule

import (
	"fmt"
	"strings"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/grafana/regexp"
)

// Pattern mask and regular expression constants.
const (
	maskStartURL      = "||"
	maskPipe          = "|"
	maskSeparator     = '^'
	maskAnyCharacter  = '*'
	maskRegexBoundary = "/"

	regexAnyCharacter = ".*"
	regexSeparator    = `([^ a-zA-Z0-9.%_-]|$)`
	regexStartURL     = `^(http|https|ws|wss)://([a-z0-9_.-]+\.)?`
	regexEndString    = "$"
	regexStartString  = "^"
)

// ShortcutLength is the length of the shortcut windows used by the lookup
// tables.
const ShortcutLength = 5

// pattern is the compiled URL pattern of a [URLRule].
type pattern struct {
	// re is the compiled regular expression.  It is nil if the pattern matches
	// every URL or if it is a plain substring.
	re *regexp.Regexp

	// plain is the substring to look for in the URL, if the pattern has no
	// special characters.  It is lowercased unless the pattern is
	// case-sensitive.
	plain string

	// shortcut is the lowercased longest substring that every matching URL is
	// guaranteed to contain.
	shortcut string

	// text is the original pattern text.
	text string

	// matchAll is true if the pattern matches every URL.
	matchAll bool

	// matchCase is true if the pattern is case-sensitive.
	matchCase bool
}

// newPattern compiles the pattern text of a URL rule.
func newPattern(text string, matchCase bool) (p *pattern, err error) {
	p = &pattern{
		text:      text,
		matchCase: matchCase,
	}

	switch {
	case isMatchAllPattern(text):
		p.matchAll = true

		return p, nil
	case isRegexPattern(text):
		p.shortcut = findRegexpShortcut(text[1 : len(text)-1])
	case !strings.ContainsAny(text, "*^|"):
		p.plain = text
		if !matchCase {
			p.plain = strings.ToLower(text)
		}

		p.shortcut = strings.ToLower(text)

		return p, nil
	default:
		p.shortcut = findShortcut(text)
	}

	reText := patternToRegexp(text)
	if !matchCase {
		reText = "(?i)" + reText
	}

	p.re, err = regexp.Compile(reText)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}

	return p, nil
}

// match returns true if the pattern matches the URL of req.
func (p *pattern) match(req *filter.Request) (ok bool) {
	switch {
	case p.matchAll:
		return true
	case p.plain != "" && p.matchCase:
		return strings.Contains(req.URL, p.plain)
	case p.plain != "":
		return strings.Contains(req.URLLower, p.plain)
	default:
		return p.re.MatchString(req.URL)
	}
}

// isMatchAllPattern returns true if text matches every URL.
func isMatchAllPattern(text string) (ok bool) {
	switch text {
	case "", maskStartURL, maskPipe, string(maskAnyCharacter), "|*", "||*":
		return true
	default:
		return false
	}
}

// isRegexPattern returns true if text is a regular expression enclosed in
// slashes.
func isRegexPattern(text string) (ok bool) {
	return len(text) > 2 &&
		strings.HasPrefix(text, maskRegexBoundary) &&
		strings.HasSuffix(text, maskRegexBoundary)
}

// patternToRegexp converts the basic filter-list pattern syntax into a regular
// expression.
func patternToRegexp(text string) (re string) {
	if isMatchAllPattern(text) {
		return regexAnyCharacter
	}

	if isRegexPattern(text) {
		return text[1 : len(text)-1]
	}

	b := &strings.Builder{}
	rest := text
	if strings.HasPrefix(rest, maskStartURL) {
		b.WriteString(regexStartURL)
		rest = rest[len(maskStartURL):]
	} else if strings.HasPrefix(rest, maskPipe) {
		b.WriteString(regexStartString)
		rest = rest[len(maskPipe):]
	}

	endAnchor := strings.HasSuffix(rest, maskPipe)
	if endAnchor {
		rest = rest[:len(rest)-len(maskPipe)]
	}

	for i := range len(rest) {
		c := rest[i]
		switch c {
		case maskAnyCharacter:
			b.WriteString(regexAnyCharacter)
		case maskSeparator:
			b.WriteString(regexSeparator)
		case '.', '+', '?', '$', '{', '}', '(', ')', '[', ']', '\\', '|':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}

	if endAnchor {
		b.WriteString(regexEndString)
	}

	return b.String()
}

// findShortcut returns the lowercased longest part of a basic pattern that
// contains no special characters.
func findShortcut(text string) (shortcut string) {
	parts := strings.FieldsFunc(text, func(r rune) (ok bool) {
		return r == maskAnyCharacter || r == maskSeparator || r == '|'
	})

	for _, part := range parts {
		if len(part) > len(shortcut) {
			shortcut = part
		}
	}

	return strings.ToLower(shortcut)
}

// findRegexpShortcut returns the lowercased longest literal run of re that
// every match must contain.  It returns an empty string for expressions with
// alternations, since none of their literals is mandatory.
func findRegexpShortcut(re string) (shortcut string) {
	if strings.Contains(re, "|") {
		return ""
	}

	var longest string
	cur := make([]byte, 0, len(re))
	flush := func() {
		if len(cur) > len(longest) {
			longest = string(cur)
		}

		cur = cur[:0]
	}

	depth := 0
	for i := 0; i < len(re); i++ {
		c := re[i]
		if depth > 0 {
			i, depth = skipInGroup(re, i, depth)

			continue
		}

		switch c {
		case '\\':
			flush()
			i++
		case '[':
			flush()
			i = skipClass(re, i)
		case '(':
			flush()
			depth++
		case '?', '*':
			// The previous character is optional.
			cur = dropLast(cur)
			flush()
		case '{':
			cur = dropLast(cur)
			flush()
			if end := strings.IndexByte(re[i:], '}'); end != -1 {
				i += end
			}
		case '+', '.', ')', '^', '$':
			flush()
		default:
			cur = append(cur, c)
		}
	}

	flush()

	return strings.ToLower(longest)
}

// skipInGroup processes the character at index i of re while inside a group
// and returns the updated index and group depth.
func skipInGroup(re string, i, depth int) (next, newDepth int) {
	switch re[i] {
	case '\\':
		return i + 1, depth
	case '[':
		return skipClass(re, i), depth
	case '(':
		return i, depth + 1
	case ')':
		return i, depth - 1
	default:
		return i, depth
	}
}

// skipClass returns the index of the closing bracket of the character class
// that starts at index i of re.
func skipClass(re string, i int) (end int) {
	for end = i + 1; end < len(re); end++ {
		switch re[end] {
		case '\\':
			end++
		case ']':
			return end
		}
	}

	return end
}

// dropLast returns b without its last byte, if any.
func dropLast(b []byte) (res []byte) {
	if len(b) == 0 {
		return b
	}

	return b[:len(b)-1]
}
