package rule

import (
	"net/netip"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/filter"
)

// Rule syntax markers.
const (
	maskWhitelist     = "@@"
	optionsDelimiter  = '$'
	escapeCharacter   = '\\'
	replaceOptionName = "replace"
)

// New parses a single line of a filter list.  r and err are both nil if text
// is an empty line, a comment, or a hosts-file entry for a local name.  err is
// a *SyntaxError if text cannot be parsed.
func New(text string, listID filter.ListID) (r Rule, err error) {
	text = strings.TrimSpace(text)
	if isComment(text) {
		return nil, nil
	}

	defer func() {
		if err != nil {
			err = &SyntaxError{Err: err, Text: text}
		}
	}()

	if host, ok := hostsLineHost(text); ok {
		if host == "" {
			return nil, nil
		}

		return newURLRule(text, maskStartURL+host+string(maskSeparator), listID)
	}

	if idx, m := findCosmeticMarker(text); idx != -1 && isDomainsPart(text[:idx]) {
		return newCosmeticRule(text, idx, m, listID)
	}

	return newURLRule(text, text, listID)
}

// NewURLRule parses text as a URL rule.  It is used by the components that
// synthesize rules, such as the stealth mode and the whitelist.
func NewURLRule(text string, listID filter.ListID) (r *URLRule, err error) {
	r, err = newURLRule(text, text, listID)
	if err != nil {
		return nil, &SyntaxError{Err: err, Text: text}
	}

	return r, nil
}

// MustNewURLRule is like [NewURLRule] but panics on errors.
func MustNewURLRule(text string, listID filter.ListID) (r *URLRule) {
	return errors.Must(NewURLRule(text, listID))
}

// isComment returns true if text is an empty line, a comment, or a filter-list
// header.
func isComment(text string) (ok bool) {
	switch {
	case text == "", text == "#":
		return true
	case strings.HasPrefix(text, "!"),
		strings.HasPrefix(text, "# "),
		strings.HasPrefix(text, "#\t"),
		strings.HasPrefix(text, "[Adblock"):
		return true
	default:
		return false
	}
}

// localHostnames are the names that hosts files map to the loopback and
// unspecified addresses for the system itself.
var localHostnames = map[string]struct{}{
	"0.0.0.0":               {},
	"broadcasthost":         {},
	"ip6-allnodes":          {},
	"ip6-allrouters":        {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"local":                 {},
	"localhost":             {},
	"localhost.localdomain": {},
}

// hostsLineHost returns the hostname of a hosts-file line that maps a hostname
// to a blocking address.  ok is false if text isn't such a line.  host is empty
// if the line maps a local name.
func hostsLineHost(text string) (host string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", false
	}

	ip, err := netip.ParseAddr(fields[0])
	if err != nil || !(ip.IsLoopback() || ip.IsUnspecified()) {
		return "", false
	}

	host = strings.ToLower(fields[1])
	if _, isLocal := localHostnames[host]; isLocal {
		return "", true
	}

	return host, true
}

// newURLRule parses a URL rule.  text is the original text of the rule and
// ruleText is the text to parse, which differs from text for the converted
// hosts-file lines.
func newURLRule(text, ruleText string, listID filter.ListID) (r *URLRule, err error) {
	patternText, optionsText, whitelist, err := splitRuleText(ruleText)
	if err != nil {
		return nil, err
	}

	o, err := parseOptions(optionsText, whitelist)
	if err != nil {
		return nil, err
	}

	if isMatchAllPattern(patternText) &&
		o.enabled == 0 &&
		o.disabled == 0 &&
		o.domains.IsEmpty() &&
		o.permittedTypes == filter.TypeNone &&
		o.restrictedTypes == filter.TypeNone {
		return nil, ErrTooWide
	}

	p, err := newPattern(patternText, o.enabled&OptionMatchCase != 0)
	if err != nil {
		return nil, err
	}

	return &URLRule{
		base: base{
			text:      filter.RuleText(text),
			listID:    listID,
			whitelist: whitelist,
		},
		pattern:         p,
		cookie:          o.cookie,
		replace:         o.replace,
		domains:         o.domains,
		csp:             o.csp,
		redirect:        o.redirect,
		enabled:         o.enabled,
		disabled:        o.disabled,
		permittedTypes:  o.permittedTypes,
		restrictedTypes: o.restrictedTypes,
	}, nil
}

// splitRuleText splits the text of a URL rule into the pattern and the
// options.  The options are separated from the pattern by the last unescaped
// "$", which isn't looked for in regular-expression patterns unless they have
// the $replace option.
func splitRuleText(text string) (pattern, opts string, whitelist bool, err error) {
	start := 0
	if strings.HasPrefix(text, maskWhitelist) {
		whitelist = true
		start = len(maskWhitelist)
	}

	if len(text) <= start {
		return "", "", false, errors.Error("the rule is too short")
	}

	pattern = text[start:]
	if isRegexPattern(pattern) && !strings.Contains(pattern, replaceOptionName+"=") {
		return pattern, "", whitelist, nil
	}

	// The value of $replace may contain "$" itself, so the delimiter is looked
	// for before it.
	end := len(text) - 2
	if ri := strings.Index(text, replaceOptionName+"="); ri > start {
		end = ri - 1
	}

	foundEscaped := false
	for i := end; i >= start; i-- {
		if text[i] != optionsDelimiter {
			continue
		}

		if i > start && text[i-1] == escapeCharacter {
			foundEscaped = true

			continue
		}

		pattern, opts = text[start:i], text[i+1:]
		if foundEscaped {
			opts = strings.ReplaceAll(opts, `\$`, "$")
		}

		break
	}

	return pattern, opts, whitelist, nil
}
