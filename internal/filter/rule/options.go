package rule

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/filter"
)

// Option is a bitmask of the boolean options of a [URLRule].
type Option uint32

// Option values.
const (
	OptionThirdParty Option = 1 << iota
	OptionMatchCase
	OptionImportant
	OptionPopup
	OptionElemhide
	OptionGenerichide
	OptionJSInject
	OptionURLBlock
	OptionContent
	OptionStealth
	OptionCookie
	OptionCSP
	OptionReplace
	OptionRedirect

	// OptionDocumentWhitelist is the set of options enabled by $document in an
	// exception rule.
	OptionDocumentWhitelist = OptionElemhide |
		OptionGenerichide |
		OptionJSInject |
		OptionURLBlock |
		OptionContent

	// OptionWhitelistOnly is the set of options that may only be used in
	// exception rules.
	OptionWhitelistOnly = OptionDocumentWhitelist | OptionStealth

	// OptionBlacklistOnly is the set of options that may only be used in
	// blocking rules.
	OptionBlacklistOnly = OptionRedirect

	// optionDocumentScoped is the set of options that restrict a rule to the
	// document-like request types.
	optionDocumentScoped = OptionDocumentWhitelist | OptionPopup

	// optionSpecial is the set of options whose rules are not URL-blocking
	// rules and are indexed by the specialized filters.
	optionSpecial = OptionCookie | OptionCSP | OptionReplace
)

// optionNames maps the names of the boolean options to their values.
var optionNames = map[string]Option{
	"third-party": OptionThirdParty,
	"match-case":  OptionMatchCase,
	"important":   OptionImportant,
	"popup":       OptionPopup,
	"elemhide":    OptionElemhide,
	"generichide": OptionGenerichide,
	"jsinject":    OptionJSInject,
	"urlblock":    OptionURLBlock,
	"content":     OptionContent,
	"stealth":     OptionStealth,
	"cookie":      OptionCookie,
	"csp":         OptionCSP,
	"replace":     OptionReplace,
	"redirect":    OptionRedirect,
}

// errEmptyValue is returned when an option that requires a value has none.
const errEmptyValue errors.Error = "empty value"

// String implements the [fmt.Stringer] interface for Option.
func (opt Option) String() (s string) {
	var names []string
	for name, o := range optionNames {
		if opt&o != 0 {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return fmt.Sprintf("!bad_option_%d", uint32(opt))
	}

	slices.Sort(names)

	return strings.Join(names, ",")
}

// options is the intermediate result of parsing the option list of a URL rule.
type options struct {
	cookie          *CookieOption
	replace         *ReplaceOption
	domains         Domains
	csp             string
	redirect        string
	enabled         Option
	disabled        Option
	permittedTypes  filter.RequestType
	restrictedTypes filter.RequestType
}

// parseOptions parses the comma-separated options of a URL rule.
func parseOptions(s string, whitelist bool) (o *options, err error) {
	o = &options{}
	if s == "" {
		return o, nil
	}

	for _, opt := range splitEscaped(s, ',') {
		name, value, _ := strings.Cut(opt, "=")
		err = o.load(strings.TrimSpace(name), value, whitelist)
		if err != nil {
			return nil, err
		}
	}

	if o.enabled&optionDocumentScoped != 0 && o.permittedTypes == filter.TypeNone {
		o.permittedTypes = filter.TypeDocument | filter.TypeSubdocument
	}

	if o.enabled&OptionCSP != 0 && o.permittedTypes == filter.TypeNone {
		o.permittedTypes = filter.TypeDocument | filter.TypeSubdocument
	}

	return o, nil
}

// load loads a single option into o.
func (o *options) load(name, value string, whitelist bool) (err error) {
	negated := strings.HasPrefix(name, "~")
	plainName := strings.TrimPrefix(name, "~")

	if t, ok := filter.RequestTypeFromOption(plainName); ok {
		o.loadRequestType(plainName, t, negated, whitelist)

		return nil
	}

	switch name {
	case "first-party", "~third-party":
		return o.setOption(OptionThirdParty, false, whitelist)
	case "~first-party":
		return o.setOption(OptionThirdParty, true, whitelist)
	case "~match-case":
		return o.setOption(OptionMatchCase, false, whitelist)
	case "domain":
		o.domains, err = parseDomains(value, "|")
		if err != nil {
			return fmt.Errorf("domain option: %w", err)
		}

		return nil
	case "cookie":
		o.cookie, err = parseCookieOption(value)
		if err != nil {
			return fmt.Errorf("cookie option: %w", err)
		}

		return o.setOption(OptionCookie, true, whitelist)
	case "csp":
		if value == "" && !whitelist {
			return fmt.Errorf("csp option: %w", errEmptyValue)
		}

		o.csp = value

		return o.setOption(OptionCSP, true, whitelist)
	case "replace":
		if value != "" {
			o.replace, err = parseReplaceOption(value)
			if err != nil {
				return fmt.Errorf("replace option: %w", err)
			}
		} else if !whitelist {
			return fmt.Errorf("replace option: %w", errEmptyValue)
		}

		return o.setOption(OptionReplace, true, whitelist)
	case "redirect":
		if value == "" {
			return fmt.Errorf("redirect option: %w", errEmptyValue)
		}

		o.redirect = value

		return o.setOption(OptionRedirect, true, whitelist)
	}

	opt, ok := optionNames[plainName]
	if !ok || value != "" || opt&(optionSpecial|OptionRedirect) != 0 {
		return fmt.Errorf("unknown option %q: %w", name, ErrUnsupported)
	}

	return o.setOption(opt, !negated, whitelist)
}

// loadRequestType loads the request-type option name into o.  A $document
// option in an exception rule enables the whole document whitelist.
func (o *options) loadRequestType(name string, t filter.RequestType, negated, whitelist bool) {
	if name == "document" && whitelist && !negated {
		o.enabled |= OptionDocumentWhitelist
	}

	if negated {
		o.restrictedTypes |= t
	} else {
		o.permittedTypes |= t
	}
}

// setOption enables or disables opt, validating that it can be used with the
// kind of the rule.
func (o *options) setOption(opt Option, enabled, whitelist bool) (err error) {
	if whitelist && opt&OptionBlacklistOnly == opt {
		return fmt.Errorf("option %s cannot be used in an exception rule", opt)
	}

	if !whitelist && opt&OptionWhitelistOnly == opt {
		return fmt.Errorf("option %s cannot be used in a blocking rule", opt)
	}

	if enabled {
		o.enabled |= opt
	} else {
		o.disabled |= opt
	}

	return nil
}

// splitEscaped splits s by sep, ignoring separators escaped with a backslash.
// Escape characters before sep are removed.
func splitEscaped(s string, sep byte) (parts []string) {
	b := &strings.Builder{}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == sep:
			b.WriteByte(sep)
			i++
		case c == sep:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}

	return append(parts, b.String())
}
