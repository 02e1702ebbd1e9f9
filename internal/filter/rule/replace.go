package rule

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
)

// ReplaceOption is the parsed value of the $replace option:
//
//	$replace=/regexp/replacement/flags
//
// The supported flags are "i" (case-insensitive) and "g" (replace every
// match).  Slashes inside the parts are escaped with a backslash.
type ReplaceOption struct {
	re          *regexp.Regexp
	text        string
	replacement string
	global      bool
}

// parseReplaceOption parses the value of the $replace option.
func parseReplaceOption(value string) (r *ReplaceOption, err error) {
	if !strings.HasPrefix(value, "/") {
		return nil, fmt.Errorf("value %q must start with a slash", value)
	}

	parts := splitEscaped(value[1:], '/')
	if len(parts) != 3 {
		return nil, fmt.Errorf("value %q must have three parts", value)
	}

	reText, flags := parts[0], parts[2]
	r = &ReplaceOption{
		text:        value,
		replacement: convertReplacement(parts[1]),
	}

	for _, f := range flags {
		switch f {
		case 'i':
			reText = "(?i)" + reText
		case 'g':
			r.global = true
		default:
			return nil, fmt.Errorf("unknown flag %q", f)
		}
	}

	r.re, err = regexp.Compile(reText)
	if err != nil {
		return nil, fmt.Errorf("compiling regexp: %w", err)
	}

	return r, nil
}

// Text returns the original value of the option.
func (r *ReplaceOption) Text() (s string) {
	return r.text
}

// Apply returns content with the replacements applied.
func (r *ReplaceOption) Apply(content string) (res string) {
	if r.global {
		return r.re.ReplaceAllString(content, r.replacement)
	}

	loc := r.re.FindStringSubmatchIndex(content)
	if loc == nil {
		return content
	}

	dst := r.re.ExpandString(nil, r.replacement, content, loc)

	return content[:loc[0]] + string(dst) + content[loc[1]:]
}

// convertReplacement converts the "$1"-style group references of the filter
// syntax into the "${1}" form understood by the regexp package.
func convertReplacement(s string) (conv string) {
	b := &strings.Builder{}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' || i+1 >= len(s) || s[i+1] < '0' || s[i+1] > '9' {
			b.WriteByte(c)

			continue
		}

		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}

		b.WriteString("${" + s[i+1:j] + "}")
		i = j - 1
	}

	return b.String()
}
