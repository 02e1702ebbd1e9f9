package rule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grafana/regexp"
)

// SameSite is the value of the sameSite parameter of the $cookie option.
type SameSite string

// SameSite values.
const (
	SameSiteNone   SameSite = ""
	SameSiteLax    SameSite = "lax"
	SameSiteStrict SameSite = "strict"
)

// CookieOption is the parsed value of the $cookie option:
//
//	$cookie[=name|/regexp/][;maxAge=seconds][;sameSite=lax|strict]
type CookieOption struct {
	// Regexp is the compiled regular expression of the cookie name.  It is nil
	// if the option matches cookies by exact name.
	Regexp *regexp.Regexp

	// Name is the exact name of the cookie.  It is empty if the option uses a
	// regular expression or matches every cookie.
	Name string

	// RegexpText is the source text of Regexp, used to compare the options of
	// blocking and exception rules.
	RegexpText string

	// SameSite is the value to set on the modified cookies.
	SameSite SameSite

	// MaxAge is the maximum lifetime of the modified cookies, in seconds.  Zero
	// means that the cookie is removed instead.
	MaxAge int
}

// parseCookieOption parses the value of the $cookie option.
func parseCookieOption(value string) (c *CookieOption, err error) {
	c = &CookieOption{}
	if value == "" {
		return c, nil
	}

	parts := strings.Split(value, ";")
	name := parts[0]
	if isRegexPattern(name) {
		c.RegexpText = name[1 : len(name)-1]
		c.Regexp, err = regexp.Compile(c.RegexpText)
		if err != nil {
			return nil, fmt.Errorf("bad cookie name regexp: %w", err)
		}
	} else {
		c.Name = name
	}

	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("bad cookie parameter %q", p)
		}

		switch strings.ToLower(strings.TrimSpace(k)) {
		case "maxage":
			c.MaxAge, err = strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("bad maxAge: %w", err)
			} else if c.MaxAge < 0 {
				return nil, fmt.Errorf("bad maxAge %d: must not be negative", c.MaxAge)
			}
		case "samesite":
			c.SameSite, err = parseSameSite(v)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown cookie parameter %q", k)
		}
	}

	return c, nil
}

// parseSameSite parses a sameSite parameter value.
func parseSameSite(v string) (s SameSite, err error) {
	switch s = SameSite(strings.ToLower(strings.TrimSpace(v))); s {
	case SameSiteLax, SameSiteStrict:
		return s, nil
	default:
		return SameSiteNone, fmt.Errorf("bad sameSite value %q", v)
	}
}

// IsEmpty returns true if the option matches every cookie and has no
// parameters.
func (c *CookieOption) IsEmpty() (ok bool) {
	return c.Name == "" && c.Regexp == nil
}

// Matches returns true if the cookie with the given name is matched by c.  An
// empty option matches every cookie.
func (c *CookieOption) Matches(name string) (ok bool) {
	switch {
	case c.IsEmpty():
		return true
	case c.Regexp != nil:
		return c.Regexp.MatchString(name)
	default:
		return name != "" && c.Name == name
	}
}

// IsModifying returns true if the option modifies matched cookies instead of
// removing them.
func (c *CookieOption) IsModifying() (ok bool) {
	return c.MaxAge > 0 || c.SameSite != SameSiteNone
}
