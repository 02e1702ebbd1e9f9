package rule

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/advblocker/advfilter/internal/filter"
)

// Domains contains the permitted and restricted domains of a rule.  An empty
// Domains permits every domain.
type Domains struct {
	// Permitted are the domains on which the rule applies.  If empty, the rule
	// applies on every domain that is not restricted.
	Permitted []string

	// Restricted are the domains on which the rule doesn't apply.  Restricted
	// domains take precedence over the permitted ones.
	Restricted []string
}

// parseDomains parses a list of domains separated by sep.  Domains prefixed
// with "~" are restricted.
func parseDomains(s string, sep string) (d Domains, err error) {
	if s == "" {
		return d, errors.Error("empty domains")
	}

	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)

		restricted := strings.HasPrefix(part, "~")
		if restricted {
			part = part[1:]
		}

		if part == "" {
			return Domains{}, fmt.Errorf("empty domain in %q", s)
		}

		part = strings.ToLower(part)
		if restricted {
			d.Restricted = append(d.Restricted, part)
		} else {
			d.Permitted = append(d.Permitted, part)
		}
	}

	return d, nil
}

// IsEmpty returns true if d has neither permitted nor restricted domains.
func (d Domains) IsEmpty() (ok bool) {
	return len(d.Permitted) == 0 && len(d.Restricted) == 0
}

// Match returns true if the rule with these domains is allowed on host.
func (d Domains) Match(host string) (ok bool) {
	if d.IsEmpty() {
		return true
	}

	if filter.IsDomainOrSubdomainOfAny(host, d.Restricted) {
		return false
	}

	return len(d.Permitted) == 0 || filter.IsDomainOrSubdomainOfAny(host, d.Permitted)
}

// Clone returns a deep clone of d.
func (d Domains) Clone() (c Domains) {
	return Domains{
		Permitted:  slices.Clone(d.Permitted),
		Restricted: slices.Clone(d.Restricted),
	}
}
