// Package advurlflt contains utilities for the urlfilter module.
package advurlflt

import (
	"bytes"
	"strings"
)

// DomainRule returns the urlfilter rule matching domain and all of its
// subdomains.  domain must be lowercase.
func DomainRule(domain string) (ruleText string) {
	return "||" + domain + "^"
}

// DomainFromRule returns the domain of a rule returned by [DomainRule].  ok is
// false if ruleText isn't such a rule.
func DomainFromRule(ruleText string) (domain string, ok bool) {
	domain, ok = strings.CutPrefix(ruleText, "||")
	if !ok {
		return "", false
	}

	domain, ok = strings.CutSuffix(domain, "^")
	if !ok {
		return "", false
	}

	return domain, true
}

// domainRulesLen returns the length of the byte buffer necessary to write the
// domain rules for domains, separated by a newline, to it.
func domainRulesLen(domains []string) (l int) {
	for _, d := range domains {
		l += len("||") + len(d) + len("^\n")
	}

	return l
}

// DomainRulesToBytes writes the rules returned by [DomainRule] for the
// lowercase versions of domains to a byte slice and returns it.  Empty domains
// are skipped.
func DomainRulesToBytes(domains []string) (b []byte) {
	l := domainRulesLen(domains)
	if l == 0 {
		return nil
	}

	buf := bytes.NewBuffer(make([]byte, 0, l))
	for _, d := range domains {
		if d == "" {
			continue
		}

		_, _ = buf.WriteString(DomainRule(strings.ToLower(d)))
		_ = buf.WriteByte('\n')
	}

	return buf.Bytes()
}
