package whitelist

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/syncutil"
	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/advblocker/advfilter/internal/advurlflt"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// urlfilterListID is the ID of the urlfilter rule list in the domain-set
// engines.  As there is only one rule list in an engine it could simply be 0.
const urlfilterListID = 0

// domainSet is an immutable set of domains along with the engine matching the
// hostnames against them.
type domainSet struct {
	engine  *urlfilter.DNSEngine
	reqPool *syncutil.Pool[urlfilter.DNSRequest]
	resPool *syncutil.Pool[urlfilter.DNSResult]

	// rules are the $document exceptions for the domains.
	rules map[string]*rule.URLRule

	// domains are the normalized domains in the order they were added.
	domains []string
}

// newDomainSet returns a new domain set.  domains are normalized and
// deduplicated, the empty ones are skipped.
func newDomainSet(domains []string) (s *domainSet, err error) {
	s = &domainSet{
		reqPool: syncutil.NewPool(func() (req *urlfilter.DNSRequest) {
			return &urlfilter.DNSRequest{}
		}),
		resPool: syncutil.NewPool(func() (v *urlfilter.DNSResult) {
			return &urlfilter.DNSResult{}
		}),
		rules:   make(map[string]*rule.URLRule, len(domains)),
		domains: make([]string, 0, len(domains)),
	}

	for _, d := range domains {
		d = normalizeDomain(d)
		if d == "" || s.rules[d] != nil {
			continue
		}

		s.rules[d], err = newDomainRule(d)
		if err != nil {
			return nil, err
		}

		s.domains = append(s.domains, d)
	}

	lists := []filterlist.Interface{
		filterlist.NewBytes(&filterlist.BytesConfig{
			ID:             urlfilterListID,
			RulesText:      advurlflt.DomainRulesToBytes(s.domains),
			IgnoreCosmetic: true,
		}),
	}

	strg, err := filterlist.NewRuleStorage(lists)
	if err != nil {
		return nil, fmt.Errorf("creating rule storage: %w", err)
	}

	s.engine = urlfilter.NewDNSEngine(strg)

	return s, nil
}

// newDomainRule returns the $document exception for the pages of domain.
func newDomainRule(domain string) (r *rule.URLRule, err error) {
	r, err = rule.NewURLRule("@@//"+domain+"$document", filter.ListIDWhitelist)
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w", domain, err)
	}

	return r, nil
}

// normalizeDomain returns the lowercase version of domain without the
// surrounding spaces and the trailing dot.
func normalizeDomain(domain string) (norm string) {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// find returns the exception for the domain matching host or nil.
func (s *domainSet) find(host string) (r *rule.URLRule) {
	if len(s.domains) == 0 {
		return nil
	}

	req := s.reqPool.Get()
	defer s.reqPool.Put(req)

	req.Reset()
	req.Hostname = host

	res := s.resPool.Get()
	defer s.resPool.Put(res)

	res.Reset()

	if !s.engine.MatchRequestInto(req, res) || res.NetworkRule == nil {
		return nil
	}

	text := res.NetworkRule.Text()
	d, ok := advurlflt.DomainFromRule(text)
	if !ok {
		// Shouldn't happen, since the engine only contains the domain rules.
		panic(fmt.Errorf("whitelist: unexpected rule %q", text))
	}

	return s.rules[d]
}

// with returns a new set with domain added.
func (s *domainSet) with(domain string) (next *domainSet, err error) {
	return newDomainSet(append(slices.Clip(s.domains), domain))
}

// without returns a new set with domain removed.
func (s *domainSet) without(domain string) (next *domainSet, err error) {
	domain = normalizeDomain(domain)

	return newDomainSet(slices.DeleteFunc(slices.Clone(s.domains), func(d string) (ok bool) {
		return d == domain
	}))
}

// sortedRules returns the rules of s in the order the domains were added.
func (s *domainSet) sortedRules() (rules []*rule.URLRule) {
	rules = make([]*rule.URLRule, 0, len(s.domains))
	for _, d := range s.domains {
		rules = append(rules, s.rules[d])
	}

	return rules
}
