package filter

import (
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/publicsuffix"
)

// Request contains information about a network request being filtered.
type Request struct {
	// URL is the full URL of the request.
	URL string

	// URLLower is the lowercased version of URL.  It is used for the shortcut
	// lookups and the case-insensitive matching.
	URLLower string

	// Hostname is the lowercased hostname of URL.  It is empty if URL has no
	// authority part.
	Hostname string

	// Referrer is the URL of the document or frame that made the request.
	Referrer string

	// SourceHostname is the lowercased hostname of Referrer.  If Referrer has
	// no hostname, SourceHostname is the same as Hostname.
	SourceHostname string

	// Type is the type of the request.  It must have exactly one bit set.
	Type RequestType

	// ThirdParty is true if the request is made to a different registrable
	// domain than the one of the referrer.
	ThirdParty bool
}

// NewRequest returns a new properly initialized request.  Malformed URLs are
// not rejected, they only result in an empty hostname.
func NewRequest(rawURL, referrer string, typ RequestType) (r *Request) {
	r = &Request{
		URL:            rawURL,
		URLLower:       strings.ToLower(rawURL),
		Hostname:       ExtractHostname(rawURL),
		Referrer:       referrer,
		SourceHostname: ExtractHostname(referrer),
		Type:           typ,
	}

	if r.SourceHostname == "" {
		r.SourceHostname = r.Hostname
	}

	r.ThirdParty = IsThirdParty(r.Hostname, r.SourceHostname)

	return r
}

// ExtractHostname returns the lowercased hostname from the authority part of
// rawURL without the port, the user information, and the trailing dot.  If
// rawURL has no authority part, host is empty.
func ExtractHostname(rawURL string) (host string) {
	i := strings.Index(rawURL, "://")
	if i == -1 {
		return ""
	}

	host = rawURL[i+len("://"):]
	if end := strings.IndexAny(host, "/?#"); end != -1 {
		host = host[:end]
	}

	if at := strings.LastIndexByte(host, '@'); at != -1 {
		host = host[at+1:]
	}

	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end != -1 {
			return strings.ToLower(host[1:end])
		}

		return ""
	}

	if colon := strings.LastIndexByte(host, ':'); colon != -1 {
		host = host[:colon]
	}

	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// etldCacheSize is the maximum number of registrable domains kept in the cache.
const etldCacheSize = 4096

// etldCache contains the registrable domains of the recently seen hostnames.
var etldCache = errors.Must(lru.New[string, string](etldCacheSize))

// RegistrableDomain returns the eTLD+1 of host.  If host is an IP address, a
// single-label name, or a public suffix itself, host is returned as is.  The
// results are cached.
func RegistrableDomain(host string) (domain string) {
	if host == "" {
		return ""
	}

	if cached, ok := etldCache.Get(host); ok {
		return cached
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		domain = host
	}

	etldCache.Add(host, domain)

	return domain
}

// IsThirdParty returns true if host and srcHost have different registrable
// domains.  If either of them is empty, the request is considered first-party.
func IsThirdParty(host, srcHost string) (ok bool) {
	if host == "" || srcHost == "" || host == srcHost {
		return false
	}

	return RegistrableDomain(host) != RegistrableDomain(srcHost)
}

// IsDomainOrSubdomain returns true if host is domain or one of its
// subdomains.
func IsDomainOrSubdomain(host, domain string) (ok bool) {
	if !strings.HasSuffix(host, domain) {
		return false
	}

	return len(host) == len(domain) || host[len(host)-len(domain)-1] == '.'
}

// MatchDomain returns true if host is domain or one of its subdomains.  A
// domain ending with ".*" matches the hosts with the same name under any public
// suffix, for example "example.*" matches "www.example.co.uk".
func MatchDomain(host, domain string) (ok bool) {
	name, isWildcard := strings.CutSuffix(domain, ".*")
	if !isWildcard {
		return IsDomainOrSubdomain(host, domain)
	}

	suffix, _ := publicsuffix.PublicSuffix(host)
	if suffix == host {
		return false
	}

	return IsDomainOrSubdomain(strings.TrimSuffix(host, "."+suffix), name)
}

// IsDomainOrSubdomainOfAny returns true if host matches any of domains as
// defined by [MatchDomain].
func IsDomainOrSubdomainOfAny(host string, domains []string) (ok bool) {
	for _, d := range domains {
		if MatchDomain(host, d) {
			return true
		}
	}

	return false
}

// ParentDomains calls f for host and each of its parent domains, starting from
// host itself and ending with the top-level domain, until f returns false.
func ParentDomains(host string, f func(domain string) (cont bool)) {
	for host != "" {
		if !f(host) {
			return
		}

		dot := strings.IndexByte(host, '.')
		if dot == -1 {
			return
		}

		host = host[dot+1:]
	}
}
