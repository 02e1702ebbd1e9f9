package webrequest

import (
	"sync"
	"time"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/advblocker/advfilter/internal/filter/stealth"
	cache "github.com/patrickmn/go-cache"
)

// RequestContext is the state of a single request kept between the events of
// the request.
type RequestContext struct {
	// Rule is the rule that decided the verdict for the request, if any.
	Rule *rule.URLRule

	// CSPRules are the $csp rules applied to the response.
	CSPRules []*rule.URLRule

	// CookieRules are the $cookie rules applied to the cookies of the request
	// and the response.
	CookieRules []*rule.URLRule

	// ReplaceRules are the $replace rules for the response body.
	ReplaceRules []*rule.URLRule

	// ModifiedCookies are the cookies of the request matched by the modifying
	// $cookie rules.  Their new attributes are sent with the response.
	ModifiedCookies []*cookieModification

	// RequestHeaders are the modified headers of the request, if modified.
	RequestHeaders []filter.Header

	// ResponseHeaders are the modified headers of the response, if modified.
	ResponseHeaders []filter.Header

	// RequestID is the ID of the request assigned by the browser.
	RequestID string

	// URL is the URL of the request.
	URL string

	// ReferrerURL is the URL of the document that made the request.
	ReferrerURL string

	// TabID is the ID of the tab of the request.
	TabID int

	// FrameID is the ID of the frame of the request.
	FrameID int

	// Type is the type of the request.
	Type filter.RequestType

	// StealthActions are the actions of the stealth mode applied to the
	// request.
	StealthActions stealth.Action
}

// contextStorage keeps the contexts of the requests in flight.  The contexts
// of the requests that never complete expire.
type contextStorage struct {
	cache *cache.Cache

	// mu serializes the updates of the contexts.
	mu *sync.Mutex
}

// newContextStorage returns a new context storage with the given expiration
// time.
func newContextStorage(ttl time.Duration) (s *contextStorage) {
	return &contextStorage{
		cache: cache.New(ttl, 2*ttl),
		mu:    &sync.Mutex{},
	}
}

// get returns the context for the request with id, if any.
func (s *contextStorage) get(id string) (rc *RequestContext, ok bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}

	return v.(*RequestContext), true
}

// update applies upd to the context of the request with id and stores it.  The
// context is created from details, if there is none.
func (s *contextStorage) update(d *RequestDetails, upd func(rc *RequestContext)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.get(d.RequestID)
	if !ok {
		rc = &RequestContext{
			RequestID:   d.RequestID,
			URL:         d.URL,
			ReferrerURL: d.ReferrerURL,
			TabID:       d.TabID,
			FrameID:     d.FrameID,
			Type:        d.Type,
		}
	}

	upd(rc)

	s.cache.SetDefault(d.RequestID, rc)
}

// remove deletes the context of the request with id.
func (s *contextStorage) remove(id string) {
	s.cache.Delete(id)
}

// len returns the number of the stored contexts, including the expired ones
// not yet collected.
func (s *contextStorage) len() (n int) {
	return s.cache.ItemCount()
}
