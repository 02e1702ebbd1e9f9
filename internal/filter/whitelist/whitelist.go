// Package whitelist contains the policy of the domains on which the filtering
// is disabled by the user.
//
// In the default mode, the filtering is disabled on the whitelisted domains.
// In the inverted mode, the filtering is disabled everywhere except the
// blocklisted domains.
package whitelist

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/advcache"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// AllowAllRuleText is the text of the exception returned for all pages in the
// inverted mode.
const AllowAllRuleText = "@@whitelist-all$document"

// CacheID is the ID of the host cache in the cache manager.
const CacheID = "filters/whitelist"

// State is the user-visible state of the whitelist.
type State struct {
	// Whitelisted are the domains on which the filtering is disabled in the
	// default mode.
	Whitelisted []string `json:"whitelisted"`

	// Blocklisted are the only domains on which the filtering is enabled in
	// the inverted mode.
	Blocklisted []string `json:"blocklisted"`

	// DefaultMode is false if the inverted mode is enabled.
	DefaultMode bool `json:"default_mode"`
}

// Config is the configuration structure for the whitelist.
type Config struct {
	// Logger is used to log the state changes.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to expire the cached results.  It must not be nil.
	Clock timeutil.Clock

	// CacheManager is the global cache manager.  It must not be nil.
	CacheManager advcache.Manager

	// Initial is the state used when there is no state file.  It must not be
	// nil.
	Initial *State

	// StatePath is the path to the JSON file the state is kept in.  If it's
	// empty, the state isn't persisted.
	StatePath string

	// CacheTTL is the time the results for a host are cached for.  If it's
	// zero, the results are kept until the next change of the state.
	CacheTTL time.Duration

	// CacheSize is the number of hosts the results are cached for.  If it's
	// zero, the results aren't cached.
	CacheSize int
}

// Whitelist is the whitelist policy.  It's safe for concurrent use.
type Whitelist struct {
	logger       *slog.Logger
	storage      *storage
	cache        advcache.Interface[string, *rule.URLRule]
	allowAllRule *rule.URLRule
	cacheTTL     time.Duration

	// mu protects whitelisted, blocklisted, and defaultMode.
	mu          *sync.RWMutex
	whitelisted *domainSet
	blocklisted *domainSet
	defaultMode bool
}

// New returns a new properly initialized whitelist.  The state is loaded from
// the state file, if there is one.  c must not be nil.
func New(ctx context.Context, c *Config) (wl *Whitelist, err error) {
	defer func() { err = errors.Annotate(err, "creating whitelist: %w") }()

	var cache advcache.Interface[string, *rule.URLRule] = advcache.Empty[string, *rule.URLRule]{}
	if c.CacheSize > 0 {
		cache, err = advcache.NewExpiring[string, *rule.URLRule](&advcache.ExpiringConfig{
			Clock: c.Clock,
			Size:  c.CacheSize,
		})
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return nil, err
		}
	}

	wl = &Whitelist{
		logger:       c.Logger,
		cache:        cache,
		allowAllRule: rule.MustNewURLRule(AllowAllRuleText, filter.ListIDWhitelist),
		cacheTTL:     c.CacheTTL,
		mu:           &sync.RWMutex{},
	}

	st := c.Initial
	if c.StatePath != "" {
		wl.storage = &storage{
			logger: c.Logger,
			path:   c.StatePath,
		}

		var loaded *State
		loaded, err = wl.storage.load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading state: %w", err)
		} else if loaded != nil {
			st = loaded
		}
	}

	err = wl.setState(st)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	c.CacheManager.Add(CacheID, cache)

	return wl, nil
}

// setState replaces the state of wl with st.  wl.mu must be locked, if
// necessary.
func (wl *Whitelist) setState(st *State) (err error) {
	whitelisted, err := newDomainSet(st.Whitelisted)
	if err != nil {
		return fmt.Errorf("whitelisted: %w", err)
	}

	blocklisted, err := newDomainSet(st.Blocklisted)
	if err != nil {
		return fmt.Errorf("blocklisted: %w", err)
	}

	wl.whitelisted, wl.blocklisted, wl.defaultMode = whitelisted, blocklisted, st.DefaultMode

	return nil
}

// FindWhiteListRule returns the $document exception disabling the filtering on
// the page at url or nil if the filtering is enabled there.
func (wl *Whitelist) FindWhiteListRule(url string) (r *rule.URLRule) {
	host := filter.ExtractHostname(url)
	if host == "" {
		return nil
	}

	r, ok := wl.cache.Get(host)
	if ok {
		return r
	}

	wl.mu.RLock()
	defer wl.mu.RUnlock()

	if wl.defaultMode {
		r = wl.whitelisted.find(host)
	} else if wl.blocklisted.find(host) == nil {
		r = wl.allowAllRule
	}

	if wl.cacheTTL > 0 {
		wl.cache.SetWithExpire(host, r, wl.cacheTTL)
	} else {
		wl.cache.Set(host, r)
	}

	return r
}

// State returns a copy of the current state of wl.
func (wl *Whitelist) State() (st *State) {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	return wl.stateLocked()
}

// stateLocked returns a copy of the current state of wl.  wl.mu must be
// locked.
func (wl *Whitelist) stateLocked() (st *State) {
	return &State{
		Whitelisted: slices.Clone(wl.whitelisted.domains),
		Blocklisted: slices.Clone(wl.blocklisted.domains),
		DefaultMode: wl.defaultMode,
	}
}

// Domains returns the domains of the current mode.
func (wl *Whitelist) Domains() (domains []string) {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	return slices.Clone(wl.current().domains)
}

// Rules returns the exceptions for the whitelisted domains.
func (wl *Whitelist) Rules() (rules []*rule.URLRule) {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	return wl.whitelisted.sortedRules()
}

// current returns the domain set of the current mode.  wl.mu must be locked.
func (wl *Whitelist) current() (s *domainSet) {
	if wl.defaultMode {
		return wl.whitelisted
	}

	return wl.blocklisted
}

// setCurrent replaces the domain set of the current mode.  wl.mu must be
// locked.
func (wl *Whitelist) setCurrent(s *domainSet) {
	if wl.defaultMode {
		wl.whitelisted = s
	} else {
		wl.blocklisted = s
	}
}

// AddToWhiteList adds domain to the domains of the current mode.
func (wl *Whitelist) AddToWhiteList(ctx context.Context, domain string) (err error) {
	if normalizeDomain(domain) == "" {
		return fmt.Errorf("domain: %w", errors.ErrEmptyValue)
	}

	return wl.update(ctx, func() (err error) {
		next, err := wl.current().with(domain)
		if err != nil {
			return fmt.Errorf("adding domain: %w", err)
		}

		wl.setCurrent(next)

		return nil
	})
}

// RemoveFromWhiteList removes domain from the domains of the current mode.
func (wl *Whitelist) RemoveFromWhiteList(ctx context.Context, domain string) (err error) {
	return wl.update(ctx, func() (err error) {
		next, err := wl.current().without(domain)
		if err != nil {
			return fmt.Errorf("removing domain: %w", err)
		}

		wl.setCurrent(next)

		return nil
	})
}

// WhiteListURL disables the filtering on the pages of the host of url.
func (wl *Whitelist) WhiteListURL(ctx context.Context, url string) (err error) {
	host := filter.ExtractHostname(url)

	if wl.IsDefaultMode() {
		return wl.AddToWhiteList(ctx, host)
	}

	return wl.RemoveFromWhiteList(ctx, host)
}

// UnWhiteListURL enables the filtering on the pages of the host of url.
func (wl *Whitelist) UnWhiteListURL(ctx context.Context, url string) (err error) {
	host := filter.ExtractHostname(url)

	if wl.IsDefaultMode() {
		return wl.RemoveFromWhiteList(ctx, host)
	}

	return wl.AddToWhiteList(ctx, host)
}

// UpdateWhiteListDomains replaces the domains of the current mode.
func (wl *Whitelist) UpdateWhiteListDomains(ctx context.Context, domains []string) (err error) {
	return wl.update(ctx, func() (err error) {
		next, err := newDomainSet(domains)
		if err != nil {
			return fmt.Errorf("updating domains: %w", err)
		}

		wl.setCurrent(next)

		return nil
	})
}

// IsDefaultMode returns false if the inverted mode is enabled.
func (wl *Whitelist) IsDefaultMode() (ok bool) {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	return wl.defaultMode
}

// ChangeDefaultMode switches between the default and the inverted modes.
func (wl *Whitelist) ChangeDefaultMode(ctx context.Context, defaultMode bool) (err error) {
	return wl.update(ctx, func() (err error) {
		wl.defaultMode = defaultMode

		return nil
	})
}

// Configure replaces the whole state of wl with st.
func (wl *Whitelist) Configure(ctx context.Context, st *State) (err error) {
	return wl.update(ctx, func() (err error) {
		return wl.setState(st)
	})
}

// update applies upd to wl under the lock, clears the cache, and saves the new
// state.  If upd returns an error, the state isn't changed.
func (wl *Whitelist) update(ctx context.Context, upd func() (err error)) (err error) {
	defer func() { err = errors.Annotate(err, "updating whitelist: %w") }()

	wl.mu.Lock()
	defer wl.mu.Unlock()

	err = upd()
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	wl.cache.Clear()

	if wl.storage == nil {
		return nil
	}

	return wl.storage.store(ctx, wl.stateLocked())
}
