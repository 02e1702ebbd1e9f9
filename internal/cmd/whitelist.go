package cmd

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/advblocker/advfilter/internal/filter/whitelist"
)

// whitelistConfig is the configuration of the user whitelist.
type whitelistConfig struct {
	// Domains are the initially whitelisted domains.  They are only used if
	// there is no state file yet.
	Domains []string `yaml:"domains"`

	// CacheTTL is the time during which the results of the whitelist lookups
	// are cached.
	CacheTTL timeutil.Duration `yaml:"cache_ttl"`

	// CacheSize is the maximum number of cached lookup results.
	CacheSize int `yaml:"cache_size"`

	// DefaultMode is false if the whitelist is inverted, that is, the
	// filtering is only enabled on the listed domains.  It is only used if
	// there is no state file yet.
	DefaultMode bool `yaml:"default_mode"`
}

// type check
var _ validate.Interface = (*whitelistConfig)(nil)

// Validate implements the [validate.Interface] interface for *whitelistConfig.
func (c *whitelistConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.Positive("cache_ttl", c.CacheTTL),
		validate.Positive("cache_size", c.CacheSize),
	}

	for i, d := range c.Domains {
		err = validate.NotEmpty(fmt.Sprintf("domains: at index %d", i), d)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// initialState returns the initial state of the whitelist.  c must be valid.
func (c *whitelistConfig) initialState() (st *whitelist.State) {
	st = &whitelist.State{
		DefaultMode: c.DefaultMode,
	}

	if c.DefaultMode {
		st.Whitelisted = c.Domains
	} else {
		st.Blocklisted = c.Domains
	}

	return st
}
