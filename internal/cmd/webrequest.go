package cmd

import (
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// webRequestConfig is the configuration of the request adapter.
type webRequestConfig struct {
	// ContextTTL is the time during which the state of an unfinished request
	// is kept.
	ContextTTL timeutil.Duration `yaml:"context_ttl"`

	// TabTTL is the time during which the frames of an inactive tab are kept.
	TabTTL timeutil.Duration `yaml:"tab_ttl"`

	// CollectHits enables the collection of the rule statistics.
	CollectHits bool `yaml:"collect_hits"`

	// DebugScripts enables the debug output of the injected scripts.
	DebugScripts bool `yaml:"debug_scripts"`
}

// type check
var _ validate.Interface = (*webRequestConfig)(nil)

// Validate implements the [validate.Interface] interface for *webRequestConfig.
func (c *webRequestConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.Positive("context_ttl", c.ContextTTL),
		validate.Positive("tab_ttl", c.TabTTL),
	)
}
