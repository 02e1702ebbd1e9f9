package cmd

import (
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// ruleStatConfig is the configuration of the rule statistics.
type ruleStatConfig struct {
	// RefreshIvl defines how often the statistics are uploaded.
	RefreshIvl timeutil.Duration `yaml:"refresh_interval"`
}

// type check
var _ validate.Interface = (*ruleStatConfig)(nil)

// Validate implements the [validate.Interface] interface for *ruleStatConfig.
func (c *ruleStatConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return validate.Positive("refresh_interval", c.RefreshIvl)
}
