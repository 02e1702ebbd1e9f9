package cmd

import (
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"gopkg.in/yaml.v2"
)

// configuration represents the on-disk configuration of AdvFilter.  The order
// of the fields should generally not be altered.
type configuration struct {
	// Filters is the configuration of the filtering engine and the list
	// refreshes.
	Filters *filtersConfig `yaml:"filters"`

	// Whitelist is the configuration of the user whitelist.  See the
	// environment type for the path to the state file.
	Whitelist *whitelistConfig `yaml:"whitelist"`

	// Stealth is the configuration of the stealth mode.
	Stealth *stealthConfig `yaml:"stealth"`

	// WebRequest is the configuration of the request adapter.
	WebRequest *webRequestConfig `yaml:"web_request"`

	// Web is the configuration of the JSON API.
	Web *webConfig `yaml:"web"`

	// RuleStat is the configuration of the rule statistics.  See the
	// environment type for the upload URL.
	RuleStat *ruleStatConfig `yaml:"rule_stat"`

	// AdditionalMetricsInfo is extra information, which is exposed by metrics.
	AdditionalMetricsInfo additionalInfo `yaml:"additional_metrics_info"`

	// Lists are the subscribed filter lists in the order of precedence.
	Lists listConfigs `yaml:"lists"`
}

// type check
var _ validate.Interface = (*configuration)(nil)

// Validate implements the [validate.Interface] interface for *configuration.
func (c *configuration) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	// Keep this in the same order as the fields in the config.
	validators := container.KeyValues[string, validate.Interface]{{
		Key:   "filters",
		Value: c.Filters,
	}, {
		Key:   "whitelist",
		Value: c.Whitelist,
	}, {
		Key:   "stealth",
		Value: c.Stealth,
	}, {
		Key:   "web_request",
		Value: c.WebRequest,
	}, {
		Key:   "web",
		Value: c.Web,
	}, {
		Key:   "rule_stat",
		Value: c.RuleStat,
	}, {
		Key:   "additional_metrics_info",
		Value: c.AdditionalMetricsInfo,
	}, {
		Key:   "lists",
		Value: c.Lists,
	}}

	var errs []error
	for _, kv := range validators {
		errs = validate.Append(errs, kv.Key, kv.Value)
	}

	return errors.Join(errs...)
}

// parseConfig reads the configuration.
func parseConfig(confPath string) (c *configuration, err error) {
	// #nosec G304 -- Trust the path to the configuration file that is given
	// from the environment.
	yamlFile, err := os.ReadFile(confPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	c = &configuration{}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return c, nil
}
