package cmd

import (
	"log/slog"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/advblocker/advfilter/internal/filter/stealth"
)

// stealthConfig is the configuration of the stealth mode.
type stealthConfig struct {
	// TrackingParameters are the names of the query parameters removed from
	// the URLs.  A trailing "*" matches any suffix.
	TrackingParameters []string `yaml:"tracking_parameters"`

	// FirstPartyCookiesMaxAge is the lifetime of the first-party cookies, in
	// minutes.  Zero makes them session cookies.
	FirstPartyCookiesMaxAge uint `yaml:"first_party_cookies_max_age"`

	// ThirdPartyCookiesMaxAge is the lifetime of the third-party cookies, in
	// minutes.  Zero makes them session cookies.
	ThirdPartyCookiesMaxAge uint `yaml:"third_party_cookies_max_age"`

	// Enabled shows if the stealth mode is used at all.  If it is false, the
	// rest of the settings are ignored.
	Enabled bool `yaml:"enabled"`

	HideReferrer                  bool `yaml:"hide_referrer"`
	HideSearchQueries             bool `yaml:"hide_search_queries"`
	BlockChromeClientData         bool `yaml:"block_chrome_client_data"`
	SendDoNotTrack                bool `yaml:"send_do_not_track"`
	SelfDestructFirstPartyCookies bool `yaml:"self_destruct_first_party_cookies"`
	SelfDestructThirdPartyCookies bool `yaml:"self_destruct_third_party_cookies"`
	StripTrackingParameters       bool `yaml:"strip_tracking_parameters"`
}

// type check
var _ validate.Interface = (*stealthConfig)(nil)

// Validate implements the [validate.Interface] interface for *stealthConfig.
func (c *stealthConfig) Validate() (err error) {
	switch {
	case c == nil:
		return errors.ErrNoValue
	case c.Enabled && c.StripTrackingParameters:
		return validate.NotEmptySlice("tracking_parameters", c.TrackingParameters)
	default:
		return nil
	}
}

// toInternal converts c to the stealth mode configuration.  c must be valid.
func (c *stealthConfig) toInternal(
	logger *slog.Logger,
	rules stealth.RuleFinder,
) (conf *stealth.Config) {
	return &stealth.Config{
		Logger:                        logger,
		Rules:                         rules,
		TrackingParameters:            c.TrackingParameters,
		FirstPartyCookiesMaxAge:       c.FirstPartyCookiesMaxAge,
		ThirdPartyCookiesMaxAge:       c.ThirdPartyCookiesMaxAge,
		Enabled:                       c.Enabled,
		HideReferrer:                  c.HideReferrer,
		HideSearchQueries:             c.HideSearchQueries,
		BlockChromeClientData:         c.BlockChromeClientData,
		SendDoNotTrack:                c.SendDoNotTrack,
		SelfDestructFirstPartyCookies: c.SelfDestructFirstPartyCookies,
		SelfDestructThirdPartyCookies: c.SelfDestructThirdPartyCookies,
		StripTrackingParameters:       c.StripTrackingParameters,
	}
}
