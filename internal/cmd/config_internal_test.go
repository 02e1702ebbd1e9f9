package cmd

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// newTestConfig returns a valid configuration for tests.
func newTestConfig() (c *configuration) {
	return &configuration{
		Filters: &filtersConfig{
			RefreshIvl:         timeutil.Duration(time.Hour),
			RefreshTimeout:     timeutil.Duration(5 * time.Minute),
			ListRefreshTimeout: timeutil.Duration(time.Minute),
			UserFilterDelay:    timeutil.Duration(time.Second),
			MaxSize:            10 * datasize.MB,
			MaxConcurrent:      4,
			CacheSize:          1000,
		},
		Whitelist: &whitelistConfig{
			Domains:     []string{"example.org"},
			CacheTTL:    timeutil.Duration(time.Minute),
			CacheSize:   1000,
			DefaultMode: true,
		},
		Stealth: &stealthConfig{
			TrackingParameters:      []string{"utm_*", "fbclid"},
			FirstPartyCookiesMaxAge: 60,
			Enabled:                 true,
			StripTrackingParameters: true,
		},
		WebRequest: &webRequestConfig{
			ContextTTL: timeutil.Duration(time.Minute),
			TabTTL:     timeutil.Duration(time.Hour),
		},
		Web: &webConfig{
			Bind:        []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:8080")},
			MaxBodySize: 64 * datasize.KB,
			Timeout:     timeutil.Duration(time.Minute),
		},
		RuleStat: &ruleStatConfig{
			RefreshIvl: timeutil.Duration(10 * time.Minute),
		},
		AdditionalMetricsInfo: additionalInfo{
			"dc": "local",
		},
		Lists: listConfigs{{
			URL:     "https://filters.example/base.txt",
			ID:      2,
			Enabled: true,
		}, {
			URL:     "file:///var/lib/advfilter/extra.txt",
			ID:      3,
			Enabled: false,
		}},
	}
}

func TestConfiguration_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, newTestConfig().Validate())

	testCases := []struct {
		modify     func(c *configuration)
		name       string
		wantErrMsg string
	}{{
		modify:     func(c *configuration) { c.Filters = nil },
		name:       "no_filters",
		wantErrMsg: "filters: no value",
	}, {
		modify: func(c *configuration) {
			c.Filters.MaxConcurrent = 0
		},
		name:       "bad_max_concurrent",
		wantErrMsg: "filters: max_concurrent",
	}, {
		modify: func(c *configuration) {
			c.Lists[1].ID = c.Lists[0].ID
		},
		name:       "duplicate_list",
		wantErrMsg: "lists: at index 1: id",
	}, {
		modify: func(c *configuration) {
			c.Lists[0].ID = filter.ListIDWhitelist
		},
		name:       "whitelist_list_id",
		wantErrMsg: "lists: at index 0: id: 100 is reserved for the whitelist",
	}, {
		modify: func(c *configuration) {
			c.Stealth.TrackingParameters = nil
		},
		name:       "no_tracking_parameters",
		wantErrMsg: "stealth: tracking_parameters",
	}, {
		modify: func(c *configuration) {
			c.Web.RPS = 10
		},
		name:       "no_burst",
		wantErrMsg: "web: burst",
	}, {
		modify: func(c *configuration) {
			c.AdditionalMetricsInfo = additionalInfo{"bad-label": "value"}
		},
		name:       "bad_additional_info",
		wantErrMsg: `additional_metrics_info: bad prometheus label name "bad-label"`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestConfig()
			tc.modify(c)

			err := c.Validate()
			require.Error(t, err)

			assert.Contains(t, err.Error(), tc.wantErrMsg)
		})
	}
}

func TestListConfigs_toInternal(t *testing.T) {
	t.Parallel()

	c := newTestConfig()
	lists, err := c.Lists.toInternal("user_filter.txt")
	require.NoError(t, err)
	require.Len(t, lists, 3)

	user := lists[0]
	assert.Equal(t, filter.ListIDUser, user.ID)
	assert.Equal(t, "file", user.URL.Scheme)
	assert.True(t, filepath.IsAbs(user.URL.Path))
	assert.True(t, user.Enabled)

	assert.Equal(t, filter.ListID(2), lists[1].ID)
	assert.Equal(t, "filters.example", lists[1].URL.Host)
	assert.False(t, lists[2].Enabled)
}

func TestWhitelistConfig_initialState(t *testing.T) {
	t.Parallel()

	c := newTestConfig().Whitelist

	st := c.initialState()
	assert.True(t, st.DefaultMode)
	assert.Equal(t, []string{"example.org"}, st.Whitelisted)
	assert.Empty(t, st.Blocklisted)

	c.DefaultMode = false

	st = c.initialState()
	assert.False(t, st.DefaultMode)
	assert.Empty(t, st.Whitelisted)
	assert.Equal(t, []string{"example.org"}, st.Blocklisted)
}

func TestWebConfig_toInternal(t *testing.T) {
	t.Parallel()

	c := newTestConfig().Web

	conf := c.toInternal(nil)
	assert.Equal(t, rate.Inf, conf.RateLimit)
	assert.Equal(t, time.Minute, conf.Timeout)

	c.RPS, c.Burst = 5, 10

	conf = c.toInternal(nil)
	assert.Equal(t, rate.Limit(5), conf.RateLimit)
	assert.Equal(t, 10, conf.RateBurst)
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	const confData = `
filters:
  refresh_interval: 1h
  refresh_timeout: 5m
  list_refresh_timeout: 1m
  user_filter_delay: 1s
  max_size: 10MB
  max_concurrent: 4
  cache_size: 1000
whitelist:
  domains: ['example.org']
  cache_ttl: 1m
  cache_size: 100
  default_mode: true
stealth:
  enabled: false
web_request:
  context_ttl: 1m
  tab_ttl: 1h
web:
  bind: ['127.0.0.1:8080']
  max_body_size: 64KB
  timeout: 1m
rule_stat:
  refresh_interval: 10m
lists:
  - url: 'https://filters.example/base.txt'
    id: 2
    enabled: true
`

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(confData), 0o600))

	c, err := parseConfig(p)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, timeutil.Duration(time.Hour), c.Filters.RefreshIvl)
	assert.Equal(t, 10*datasize.MB, c.Filters.MaxSize)
	assert.Equal(t, []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:8080")}, c.Web.Bind)
	require.Len(t, c.Lists, 1)

	_, err = parseConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
