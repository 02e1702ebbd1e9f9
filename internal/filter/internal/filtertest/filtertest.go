// Package filtertest contains common constants and utilities for the internal
// filtering packages.
package filtertest

import (
	"testing"
	"time"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

// Common hostnames for tests.
const (
	Host          = "host.example"
	HostAds       = "ads.example"
	HostAdsSub    = "cdn." + HostAds
	HostSite      = "site.example"
	HostSiteSub   = "www." + HostSite
	HostTracker   = "tracker.example"
	HostWhitelist = "allowed.example"
	HostOther     = "other.example"
)

// Common URLs for tests.
const (
	URLAdsScript   = "http://" + HostAds + "/x.js"
	URLAdsImage    = "http://" + HostAds + "/banner.png"
	URLSite        = "http://" + HostSite + "/"
	URLSitePage    = "http://" + HostSite + "/page.html"
	URLTracker     = "https://" + HostTracker + "/pixel?id=1"
	URLWhitelisted = "https://" + HostWhitelist + "/index.html"
	URLOther       = "https://" + HostOther + "/app.js"
)

// Common rules for tests.
const (
	RuleBlockAdsStr         = "||" + HostAds + "^"
	RuleDocumentAllowAdsStr = "@@||" + HostAds + "^$document"
	RulePopupStr            = HostSite + "^$popup"
	RuleCookieBlockStr      = "$cookie=/.+/;maxAge=60"
	RuleCookieAllowStr      = "@@$cookie=keep"
	RuleCSSGenericStr       = "##.banner"
	RuleCSSSiteStr          = HostSite + "##.site-ad"
	RuleScriptSiteStr       = HostSite + "#%#window.ads = false;"
	RuleScriptExceptionStr  = HostSiteSub + "#@%#window.ads = false;"

	RuleBlockAds         filter.RuleText = RuleBlockAdsStr
	RuleDocumentAllowAds filter.RuleText = RuleDocumentAllowAdsStr
)

// ListIDCustom is the common ID of a custom filter list for tests.
const ListIDCustom filter.ListID = filter.ListIDCustomMin + 1

// ListID is the common ID of a regular filter list for tests.
const ListID filter.ListID = 2

// CacheCount is the common count of cache items for filtering tests.
const CacheCount = 100

// FilterMaxSize is the maximum size of the downloadable rule-list for filtering
// tests.
const FilterMaxSize = 640 * datasize.KB

// ServerName is the common server name for filtering tests.
const ServerName = "testServer/1.0"

// Staleness is the common long staleness files used in filtering tests.
const Staleness = 1 * time.Hour

// Timeout is the common timeout for filtering tests.
const Timeout = 1 * time.Second

// NewRule is a helper that parses text as a rule of list [ListID].
func NewRule(tb testing.TB, text string) (r rule.Rule) {
	tb.Helper()

	r, err := rule.New(text, ListID)
	require.NoError(tb, err)
	require.NotNil(tb, r)

	return r
}

// NewURLRule is a helper that parses text as a URL rule of list [ListID].
func NewURLRule(tb testing.TB, text string) (r *rule.URLRule) {
	tb.Helper()

	r, err := rule.NewURLRule(text, ListID)
	require.NoError(tb, err)

	return r
}

// NewRules is a helper that parses every text as a rule of list [ListID].
func NewRules(tb testing.TB, texts ...string) (rules []rule.Rule) {
	tb.Helper()

	for _, text := range texts {
		rules = append(rules, NewRule(tb, text))
	}

	return rules
}

// NewURLRules is a helper that parses every text as a URL rule of list
// [ListID].
func NewURLRules(tb testing.TB, texts ...string) (rules []*rule.URLRule) {
	tb.Helper()

	for _, text := range texts {
		rules = append(rules, NewURLRule(tb, text))
	}

	return rules
}
