package lookup_test

import (
	"fmt"
	"testing"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/filtertest"
	"github.com/advblocker/advfilter/internal/filter/internal/lookup"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRules are the rules covering every partition of the table.
var testRules = []string{
	// Shortcut table.
	filtertest.RuleBlockAdsStr,
	"/banner/*/ads_",
	"||tracker.example/pixel",
	`/metrics\d+\.js/`,
	"||example.org^$match-case,script",
	"@@||" + filtertest.HostAds + "/allowed^",
	"nners^",

	// Domain table.
	"*$domain=" + filtertest.HostSite,
	"@@*$script,domain=" + filtertest.HostOther + "|" + filtertest.HostSiteSub,
	"^$third-party,domain=" + filtertest.HostTracker,

	// Generic list.
	"$websocket",
	"ads^",
	"|http*",
	"$third-party,image",
	"*$domain=site.*",
}

// testRequests are the requests used to compare the results of the table with
// the linear scan.
var testRequests = []*filter.Request{
	filter.NewRequest(filtertest.URLAdsScript, filtertest.URLSite, filter.TypeScript),
	filter.NewRequest(filtertest.URLAdsImage, filtertest.URLSite, filter.TypeImage),
	filter.NewRequest("http://"+filtertest.HostAds+"/allowed/", filtertest.URLSite, filter.TypeImage),
	filter.NewRequest("https://cdn.example/banner/1/ads_top.png", filtertest.URLOther, filter.TypeImage),
	filter.NewRequest("https://cdn.example/BANNER/1/ADS_TOP.png", filtertest.URLOther, filter.TypeImage),
	filter.NewRequest(filtertest.URLTracker, filtertest.URLSite, filter.TypeImage),
	filter.NewRequest("https://cdn.example/metrics42.js", filtertest.URLSite, filter.TypeScript),
	filter.NewRequest("https://example.org/app.js", filtertest.URLSite, filter.TypeScript),
	filter.NewRequest("https://EXAMPLE.org/app.js", filtertest.URLSite, filter.TypeScript),
	filter.NewRequest(filtertest.URLOther, "http://"+filtertest.HostSiteSub+"/", filter.TypeScript),
	filter.NewRequest(filtertest.URLOther, "https://"+filtertest.HostTracker+"/", filter.TypeXMLHTTPRequest),
	filter.NewRequest("wss://socket.example/feed", filtertest.URLSite, filter.TypeWebSocket),
	filter.NewRequest("https://site.co.uk/", "https://site.co.uk/", filter.TypeDocument),
	filter.NewRequest("http://cdn.example/banner\u017f/", filtertest.URLSite, filter.TypeImage),
	filter.NewRequest("http://cdn.example/BANNERS/", filtertest.URLSite, filter.TypeImage),
	filter.NewRequest("not a url", "", filter.TypeOther),
	filter.NewRequest("", "", filter.TypeOther),
}

// linearFind returns the rules matching req by checking every rule.
func linearFind(rules []*rule.URLRule, req *filter.Request) (matched []*rule.URLRule) {
	for _, r := range rules {
		if r.Match(req) {
			matched = append(matched, r)
		}
	}

	return matched
}

func TestTable_FindRules_completeness(t *testing.T) {
	t.Parallel()

	rules := filtertest.NewURLRules(t, testRules...)
	tbl := lookup.NewWithRules(rules)
	require.Equal(t, len(rules), tbl.Len())

	for i, req := range testRequests {
		t.Run(fmt.Sprintf("req_%d", i), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, linearFind(rules, req), tbl.FindRules(req))
		})
	}
}

func TestTable_FindRules_order(t *testing.T) {
	t.Parallel()

	rules := filtertest.NewURLRules(
		t,
		"||"+filtertest.HostAds+"/x.js",
		"*$domain="+filtertest.HostSite,
		filtertest.RuleBlockAdsStr,
		"$script",
	)

	tbl := lookup.NewWithRules(rules)
	req := filter.NewRequest(filtertest.URLAdsScript, filtertest.URLSite, filter.TypeScript)

	assert.Equal(t, rules, tbl.FindRules(req))
}

func TestTable_AddRule_duplicate(t *testing.T) {
	t.Parallel()

	tbl := lookup.New()
	tbl.AddRule(filtertest.NewURLRule(t, filtertest.RuleBlockAdsStr))
	tbl.AddRule(filtertest.NewURLRule(t, filtertest.RuleBlockAdsStr))

	assert.Equal(t, 1, tbl.Len())

	req := filter.NewRequest(filtertest.URLAdsScript, filtertest.URLSite, filter.TypeScript)
	assert.Len(t, tbl.FindRules(req), 1)
}

func TestTable_RemoveRule(t *testing.T) {
	t.Parallel()

	base := filtertest.NewURLRules(t, testRules[:len(testRules)/2]...)
	tbl := lookup.NewWithRules(base)

	want := make([][]*rule.URLRule, 0, len(testRequests))
	for _, req := range testRequests {
		want = append(want, tbl.FindRules(req))
	}

	for _, text := range testRules {
		// A newly parsed rule is equal to the inserted one by its key, which
		// is what RemoveRule uses.
		r := filtertest.NewURLRule(t, text)
		if containsKey(base, r) {
			continue
		}

		tbl.AddRule(r)
		tbl.RemoveRule(filtertest.NewURLRule(t, text))
	}

	require.Equal(t, len(base), tbl.Len())

	for i, req := range testRequests {
		assert.Equal(t, want[i], tbl.FindRules(req), "request %d", i)
	}

	for _, r := range base {
		tbl.RemoveRule(r)
	}

	assert.Zero(t, tbl.Len())
	for _, req := range testRequests {
		assert.Empty(t, tbl.FindRules(req))
	}
}

func TestTable_Rules(t *testing.T) {
	t.Parallel()

	rules := filtertest.NewURLRules(t, testRules...)
	tbl := lookup.NewWithRules(rules)

	assert.Equal(t, rules, tbl.Rules())
}

func TestTable_bloomGrowth(t *testing.T) {
	t.Parallel()

	const n = 3000

	tbl := lookup.New()
	for i := range n {
		tbl.AddRule(filtertest.NewURLRule(t, fmt.Sprintf("*$domain=host-%d.example", i)))
	}

	require.Equal(t, n, tbl.Len())

	for _, i := range []int{0, n / 2, n - 1} {
		host := fmt.Sprintf("www.host-%d.example", i)
		req := filter.NewRequest("https://cdn.example/a.js", "https://"+host+"/", filter.TypeScript)

		found := tbl.FindRules(req)
		require.Len(t, found, 1)

		assert.Equal(t, fmt.Sprintf("*$domain=host-%d.example", i), string(found[0].Text()))
	}
}

// containsKey returns true if rules contain a rule equal to r.
func containsKey(rules []*rule.URLRule, r *rule.URLRule) (ok bool) {
	for _, other := range rules {
		if rule.KeyOf(other) == rule.KeyOf(r) {
			return true
		}
	}

	return false
}

// ruleSink is used in benchmarks to prevent compiler optimizations.
var ruleSink []*rule.URLRule

func BenchmarkTable_FindRules(b *testing.B) {
	rules := make([]*rule.URLRule, 0, 10_000)
	for i := range 10_000 {
		rules = append(rules, filtertest.NewURLRule(b, fmt.Sprintf("||ads-%d.example^", i)))
	}

	tbl := lookup.NewWithRules(rules)
	req := filter.NewRequest("https://ads-5000.example/x.js", filtertest.URLSite, filter.TypeScript)

	b.ReportAllocs()
	for b.Loop() {
		ruleSink = tbl.FindRules(req)
	}

	require.Len(b, ruleSink, 1)
}
