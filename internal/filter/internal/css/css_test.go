package css_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/filter/internal/css"
	"github.com/advblocker/advfilter/internal/filter/internal/filtertest"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCSSRules is a helper that parses texts as CSS rules.
func newCSSRules(tb testing.TB, texts ...string) (rules []*rule.CSSRule) {
	tb.Helper()

	for _, r := range filtertest.NewRules(tb, texts...) {
		rules = append(rules, testutil.RequireTypeAssert[*rule.CSSRule](tb, r))
	}

	return rules
}

func TestFilter_BuildCSS(t *testing.T) {
	t.Parallel()

	f := css.New(newCSSRules(
		t,
		filtertest.RuleCSSGenericStr,
		filtertest.RuleCSSSiteStr,
		filtertest.HostSite+"#?#.feed:has(.sponsored)",
		filtertest.HostSite+"#$#body { overflow: auto!important; }",
		filtertest.HostSite+"##.promo:contains(Buy)",
		filtertest.HostSiteSub+"#@#.site-ad",
	))

	testCases := []struct {
		want   *css.Selectors
		name   string
		domain string
		opts   css.Options
	}{{
		want: &css.Selectors{
			CSS: []string{
				"body { overflow: auto!important; }",
				".banner, .site-ad { display: none!important; }",
			},
			ExtendedCSS: []string{
				".feed:has(.sponsored), .promo:contains(Buy) { display: none!important; }",
			},
		},
		name:   "all",
		domain: filtertest.HostSite,
		opts:   css.Default,
	}, {
		want: &css.Selectors{
			CSS: []string{
				"body { overflow: auto!important; }",
				".site-ad { display: none!important; }",
			},
			ExtendedCSS: []string{},
		},
		name:   "generichide_traditional",
		domain: filtertest.HostSite,
		opts:   css.RetrieveTraditionalCSS | css.GenericHideApplied,
	}, {
		want: &css.Selectors{
			CSS: []string{
				"body { overflow: auto!important; }",
				".banner { display: none!important; }",
			},
			ExtendedCSS: []string{
				".feed:has(.sponsored), .promo:contains(Buy) { display: none!important; }",
			},
		},
		name:   "exception",
		domain: filtertest.HostSiteSub,
		opts:   css.Default,
	}, {
		want: &css.Selectors{
			CSS:         []string{},
			ExtendedCSS: []string{},
		},
		name:   "nothing",
		domain: filtertest.HostSite,
		opts:   css.GenericHideApplied,
	}, {
		want: &css.Selectors{
			CSS:         []string{".banner { display: none!important; }"},
			ExtendedCSS: []string{},
		},
		name:   "other",
		domain: filtertest.HostOther,
		opts:   css.Default,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, f.BuildCSS(tc.domain, tc.opts))
		})
	}
}

func TestFilter_BuildCSS_chunks(t *testing.T) {
	t.Parallel()

	const n = 120

	texts := make([]string, 0, n)
	for i := range n {
		texts = append(texts, fmt.Sprintf("##.ad-%d", i))
	}

	f := css.New(newCSSRules(t, texts...))
	require.Equal(t, n, f.Len())

	got := f.BuildCSS(filtertest.HostSite, css.Default)
	require.Len(t, got.CSS, 3)

	assert.Equal(t, 50, strings.Count(got.CSS[0], ".ad-"))
	assert.Equal(t, 50, strings.Count(got.CSS[1], ".ad-"))
	assert.Equal(t, 20, strings.Count(got.CSS[2], ".ad-"))
	assert.True(t, strings.HasPrefix(got.CSS[2], ".ad-100, .ad-101"))
}
