package content_test

import (
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/filter/internal/content"
	"github.com/advblocker/advfilter/internal/filter/internal/filtertest"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newContentRules is a helper that parses texts as content rules.
func newContentRules(tb testing.TB, texts ...string) (rules []*rule.ContentRule) {
	tb.Helper()

	for _, r := range filtertest.NewRules(tb, texts...) {
		rules = append(rules, testutil.RequireTypeAssert[*rule.ContentRule](tb, r))
	}

	return rules
}

func TestFilter_RulesForDomain(t *testing.T) {
	t.Parallel()

	const (
		ruleBanner = filtertest.HostSite + `$$div[class="banner"]`
		ruleScript = `$$script[tag-content="adsbygoogle"]`
		ruleExc    = filtertest.HostSiteSub + `$@$div[class="banner"]`
	)

	f := content.New(newContentRules(t, ruleBanner, ruleScript, ruleExc))
	require.Equal(t, 3, f.Len())

	rules := f.RulesForDomain(filtertest.HostSite)
	require.Len(t, rules, 2)

	banner := &rule.Element{
		Attributes: map[string]string{"class": "banner top"},
		TagName:    "div",
	}
	scriptEl := &rule.Element{
		TagName:   "script",
		InnerHTML: "(adsbygoogle = window.adsbygoogle || []).push({});",
	}
	plain := &rule.Element{
		TagName:   "div",
		InnerHTML: "text",
	}

	assert.Equal(t, rules[0], content.Match(rules, banner))
	assert.Equal(t, rules[1], content.Match(rules, scriptEl))
	assert.Nil(t, content.Match(rules, plain))

	rules = f.RulesForDomain(filtertest.HostSiteSub)
	require.Len(t, rules, 1)

	assert.Nil(t, content.Match(rules, banner))

	f.RemoveRule(newContentRules(t, ruleScript)[0])
	assert.Nil(t, f.RulesForDomain(filtertest.HostOther))
}
