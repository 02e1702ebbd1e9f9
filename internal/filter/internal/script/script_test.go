package script_test

import (
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/filtertest"
	"github.com/advblocker/advfilter/internal/filter/internal/script"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newScriptRule is a helper that parses text as a script rule of list id.
func newScriptRule(tb testing.TB, text string, id filter.ListID) (r *rule.ScriptRule) {
	tb.Helper()

	parsed, err := rule.New(text, id)
	require.NoError(tb, err)

	return testutil.RequireTypeAssert[*rule.ScriptRule](tb, parsed)
}

// scriptTexts returns the rule texts of results.
func scriptTexts(results []script.Result) (texts []string) {
	for _, res := range results {
		texts = append(texts, string(res.Rule.Text()))
	}

	return texts
}

// testDomains are the domains the scripts are built for in the tests.
var testDomains = []string{
	filtertest.HostSite,
	filtertest.HostSiteSub,
	filtertest.HostOther,
	filtertest.HostAds,
}

// buildAll returns the outputs of f.BuildScript for every test domain.
func buildAll(f *script.Filter) (all [][]script.Result) {
	for _, d := range testDomains {
		all = append(all, f.BuildScript(d, false))
	}

	return all
}

func TestFilter_BuildScript(t *testing.T) {
	t.Parallel()

	f := script.New([]*rule.ScriptRule{
		newScriptRule(t, filtertest.RuleScriptSiteStr, filtertest.ListID),
		newScriptRule(t, "#%#window.generic = 1;", filtertest.ListIDCustom),
		newScriptRule(t, "~"+filtertest.HostSite+"#%#window.notSite = 1;", filtertest.ListID),
	})

	got := f.BuildScript(filtertest.HostSiteSub, false)
	require.Len(t, got, 2)

	assert.Equal(t, filter.RuleText(filtertest.RuleScriptSiteStr), got[0].Rule.Text())
	assert.Equal(t, script.SourceLocal, got[0].ScriptSource)
	assert.Equal(t, "try {\nwindow.ads = false;\n} catch (ex) { }", got[0].Script)
	assert.Equal(t, script.SourceRemote, got[1].ScriptSource)

	got = f.BuildScript(filtertest.HostOther, true)
	assert.Equal(t, []string{"#%#window.generic = 1;", "~" + filtertest.HostSite + "#%#window.notSite = 1;"}, scriptTexts(got))
	assert.Contains(t, got[0].Script, "console.error(")
}

func TestFilter_exception(t *testing.T) {
	t.Parallel()

	scriptRule := newScriptRule(t, filtertest.RuleScriptSiteStr, filtertest.ListID)
	excRule := newScriptRule(t, filtertest.RuleScriptExceptionStr, filtertest.ListID)

	t.Run("exception_after_script", func(t *testing.T) {
		t.Parallel()

		f := script.New([]*rule.ScriptRule{scriptRule, excRule})

		assert.Len(t, f.BuildScript(filtertest.HostSite, false), 1)
		assert.Empty(t, f.BuildScript(filtertest.HostSiteSub, false))
		assert.Equal(t, []string{filtertest.HostSiteSub}, f.RestrictedDomains(scriptRule))
	})

	t.Run("exception_before_script", func(t *testing.T) {
		t.Parallel()

		f := script.New([]*rule.ScriptRule{excRule, scriptRule})

		assert.Len(t, f.BuildScript(filtertest.HostSite, false), 1)
		assert.Empty(t, f.BuildScript(filtertest.HostSiteSub, false))
	})

	t.Run("different_body", func(t *testing.T) {
		t.Parallel()

		other := newScriptRule(t, filtertest.HostSite+"#%#window.other = 1;", filtertest.ListID)
		f := script.New([]*rule.ScriptRule{other, excRule})

		assert.Len(t, f.BuildScript(filtertest.HostSiteSub, false), 1)
		assert.Empty(t, f.RestrictedDomains(other))
	})
}

func TestFilter_RemoveRule_rollback(t *testing.T) {
	t.Parallel()

	scriptRule := newScriptRule(t, filtertest.RuleScriptSiteStr, filtertest.ListID)
	excRule := newScriptRule(t, filtertest.RuleScriptExceptionStr, filtertest.ListID)

	// Another exception restricting the same domain must keep the domain
	// restricted after the first one is removed.
	excOther := newScriptRule(t, filtertest.HostSiteSub+"#@%#window.ads = false;", filtertest.ListIDCustom)

	f := script.New([]*rule.ScriptRule{
		scriptRule,
		newScriptRule(t, "#%#window.generic = 1;", filtertest.ListID),
	})

	before := buildAll(f)

	f.AddRule(excRule)
	require.NotEqual(t, before, buildAll(f))

	f.RemoveRule(excRule)
	assert.Equal(t, before, buildAll(f))
	assert.Empty(t, f.RestrictedDomains(scriptRule))

	f.AddRule(excRule)
	f.AddRule(excOther)
	f.RemoveRule(excRule)
	assert.Len(t, f.BuildScript(filtertest.HostSiteSub, false), 1)
	assert.Equal(t, []string{filtertest.HostSiteSub}, f.RestrictedDomains(scriptRule))

	f.RemoveRule(excOther)
	assert.Equal(t, before, buildAll(f))
	assert.Equal(t, 2, f.Len())

	// Removing an absent exception is a no-op.
	f.RemoveRule(excOther)
	assert.Equal(t, before, buildAll(f))
}
