package replace_test

import (
	"testing"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/filtertest"
	"github.com/advblocker/advfilter/internal/filter/internal/replace"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/stretchr/testify/assert"
)

// Common rules for tests.
const (
	ruleAds      = "||" + filtertest.HostSite + "^$replace=/ads/news/g"
	ruleBanner   = "||" + filtertest.HostSite + "^$replace=/banner//"
	ruleAllowAds = "@@||" + filtertest.HostSite + "^$replace=/ads/news/g"
	ruleAllowAll = "@@||" + filtertest.HostSite + "^$replace"
)

// ruleTexts returns the texts of rules.
func ruleTexts(rules []*rule.URLRule) (texts []string) {
	for _, r := range rules {
		texts = append(texts, string(r.Text()))
	}

	return texts
}

func TestFilter_FindReplaceRules(t *testing.T) {
	t.Parallel()

	const body = "ads banner ads"

	testCases := []struct {
		name     string
		rules    []string
		want     []string
		wantBody string
	}{{
		name:     "no_rules",
		rules:    nil,
		want:     nil,
		wantBody: body,
	}, {
		name:     "block",
		rules:    []string{ruleAds, ruleBanner},
		want:     []string{ruleAds, ruleBanner},
		wantBody: "news  news",
	}, {
		name:     "allow_same_value",
		rules:    []string{ruleAds, ruleBanner, ruleAllowAds},
		want:     []string{ruleAllowAds, ruleBanner},
		wantBody: "ads  ads",
	}, {
		name:     "allow_all",
		rules:    []string{ruleAds, ruleBanner, ruleAllowAll},
		want:     []string{ruleAllowAll},
		wantBody: body,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := replace.New(filtertest.NewURLRules(t, tc.rules...))
			req := filter.NewRequest(filtertest.URLSitePage, filtertest.URLSite, filter.TypeDocument)

			got := f.FindReplaceRules(req)
			assert.Equal(t, tc.want, ruleTexts(got))
			assert.Equal(t, tc.wantBody, replace.Apply(got, body))
		})
	}
}
