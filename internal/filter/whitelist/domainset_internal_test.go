package whitelist

import (
	"testing"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainSet_find(t *testing.T) {
	t.Parallel()

	s, err := newDomainSet([]string{"first.example", " Second.Example. ", "", "first.example"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first.example", "second.example"}, s.domains)

	testCases := []struct {
		name     string
		host     string
		wantText filter.RuleText
	}{{
		name:     "first",
		host:     "first.example",
		wantText: "@@//first.example$document",
	}, {
		name:     "second_subdomain",
		host:     "www.second.example",
		wantText: "@@//second.example$document",
	}, {
		name:     "other",
		host:     "third.example",
		wantText: "",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := s.find(tc.host)
			if tc.wantText == "" {
				assert.Nil(t, r)

				return
			}

			require.NotNil(t, r)

			assert.Equal(t, tc.wantText, r.Text())
		})
	}
}
