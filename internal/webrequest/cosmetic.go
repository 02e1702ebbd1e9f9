package webrequest

import (
	"context"
	"strings"

	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
)

// SelectorsAndScripts is the cosmetic payload applied to a page by the content
// script.
type SelectorsAndScripts struct {
	// Selectors is the stylesheet for the page.  It's nil if the selectors
	// weren't retrieved.
	Selectors *requestfilter.Selectors `json:"selectors,omitempty"`

	// Scripts is the JavaScript code to inject into the page.
	Scripts string `json:"scripts"`

	// CollapseAllElements is true if the content script must check every
	// element of the page for collapsing.
	CollapseAllElements bool `json:"collapseAllElements"`

	// RequestFilterReady is false if the filtering engine isn't ready yet.
	RequestFilterReady bool `json:"requestFilterReady"`
}

// GetSelectorsAndScripts returns the cosmetic payload for the document at
// documentURL in the tab.  opts are the parts of the stylesheet to retrieve;
// the scripts are only retrieved if retrieveScripts is true.  The $elemhide,
// $generichide, and $jsinject exceptions for the document are applied.
func (s *Service) GetSelectorsAndScripts(
	ctx context.Context,
	tabID int,
	documentURL string,
	opts requestfilter.CSSOptions,
	retrieveScripts bool,
) (res *SelectorsAndScripts) {
	res = &SelectorsAndScripts{
		RequestFilterReady: s.filter.IsReady(),
	}

	if !res.RequestFilterReady {
		return res
	}

	wl := s.frameWhitelistRule(tabID)
	if wl == nil {
		mainFrameURL := s.tabs.get(tabID).mainFrameURL()
		wl = s.filter.FindWhiteListRule(documentURL, mainFrameURL, filter.TypeDocument)
	}

	elemhide := wl != nil && wl.IsElemhide()
	if !elemhide && wl != nil && wl.IsGenerichide() {
		opts |= requestfilter.GenericHideApplied
	}

	retrieveSelectors := !elemhide &&
		opts&(requestfilter.RetrieveTraditionalCSS|requestfilter.RetrieveExtCSS) != 0

	if wl != nil && wl.IsDocumentWhitelist() {
		s.logger.DebugContext(ctx, "cosmetics disabled", "url", documentURL, "rule", wl.Text())

		return res
	}

	if retrieveSelectors {
		res.CollapseAllElements = s.filter.ShouldCollapseAllElements()
		res.Selectors = s.filter.GetSelectorsForURL(documentURL, opts)
	}

	if retrieveScripts && (wl == nil || !wl.IsJSInject()) {
		res.Scripts = joinScripts(s.filter.GetScriptsForURL(documentURL, s.debugScripts))
	}

	return res
}

// joinScripts returns the bodies of scripts joined into a single script.
func joinScripts(scripts []requestfilter.Script) (s string) {
	b := &strings.Builder{}
	for i, sc := range scripts {
		if i > 0 {
			b.WriteString("\n")
		}

		b.WriteString(sc.Script)
	}

	return b.String()
}
