// Package rulestat contains the filtering rule statistics collector and API.
package rulestat

import (
	"context"

	"github.com/advblocker/advfilter/internal/filter"
)

// Hit is a single application of a rule to a request.
type Hit struct {
	// Rule is the text of the applied rule.
	Rule filter.RuleText

	// URL is the URL of the request.
	URL string

	// ListID is the ID of the list of the rule.
	ListID filter.ListID

	// TabID is the ID of the browser tab the request was made from.
	TabID int
}

// Interface is an ephemeral storage of the filtering rule list statistics
// interface.
//
// All methods must be safe for concurrent use.
type Interface interface {
	// Collect records hit.  hit must not be nil.
	Collect(ctx context.Context, hit *Hit)
}

// type check
var _ Interface = Empty{}

// Empty is an Interface implementation that does nothing.
type Empty struct{}

// Collect implements the Interface interface for Empty.
func (Empty) Collect(_ context.Context, _ *Hit) {}
