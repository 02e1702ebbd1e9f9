package filterlist

import (
	"context"
	"time"
)

// Metrics is the interface for metrics of filter lists.
type Metrics interface {
	// SetListStatus sets the status of a list by its id.  If err is not nil,
	// updTime and ruleCount are ignored.
	SetListStatus(ctx context.Context, id string, updTime time.Time, ruleCount int, err error)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// SetListStatus implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetListStatus(_ context.Context, _ string, _ time.Time, _ int, _ error) {}
