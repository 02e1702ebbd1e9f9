package rulestat

import "context"

// Metrics is an interface that is used for the collection of the rule hit
// statistics.
type Metrics interface {
	// SetPendingHits sets the number of the rule hits collected since the last
	// upload.
	SetPendingHits(ctx context.Context, hits int64)

	// ObserveUpload records an upload of the statistics of n rules.  If err is
	// not nil, n is the number of rules lost with the failed upload.
	ObserveUpload(ctx context.Context, n int, err error)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// SetPendingHits implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetPendingHits(_ context.Context, _ int64) {}

// ObserveUpload implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveUpload(_ context.Context, _ int, _ error) {}
