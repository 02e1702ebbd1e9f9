package requestfilter

import (
	"context"
	"time"
)

// Metrics is an interface that is used for the collection of the request
// filter statistics.
type Metrics interface {
	// SetRulesCount sets the number of rules in the category.
	SetRulesCount(ctx context.Context, category string, n int)

	// ObserveReload records a reload that took dur.  err is the result of the
	// reload.
	ObserveReload(ctx context.Context, dur time.Duration, err error)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// SetRulesCount implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetRulesCount(_ context.Context, _ string, _ int) {}

// ObserveReload implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveReload(_ context.Context, _ time.Duration, _ error) {}
