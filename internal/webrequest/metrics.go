package webrequest

import "context"

// VerdictKind is the kind of a verdict for the metrics.
type VerdictKind string

// VerdictKind values.
const (
	VerdictKindAllow    VerdictKind = "allow"
	VerdictKindCancel   VerdictKind = "cancel"
	VerdictKindRedirect VerdictKind = "redirect"
	VerdictKindHeaders  VerdictKind = "headers"
)

// Metrics is an interface that is used for the collection of the request
// adapter statistics.
type Metrics interface {
	// IncrementVerdicts increments the number of the verdicts of the kind.
	IncrementVerdicts(ctx context.Context, kind VerdictKind)

	// SetContextsCount sets the number of the stored request contexts.
	SetContextsCount(ctx context.Context, n int)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// IncrementVerdicts implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementVerdicts(_ context.Context, _ VerdictKind) {}

// SetContextsCount implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetContextsCount(_ context.Context, _ int) {}
