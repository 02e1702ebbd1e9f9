// Package advtest contains simple mocks for common interfaces and other test
// utilities.
package advtest

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
)

// Timeout is the common timeout for tests.
const Timeout = 1 * time.Second

// ContextWithTimeout is a helper that creates a new context with [Timeout] and
// the discarding logger.  The context is canceled at the end of the test.
func ContextWithTimeout(tb testing.TB) (ctx context.Context) {
	tb.Helper()

	ctx = testutil.ContextWithTimeout(tb, Timeout)

	return slogutil.ContextWithLogger(ctx, slogutil.NewDiscardLogger())
}

// NewErrorCollector returns an *ErrorCollector that fails the test if any
// error is collected.
func NewErrorCollector(tb testing.TB) (c *ErrorCollector) {
	tb.Helper()

	return &ErrorCollector{
		OnCollect: func(_ context.Context, err error) {
			tb.Errorf("unexpected error: %s", err)
		},
	}
}
