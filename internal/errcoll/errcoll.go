// Package errcoll contains implementations of error collectors, most notably
// Sentry.
package errcoll

import (
	"context"
	"log/slog"
	"maps"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Interface is the interface for error collectors that process information
// about errors, possibly sending them to a remote location.
type Interface interface {
	Collect(ctx context.Context, err error)
}

// Collect is a helper for reporting non-critical errors.  It writes the error
// into the log and also into errColl.
func Collect(ctx context.Context, errColl Interface, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, slogutil.KeyError, err)
	errColl.Collect(ctx, err)
}

// Empty is an [Interface] implementation that does nothing.
type Empty struct{}

// type check
var _ Interface = Empty{}

// Collect implements the [Interface] interface for Empty.
func (Empty) Collect(_ context.Context, _ error) {}

// tagsCtxKey is the context key for the additional tags of the errors.
type tagsCtxKey struct{}

// ContextWithTag returns a copy of ctx with the additional tag that is sent
// along with the errors collected with that context.
func ContextWithTag(ctx context.Context, key, val string) (withTag context.Context) {
	tags, _ := ctx.Value(tagsCtxKey{}).(map[string]string)
	tags = maps.Clone(tags)
	if tags == nil {
		tags = map[string]string{}
	}

	tags[key] = val

	return context.WithValue(ctx, tagsCtxKey{}, tags)
}

// tagsFromContext returns the additional tags from ctx.  tags must not be
// modified.
func tagsFromContext(ctx context.Context) (tags map[string]string) {
	tags, _ = ctx.Value(tagsCtxKey{}).(map[string]string)

	return tags
}
