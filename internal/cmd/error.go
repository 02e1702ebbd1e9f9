package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/advblocker/advfilter/internal/errcoll"
)

// reportPanics reports all panics in Main using the Sentry client, logs them,
// and repanics.  It should be called in a defer.
func reportPanics(ctx context.Context, errColl errcoll.Interface, l *slog.Logger) {
	v := recover()
	if v == nil {
		return
	}

	var err error
	if recErr, ok := v.(error); ok {
		err = fmt.Errorf("panic in main: %w", recErr)
	} else {
		err = fmt.Errorf("panic in main: %v", v)
	}

	errColl.Collect(ctx, err)
	if f, ok := errColl.(errcoll.ErrorFlushCollector); ok {
		f.Flush()
	}

	slogutil.PrintStack(ctx, l, slog.LevelError)

	panic(v)
}
