package errcoll

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"
)

// WriterErrorCollector is an [Interface] implementation that writes errors to
// a writer.
type WriterErrorCollector struct {
	w io.Writer
}

// NewWriterErrorCollector returns a new properly initialized
// *WriterErrorCollector.
func NewWriterErrorCollector(w io.Writer) (c *WriterErrorCollector) {
	return &WriterErrorCollector{
		w: w,
	}
}

// type check
var _ Interface = (*WriterErrorCollector)(nil)

// Collect implements the [Interface] interface for *WriterErrorCollector.
func (c *WriterErrorCollector) Collect(ctx context.Context, err error) {
	_, _ = fmt.Fprintf(
		c.w,
		"%s: %s: caught error: %s %v\n",
		time.Now(),
		caller(2),
		err,
		tagsFromContext(ctx),
	)
}

// caller returns the position of the caller depth frames above as a string.
func caller(depth int) (pos string) {
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		return "<position unknown>"
	}

	return fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
}
