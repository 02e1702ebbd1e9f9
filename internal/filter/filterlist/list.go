package filterlist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/rule"
)

// ctxCheckInterval is the number of lines after which the context is checked.
const ctxCheckInterval = 4096

// List is a parsed filter list.
type List struct {
	// Metadata is the metadata from the header of the list.  It's never nil.
	Metadata *Metadata

	// Rules are the rules of the list in the order of declaration.
	Rules []rule.Rule

	// Dropped is the number of lines that couldn't be parsed.
	Dropped int

	// ID is the ID of the list.
	ID filter.ListID
}

// Parse parses the text of the list with the given id.  The lines that can't
// be parsed are logged and dropped.  err is only returned if ctx is canceled.
func Parse(ctx context.Context, logger *slog.Logger, id filter.ListID, text string) (l *List, err error) {
	l = &List{
		Metadata: ParseMetadata(text),
		ID:       id,
	}

	lineNum := 0
	for line := range strings.Lines(text) {
		lineNum++
		if lineNum%ctxCheckInterval == 0 {
			if err = ctx.Err(); err != nil {
				return nil, fmt.Errorf("parsing list %s: %w", id, err)
			}
		}

		r, parseErr := rule.New(line, id)
		if parseErr != nil {
			logger.DebugContext(ctx, "dropping rule", "list", id, "line", lineNum, slogutil.KeyError, parseErr)
			l.Dropped++

			continue
		} else if r != nil {
			l.Rules = append(l.Rules, r)
		}
	}

	return l, nil
}
