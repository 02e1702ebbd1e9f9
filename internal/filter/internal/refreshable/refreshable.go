// Package refreshable loads the texts of filter lists from files and URLs and
// keeps the downloaded texts in cache files.
package refreshable

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/c2h5oh/datasize"
	renameio "github.com/google/renameio/v2"
)

// ErrEmptyText is returned when the downloaded list is empty.  The cached text
// is kept in that case.
const ErrEmptyText errors.Error = "empty text, not resetting"

// Refreshable is the source of the text of a single filter list.
type Refreshable struct {
	logger    *slog.Logger
	http      *advhttp.Client
	clock     timeutil.Clock
	url       *url.URL
	cachePath string
	staleness time.Duration
	maxSize   datasize.ByteSize
	id        filter.ListID
}

// Config is the configuration structure for a refreshable.
type Config struct {
	// Logger is used to log the refreshes.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to check the staleness of the cache file.  It must not be
	// nil.
	Clock timeutil.Clock

	// URL is the URL of the list.  It must be either a file URL or an HTTP(S)
	// URL.
	URL *url.URL

	// CachePath is the path to the file containing the downloaded text.  It's
	// not used for file URLs.
	CachePath string

	// Staleness is the time after which the cache file is downloaded again.
	Staleness time.Duration

	// Timeout is the timeout of the HTTP requests.
	Timeout time.Duration

	// MaxSize is the maximum size of the downloaded text.
	MaxSize datasize.ByteSize

	// ID is the ID of the list.
	ID filter.ListID
}

// New returns a new refreshable.  c must not be nil.
func New(c *Config) (f *Refreshable, err error) {
	if c.URL == nil {
		return nil, fmt.Errorf("list %s: url: %w", c.ID, errors.ErrNoValue)
	} else if s := c.URL.Scheme; !strings.EqualFold(s, urlutil.SchemeFile) &&
		!urlutil.IsValidHTTPURLScheme(s) {
		return nil, fmt.Errorf("list %s: bad url scheme %q", c.ID, s)
	}

	return &Refreshable{
		logger: c.Logger,
		http: advhttp.NewClient(&advhttp.ClientConfig{
			Timeout: c.Timeout,
		}),
		clock:     c.Clock,
		url:       c.URL,
		cachePath: c.CachePath,
		staleness: c.Staleness,
		maxSize:   c.MaxSize,
		id:        c.ID,
	}, nil
}

// ID returns the ID of the list.
func (f *Refreshable) ID() (id filter.ListID) {
	return f.id
}

// Refresh returns the text of the list.  If acceptStale is true, the cache
// file is used regardless of its staleness, if it exists.
func (f *Refreshable) Refresh(ctx context.Context, acceptStale bool) (text string, err error) {
	defer func() { err = errors.Annotate(err, "list %s: %w", f.id) }()

	if strings.EqualFold(f.url.Scheme, urlutil.SchemeFile) {
		return f.refreshFromFileOnly(ctx)
	}

	return f.useCachedOrRefreshFromURL(ctx, acceptStale)
}

// refreshFromFileOnly reads the file from the file URL of f.
func (f *Refreshable) refreshFromFileOnly(ctx context.Context) (text string, err error) {
	filePath := f.url.Path
	f.logger.DebugContext(ctx, "using data from file", "path", filePath)

	text, ok, err := f.readFile(filePath, true, time.Time{})
	if err != nil {
		return "", fmt.Errorf("reading file %q: %w", filePath, err)
	} else if !ok {
		return "", fmt.Errorf("reading file %q: %w", filePath, os.ErrNotExist)
	}

	return text, nil
}

// useCachedOrRefreshFromURL returns the text from the cache file, if it's
// fresh or acceptStale is true, and downloads it otherwise.
func (f *Refreshable) useCachedOrRefreshFromURL(
	ctx context.Context,
	acceptStale bool,
) (text string, err error) {
	now := f.clock.Now()

	text, ok, err := f.readFile(f.cachePath, acceptStale, now)
	if err != nil {
		return "", fmt.Errorf("reading cache file %q: %w", f.cachePath, err)
	} else if ok {
		f.logger.DebugContext(ctx, "using cached data", "path", f.cachePath)

		return text, nil
	}

	ru := urlutil.RedactUserinfo(f.url)
	f.logger.InfoContext(ctx, "refreshing from url", "url", ru)

	text, err = f.refreshFromURL(ctx, now)
	if err != nil {
		return "", fmt.Errorf("refreshing from url %q: %w", ru, err)
	}

	return text, nil
}

// readFile returns the content of the file at filePath.  ok is false if the
// file doesn't exist or if acceptStale is false and the modification time of
// the file shows that it's stale relative to now.
func (f *Refreshable) readFile(
	filePath string,
	acceptStale bool,
	now time.Time,
) (text string, ok bool, err error) {
	// #nosec G304 -- Assume that filePath is either the cache path from the
	// configuration or the path from a file URL.
	file, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	defer func() { err = errors.WithDeferred(err, file.Close()) }()

	if !acceptStale {
		fi, statErr := file.Stat()
		if statErr != nil {
			return "", false, fmt.Errorf("stat: %w", statErr)
		}

		if !fi.ModTime().Add(f.staleness).After(now) {
			return "", false, nil
		}
	}

	b := &strings.Builder{}
	_, err = io.Copy(b, file)
	if err != nil {
		return "", false, fmt.Errorf("reading: %w", err)
	}

	return b.String(), true, nil
}

// refreshFromURL downloads the list, writes it to the cache file, and sets the
// modification time of the file to updTime.
func (f *Refreshable) refreshFromURL(ctx context.Context, updTime time.Time) (text string, err error) {
	tmpDir := renameio.TempDir(filepath.Dir(f.cachePath))
	tmpFile, err := renameio.TempFile(tmpDir, f.cachePath)
	if err != nil {
		return "", fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() { err = f.withDeferredTmpCleanup(err, tmpFile, updTime) }()

	resp, err := f.http.Get(ctx, f.url)
	if err != nil {
		return "", fmt.Errorf("requesting: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	f.logger.DebugContext(
		ctx,
		"got data from url",
		"code", resp.StatusCode,
		"content-length", resp.ContentLength,
		"server", resp.Header.Get(httphdr.Server),
	)

	err = advhttp.CheckStatus(resp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	b := &strings.Builder{}
	mw := io.MultiWriter(b, tmpFile)
	_, err = io.Copy(mw, ioutil.LimitReader(resp.Body, f.maxSize.Bytes()))
	if err != nil {
		return "", advhttp.WrapServerError(fmt.Errorf("reading into file: %w", err), resp)
	}

	if b.Len() == 0 {
		return "", advhttp.WrapServerError(ErrEmptyText, resp)
	}

	return b.String(), nil
}

// withDeferredTmpCleanup removes the temporary file if returned is not nil and
// replaces the cache file with it otherwise.
func (f *Refreshable) withDeferredTmpCleanup(
	returned error,
	tmpFile *renameio.PendingFile,
	updTime time.Time,
) (err error) {
	if returned != nil {
		return errors.WithDeferred(returned, tmpFile.Cleanup())
	}

	err = tmpFile.CloseAtomicallyReplace()
	if err != nil {
		return errors.WithDeferred(nil, err)
	}

	return errors.WithDeferred(nil, os.Chtimes(f.cachePath, updTime, updTime))
}
