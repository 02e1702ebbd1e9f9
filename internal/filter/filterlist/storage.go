package filterlist

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/errcoll"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/internal/refreshable"
	"github.com/advblocker/advfilter/internal/filter/rule"
	"github.com/c2h5oh/datasize"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateURL is returned when a list with the same URL already exists.
const ErrDuplicateURL errors.Error = "duplicate url"

// Reloader is the filter into which the rules of the lists are loaded.
type Reloader interface {
	// Reload replaces all rules of the filter with rules.
	Reload(ctx context.Context, rules []rule.Rule) (err error)
}

// ListConfig is the configuration of a single filter list.
type ListConfig struct {
	// URL is the URL of the list.  It must be either a file URL or an HTTP(S)
	// URL.
	URL *url.URL

	// ID is the unique ID of the list.
	ID filter.ListID

	// Enabled shows if the rules of the list are used.
	Enabled bool
}

// Config is the configuration structure for the list storage.
type Config struct {
	// Logger is used to log the refreshes.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to get the refresh times.  It must not be nil.
	Clock timeutil.Clock

	// Metrics is used for the collection of the list statistics.  It must not
	// be nil.
	Metrics Metrics

	// ErrColl is used to collect the refresh errors.  It must not be nil.
	ErrColl errcoll.Interface

	// Filter receives the rules of the enabled lists after every refresh.  It
	// must not be nil.
	Filter Reloader

	// Lists are the lists in the order of declaration, which is also the order
	// of their rules in the filter.
	Lists []*ListConfig

	// CacheDir is the directory for the cached lists.  It must exist.
	CacheDir string

	// Staleness is the time after which a cached list is downloaded again.
	Staleness time.Duration

	// Timeout is the timeout of the downloads.
	Timeout time.Duration

	// MaxSize is the maximum size of a list.
	MaxSize datasize.ByteSize

	// MaxConcurrent is the maximum number of the simultaneous downloads.  It
	// must be positive.
	MaxConcurrent int
}

// Status is the status of a filter list.
type Status struct {
	// Metadata is the metadata of the last loaded version of the list.  It's
	// nil if the list has never been loaded.
	Metadata *Metadata `json:"metadata"`

	// LastRefresh is the time of the last refresh attempt.
	LastRefresh time.Time `json:"last_refresh"`

	// LastError is the error of the last refresh attempt, if any.
	LastError string `json:"last_error,omitempty"`

	// URL is the URL of the list without the user information.
	URL string `json:"url"`

	// RulesCount is the number of the rules of the last loaded version.
	RulesCount int `json:"rules_count"`

	// Dropped is the number of the bad lines of the last loaded version.
	Dropped int `json:"dropped"`

	// ID is the ID of the list.
	ID filter.ListID `json:"id"`

	// Enabled shows if the rules of the list are used.
	Enabled bool `json:"enabled"`
}

// source is a single list within the storage.
type source struct {
	refr   *refreshable.Refreshable
	list   *List
	status *Status
	url    *url.URL
}

// Storage is the storage of the filter lists.  It loads the lists, keeps the
// last good version of each, and reloads the filter with their rules.
type Storage struct {
	logger        *slog.Logger
	clock         timeutil.Clock
	metrics       Metrics
	errColl       errcoll.Interface
	filter        Reloader
	cacheDir      string
	staleness     time.Duration
	timeout       time.Duration
	maxSize       datasize.ByteSize
	maxConcurrent int

	// refreshMu serializes the refreshes.
	refreshMu *sync.Mutex

	// mu protects sources.
	mu      *sync.RWMutex
	sources []*source
}

// New returns a new list storage.  The lists aren't loaded until the first
// refresh.  c must not be nil.
func New(c *Config) (s *Storage, err error) {
	s = &Storage{
		logger:        c.Logger,
		clock:         c.Clock,
		metrics:       c.Metrics,
		errColl:       c.ErrColl,
		filter:        c.Filter,
		cacheDir:      c.CacheDir,
		staleness:     c.Staleness,
		timeout:       c.Timeout,
		maxSize:       c.MaxSize,
		maxConcurrent: c.MaxConcurrent,
		refreshMu:     &sync.Mutex{},
		mu:            &sync.RWMutex{},
	}

	var errs []error
	for i, lc := range c.Lists {
		if s.find(lc.ID) != -1 {
			errs = append(errs, fmt.Errorf("lists: at index %d: duplicate id %s", i, lc.ID))

			continue
		}

		var src *source
		src, err = s.newSource(lc)
		if err != nil {
			errs = append(errs, fmt.Errorf("lists: at index %d: %w", i, err))

			continue
		}

		s.sources = append(s.sources, src)
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, fmt.Errorf("creating list storage: %w", err)
	}

	return s, nil
}

// newSource returns a new source for the list.
func (s *Storage) newSource(lc *ListConfig) (src *source, err error) {
	refr, err := refreshable.New(&refreshable.Config{
		Logger:    s.logger.With("list", lc.ID),
		Clock:     s.clock,
		URL:       lc.URL,
		CachePath: filepath.Join(s.cacheDir, lc.ID.String()+".txt"),
		Staleness: s.staleness,
		Timeout:   s.timeout,
		MaxSize:   s.maxSize,
		ID:        lc.ID,
	})
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	return &source{
		refr: refr,
		status: &Status{
			URL:     urlutil.RedactUserinfo(lc.URL).String(),
			ID:      lc.ID,
			Enabled: lc.Enabled,
		},
		url: lc.URL,
	}, nil
}

// find returns the index of the source with id or -1.  s.mu must be locked, if
// necessary.
func (s *Storage) find(id filter.ListID) (i int) {
	return slices.IndexFunc(s.sources, func(src *source) (ok bool) {
		return src.status.ID == id
	})
}

// type check
var _ service.Refresher = (*Storage)(nil)

// Refresh implements the [service.Refresher] interface for *Storage.  It
// downloads the stale lists and reloads the filter.  The lists that failed to
// refresh keep their previous versions.
func (s *Storage) Refresh(ctx context.Context) (err error) {
	return s.refresh(ctx, false)
}

// RefreshInitial loads the lists for the first time, using the cached versions
// regardless of their staleness.
func (s *Storage) RefreshInitial(ctx context.Context) (err error) {
	return s.refresh(ctx, true)
}

// loadResult is the result of loading a single list.
type loadResult struct {
	list *List
	err  error
}

// refresh loads the enabled lists concurrently and reloads the filter.
func (s *Storage) refresh(ctx context.Context, acceptStale bool) (err error) {
	defer func() { err = errors.Annotate(err, "refreshing lists: %w") }()

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	sources := slices.Clone(s.sources)
	s.mu.RUnlock()

	results := make([]*loadResult, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, src := range sources {
		if !s.isEnabled(src) {
			continue
		}

		g.Go(func() (loadErr error) {
			defer slogutil.RecoverAndLog(gCtx, s.logger)

			results[i] = s.load(gCtx, src, acceptStale)

			return gCtx.Err()
		})
	}

	err = g.Wait()
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	errs := s.applyResults(ctx, sources, results)

	err = s.reload(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// isEnabled returns true if the rules of src are used.
func (s *Storage) isEnabled(src *source) (ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return src.status.Enabled
}

// load downloads and parses a single list.
func (s *Storage) load(ctx context.Context, src *source, acceptStale bool) (res *loadResult) {
	id := src.refr.ID()

	text, err := src.refr.Refresh(ctx, acceptStale)
	if err != nil {
		return &loadResult{err: err}
	}

	l, err := Parse(ctx, s.logger, id, text)
	if err != nil {
		return &loadResult{err: err}
	}

	s.logger.DebugContext(ctx, "loaded list", "list", id, "rules", len(l.Rules), "dropped", l.Dropped)

	return &loadResult{list: l}
}

// applyResults saves the loaded lists and their statuses.  errs are the errors
// of the lists that failed to load.
func (s *Storage) applyResults(
	ctx context.Context,
	sources []*source,
	results []*loadResult,
) (errs []error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, res := range results {
		if res == nil {
			continue
		}

		src := sources[i]
		st := src.status
		st.LastRefresh = now
		id := st.ID.String()

		if res.err != nil {
			st.LastError = res.err.Error()
			s.metrics.SetListStatus(ctx, id, now, 0, res.err)

			errcoll.Collect(
				errcoll.ContextWithTag(ctx, "list_id", id),
				s.errColl,
				s.logger,
				"refreshing list",
				res.err,
			)
			errs = append(errs, res.err)

			continue
		}

		src.list = res.list
		st.LastError = ""
		st.Metadata = res.list.Metadata
		st.RulesCount = len(res.list.Rules)
		st.Dropped = res.list.Dropped

		s.metrics.SetListStatus(ctx, id, now, st.RulesCount, nil)
	}

	return errs
}

// reload reloads the filter with the rules of the enabled lists in the order of
// declaration.
func (s *Storage) reload(ctx context.Context) (err error) {
	s.mu.RLock()
	var rules []rule.Rule
	for _, src := range s.sources {
		if src.status.Enabled && src.list != nil {
			rules = append(rules, src.list.Rules...)
		}
	}
	s.mu.RUnlock()

	err = s.filter.Reload(ctx, rules)
	if err != nil {
		return fmt.Errorf("reloading filter: %w", err)
	}

	s.logger.InfoContext(ctx, "reloaded filter", "rules", len(rules))

	return nil
}

// Lists returns the statuses of the lists in the order of declaration.
func (s *Storage) Lists() (statuses []*Status) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses = make([]*Status, 0, len(s.sources))
	for _, src := range s.sources {
		st := *src.status
		statuses = append(statuses, &st)
	}

	return statuses
}

// AddCustomList adds a custom list with the URL u, loads it, and reloads the
// filter.  id is the ID assigned to the list.
func (s *Storage) AddCustomList(ctx context.Context, u *url.URL) (id filter.ListID, err error) {
	defer func() { err = errors.Annotate(err, "adding custom list: %w") }()

	s.mu.Lock()
	if slices.ContainsFunc(s.sources, func(src *source) (ok bool) {
		return src.url.String() == u.String()
	}) {
		s.mu.Unlock()

		return 0, fmt.Errorf("url %q: %w", urlutil.RedactUserinfo(u), ErrDuplicateURL)
	}

	id = filter.ListIDCustomMin
	for _, src := range s.sources {
		if srcID := src.status.ID; srcID >= id {
			id = srcID + 1
		}
	}

	src, err := s.newSource(&ListConfig{
		URL:     u,
		ID:      id,
		Enabled: true,
	})
	if err == nil {
		s.sources = append(s.sources, src)
	}
	s.mu.Unlock()

	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return 0, err
	}

	return id, s.refresh(ctx, true)
}

// SetEnabled enables or disables the list with id and reloads the filter.
func (s *Storage) SetEnabled(ctx context.Context, id filter.ListID, enabled bool) (err error) {
	s.mu.Lock()
	i := s.find(id)
	if i != -1 {
		s.sources[i].status.Enabled = enabled
	}
	s.mu.Unlock()

	if i == -1 {
		return fmt.Errorf("list %s: %w", id, errors.ErrNoValue)
	}

	return s.refresh(ctx, true)
}

// RemoveList removes the list with id and reloads the filter.
func (s *Storage) RemoveList(ctx context.Context, id filter.ListID) (err error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	i := s.find(id)
	if i != -1 {
		s.sources = slices.Delete(s.sources, i, i+1)
	}
	s.mu.Unlock()

	if i == -1 {
		return fmt.Errorf("list %s: %w", id, errors.ErrNoValue)
	}

	return s.reload(ctx)
}
