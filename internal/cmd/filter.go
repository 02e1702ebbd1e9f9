package cmd

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/advblocker/advfilter/internal/advhttp"
	"github.com/advblocker/advfilter/internal/filter"
	"github.com/advblocker/advfilter/internal/filter/filterlist"
	"github.com/c2h5oh/datasize"
)

// filtersConfig contains the configuration of the filtering engine and the
// refreshes of the filter lists.
type filtersConfig struct {
	// RefreshIvl defines how often AdvFilter refreshes the filter lists.  It is
	// also the staleness of the cached list files.
	RefreshIvl timeutil.Duration `yaml:"refresh_interval"`

	// RefreshTimeout is the timeout for the entire filter update operation.
	RefreshTimeout timeutil.Duration `yaml:"refresh_timeout"`

	// ListRefreshTimeout is the timeout for the download of a single list.
	ListRefreshTimeout timeutil.Duration `yaml:"list_refresh_timeout"`

	// UserFilterDelay is the time to wait for more changes of the user filter
	// file before reloading it.
	UserFilterDelay timeutil.Duration `yaml:"user_filter_delay"`

	// MaxSize is the maximum size of the downloadable filter list.
	MaxSize datasize.ByteSize `yaml:"max_size"`

	// MaxConcurrent is the maximum number of lists downloaded at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	// CacheSize is the size of the LRU cache of the request decisions.  Zero
	// disables the cache.
	CacheSize int `yaml:"cache_size"`
}

// type check
var _ validate.Interface = (*filtersConfig)(nil)

// Validate implements the [validate.Interface] interface for *filtersConfig.
func (c *filtersConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.Positive("refresh_interval", c.RefreshIvl),
		validate.Positive("refresh_timeout", c.RefreshTimeout),
		validate.Positive("list_refresh_timeout", c.ListRefreshTimeout),
		validate.Positive("user_filter_delay", c.UserFilterDelay),
		validate.Positive("max_size", c.MaxSize),
		validate.Positive("max_concurrent", c.MaxConcurrent),
		validate.NotNegative("cache_size", c.CacheSize),
	)
}

// listConfig is the configuration of a single subscribed filter list.
type listConfig struct {
	// URL is the HTTP(S) URL of the list or a file URL.
	URL string `yaml:"url"`

	// ID is the unique ID of the list.  It must be positive and less than
	// [filter.ListIDCustomMin], and it must not be [filter.ListIDWhitelist].
	ID filter.ListID `yaml:"id"`

	// Enabled shows if the rules of the list are used.
	Enabled bool `yaml:"enabled"`
}

// type check
var _ validate.Interface = (*listConfig)(nil)

// Validate implements the [validate.Interface] interface for *listConfig.
func (c *listConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.InRange("id", c.ID, filter.ListIDUser+1, filter.ListIDCustomMin-1),
	}

	if c.ID == filter.ListIDWhitelist {
		errs = append(errs, fmt.Errorf("id: %d is reserved for the whitelist", c.ID))
	}

	_, err = advhttp.ParseListURL(c.URL)
	if err != nil {
		errs = append(errs, fmt.Errorf("url: %w", err))
	}

	return errors.Join(errs...)
}

// listConfigs are the subscribed filter lists.
type listConfigs []*listConfig

// type check
var _ validate.Interface = listConfigs(nil)

// Validate implements the [validate.Interface] interface for listConfigs.
func (c listConfigs) Validate() (err error) {
	var errs []error
	ids := container.NewMapSet[filter.ListID]()
	for i, lc := range c {
		err = lc.Validate()
		if err != nil {
			errs = append(errs, fmt.Errorf("at index %d: %w", i, err))

			continue
		}

		if ids.Has(lc.ID) {
			errs = append(errs, fmt.Errorf("at index %d: id: %w: %d", i, errors.ErrDuplicated, lc.ID))

			continue
		}

		ids.Add(lc.ID)
	}

	return errors.Join(errs...)
}

// toInternal converts c to the list configurations of the list storage.  The
// user filter at userFilterPath comes first.  c must be valid.
func (c listConfigs) toInternal(userFilterPath string) (lists []*filterlist.ListConfig, err error) {
	absPath, err := filepath.Abs(userFilterPath)
	if err != nil {
		return nil, fmt.Errorf("user filter path: %w", err)
	}

	lists = make([]*filterlist.ListConfig, 0, len(c)+1)
	lists = append(lists, &filterlist.ListConfig{
		URL: &url.URL{
			Scheme: "file",
			Path:   absPath,
		},
		ID:      filter.ListIDUser,
		Enabled: true,
	})

	for _, lc := range c {
		var u *url.URL
		u, err = advhttp.ParseListURL(lc.URL)
		if err != nil {
			// Should not happen, since c is valid.
			panic(fmt.Errorf("list %s: %w", lc.ID, err))
		}

		lists = append(lists, &filterlist.ListConfig{
			URL:     u,
			ID:      lc.ID,
			Enabled: lc.Enabled,
		})
	}

	return lists, nil
}
