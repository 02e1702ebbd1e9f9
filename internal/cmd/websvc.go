package cmd

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/advblocker/advfilter/internal/websvc"
	"github.com/c2h5oh/datasize"
	"golang.org/x/time/rate"
)

// webConfig contains configuration for the AdvFilter JSON API.
type webConfig struct {
	// Bind are the addresses on which the API is served.
	Bind []netip.AddrPort `yaml:"bind"`

	// MaxBodySize is the maximum size of a request body.
	MaxBodySize datasize.ByteSize `yaml:"max_body_size"`

	// Timeout is the timeout for all server operations.
	Timeout timeutil.Duration `yaml:"timeout"`

	// RPS is the number of requests per second all clients are allowed to
	// make.  Zero disables the limit.
	RPS float64 `yaml:"rps"`

	// Burst is the maximum burst of requests.  It is ignored if RPS is zero.
	Burst int `yaml:"burst"`
}

// type check
var _ validate.Interface = (*webConfig)(nil)

// Validate implements the [validate.Interface] interface for *webConfig.
func (c *webConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmptySlice("bind", c.Bind),
		validate.Positive("max_body_size", c.MaxBodySize),
		validate.Positive("timeout", c.Timeout),
	}

	for i, a := range c.Bind {
		if !a.IsValid() {
			errs = append(errs, fmt.Errorf("bind: at index %d: invalid addr", i))
		}
	}

	if c.RPS < 0 {
		errs = append(errs, fmt.Errorf("rps: %w: %v", errors.ErrNegative, c.RPS))
	} else if c.RPS > 0 {
		errs = append(errs, validate.Positive("burst", c.Burst))
	}

	return errors.Join(errs...)
}

// toInternal converts c to the web service configuration.  The dependencies
// are set by the caller.  c must be valid.
func (c *webConfig) toInternal(logger *slog.Logger) (conf *websvc.Config) {
	limit, burst := rate.Inf, 1
	if c.RPS > 0 {
		limit, burst = rate.Limit(c.RPS), c.Burst
	}

	return &websvc.Config{
		Logger:      logger,
		Bind:        c.Bind,
		RateLimit:   limit,
		RateBurst:   burst,
		MaxBodySize: c.MaxBodySize,
		Timeout:     time.Duration(c.Timeout.Duration),
	}
}
