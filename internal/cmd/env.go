package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/advblocker/advfilter/internal/debugsvc"
	"github.com/advblocker/advfilter/internal/errcoll"
	"github.com/advblocker/advfilter/internal/version"
	"github.com/caarlos0/env/v7"
	"github.com/getsentry/sentry-go"
)

// environment represents the configuration that is kept in the environment.
type environment struct {
	RuleStatURL *urlutil.URL `env:"RULESTAT_URL"`

	ConfPath        string `env:"CONFIG_PATH" envDefault:"./config.yaml"`
	FilterCachePath string `env:"FILTER_CACHE_PATH" envDefault:"./filters/"`
	LogFormat       string `env:"LOG_FORMAT" envDefault:"text"`
	RedirectsPath   string `env:"REDIRECTS_PATH"`
	SentryDSN       string `env:"SENTRY_DSN" envDefault:"stderr"`
	UserFilterPath  string `env:"USER_FILTER_PATH" envDefault:"./user_filter.txt"`
	WhitelistPath   string `env:"WHITELIST_PATH" envDefault:"./whitelist.json"`

	ListenAddr net.IP `env:"LISTEN_ADDR" envDefault:"127.0.0.1"`

	ListenPort uint16 `env:"LISTEN_PORT" envDefault:"8181"`

	Verbosity uint8 `env:"VERBOSE" envDefault:"0"`

	LogTimestamp    strictBool `env:"LOG_TIMESTAMP" envDefault:"1"`
	UserFilterWatch strictBool `env:"USER_FILTER_WATCH" envDefault:"1"`
}

// parseEnvironment reads the configuration.
func parseEnvironment() (envs *environment, err error) {
	envs = &environment{}
	err = env.Parse(envs)
	if err != nil {
		return nil, fmt.Errorf("parsing environments: %w", err)
	}

	return envs, nil
}

// type check
var _ validate.Interface = (*environment)(nil)

// Validate implements the [validate.Interface] interface for *environment.
func (envs *environment) Validate() (err error) {
	errs := []error{
		validate.NotEmpty("CONFIG_PATH", envs.ConfPath),
		validate.NotEmpty("FILTER_CACHE_PATH", envs.FilterCachePath),
		validate.NotEmpty("USER_FILTER_PATH", envs.UserFilterPath),
		validate.NotEmpty("WHITELIST_PATH", envs.WhitelistPath),
	}

	if u := envs.RuleStatURL; u != nil && !urlutil.IsValidHTTPURLScheme(u.Scheme) {
		errs = append(errs, fmt.Errorf("RULESTAT_URL: not a valid http(s) url: %q", u))
	}

	if envs.ListenAddr == nil {
		errs = append(errs, fmt.Errorf("LISTEN_ADDR: %w", errors.ErrNoValue))
	}

	_, err = slogutil.NewFormat(envs.LogFormat)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: %w", err))
	}

	_, err = slogutil.VerbosityToLevel(envs.Verbosity)
	if err != nil {
		errs = append(errs, fmt.Errorf("VERBOSE: %w", err))
	}

	return errors.Join(errs...)
}

// buildErrColl builds and returns an error collector from environment.
// baseLogger must not be nil.
func (envs *environment) buildErrColl(
	baseLogger *slog.Logger,
) (errColl errcoll.Interface, err error) {
	dsn := envs.SentryDSN
	if dsn == "stderr" {
		return errcoll.NewWriterErrorCollector(os.Stderr), nil
	}

	cli, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          version.Version(),
	})
	if err != nil {
		return nil, err
	}

	l := baseLogger.With(slogutil.KeyPrefix, "sentry_errcoll")

	return errcoll.NewSentryErrorCollector(cli, l), nil
}

// debugConf returns a debug HTTP service configuration from environment.  All
// the debug handlers are served on the same address.
func (envs *environment) debugConf(baseLogger *slog.Logger) (conf *debugsvc.Config) {
	addr := netutil.JoinHostPort(envs.ListenAddr.String(), envs.ListenPort)

	return &debugsvc.Config{
		Logger:         baseLogger.With(slogutil.KeyPrefix, "debugsvc"),
		APIAddr:        addr,
		PprofAddr:      addr,
		PrometheusAddr: addr,
	}
}

// strictBool is a type for booleans that are parsed from the environment more
// strictly than the usual bool.  It only accepts "0" and "1" as valid values.
type strictBool bool

// UnmarshalText implements the encoding.TextUnmarshaler interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	if len(b) == 1 {
		switch b[0] {
		case '0':
			*sb = false

			return nil
		case '1':
			*sb = true

			return nil
		default:
			// Go on and return an error.
		}
	}

	return fmt.Errorf("invalid value %q, supported: %q, %q", b, "0", "1")
}
