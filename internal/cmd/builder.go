package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/AdguardTeam/golibs/contextutil"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/advblocker/advfilter/internal/advcache"
	"github.com/advblocker/advfilter/internal/debugsvc"
	"github.com/advblocker/advfilter/internal/errcoll"
	"github.com/advblocker/advfilter/internal/filewatch"
	"github.com/advblocker/advfilter/internal/filter/filterlist"
	"github.com/advblocker/advfilter/internal/filter/requestfilter"
	"github.com/advblocker/advfilter/internal/filter/stealth"
	"github.com/advblocker/advfilter/internal/filter/whitelist"
	"github.com/advblocker/advfilter/internal/metrics"
	"github.com/advblocker/advfilter/internal/rulestat"
	"github.com/advblocker/advfilter/internal/webrequest"
	"github.com/advblocker/advfilter/internal/websvc"
	"github.com/prometheus/client_golang/prometheus"
)

// Constants that define debug identifiers for the debug HTTP service.
const (
	debugIDFilters  = "filters"
	debugIDRuleStat = "rulestat"
)

// Permissions of the files and directories created by AdvFilter.
const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// builder contains the logic of configuring and combining together AdvFilter
// entities.
//
// NOTE:  Keep method definitions in the rough order in which they are intended
// to be called.
type builder struct {
	// The fields below are initialized immediately on construction.  Keep them
	// sorted.

	baseLogger     *slog.Logger
	cacheManager   *advcache.DefaultManager
	conf           *configuration
	debugRefrs     debugsvc.Refreshers
	env            *environment
	errColl        errcoll.Interface
	logger         *slog.Logger
	mtrcNamespace  string
	promRegisterer prometheus.Registerer
	sigHdlr        *service.SignalHandler

	// The fields below are initialized later by calling the builder's methods.
	// Keep them sorted.

	filterStorage *filterlist.Storage
	reqFilter     *requestfilter.Filter
	ruleStat      *rulestat.Collector
	stealth       *stealth.Service
	webReq        *webrequest.Service
	webSvc        *websvc.Service
	whitelist     *whitelist.Whitelist
}

// builderConfig contains the initial configuration for the builder.
type builderConfig struct {
	// envs contains the environment variables for the builder.  It must be
	// valid and must not be nil.
	envs *environment

	// conf contains the configuration from the configuration file for the
	// builder.  It must be valid and must not be nil.
	conf *configuration

	// baseLogger is used to create loggers for other entities.  It should not
	// have a prefix and must not be nil.
	baseLogger *slog.Logger

	// errColl is used to collect errors in the entities.  It must not be nil.
	errColl errcoll.Interface
}

// shutdownTimeout is the default shutdown timeout for all services.
const shutdownTimeout = 5 * time.Second

// newBuilder returns a new properly initialized builder.  c must not be nil.
func newBuilder(c *builderConfig) (b *builder) {
	return &builder{
		baseLogger:     c.baseLogger,
		cacheManager:   advcache.NewDefaultManager(),
		conf:           c.conf,
		debugRefrs:     debugsvc.Refreshers{},
		env:            c.envs,
		errColl:        c.errColl,
		logger:         c.baseLogger.With(slogutil.KeyPrefix, "builder"),
		mtrcNamespace:  metrics.Namespace(),
		promRegisterer: prometheus.DefaultRegisterer,
		sigHdlr: service.NewSignalHandler(&service.SignalHandlerConfig{
			Logger:          c.baseLogger.With(slogutil.KeyPrefix, service.SignalHandlerPrefix),
			ShutdownTimeout: shutdownTimeout,
		}),
	}
}

// initRequestFilter initializes the filtering engine.  The engine stays empty
// until [builder.initFilterStorage] loads the lists.
func (b *builder) initRequestFilter(ctx context.Context) (err error) {
	redirects, err := b.readRedirects()
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	mtrc, err := metrics.NewRequestFilter(b.mtrcNamespace, b.promRegisterer)
	if err != nil {
		return fmt.Errorf("registering request filter metrics: %w", err)
	}

	b.reqFilter = requestfilter.New(&requestfilter.Config{
		Logger:       b.baseLogger.With(slogutil.KeyPrefix, "requestfilter"),
		Metrics:      mtrc,
		CacheManager: b.cacheManager,
		Clock:        timeutil.SystemClock{},
		Redirects:    redirects,
		CacheSize:    b.conf.Filters.CacheSize,
	})

	b.logger.DebugContext(ctx, "initialized request filter", "has_redirects", redirects != nil)

	return nil
}

// readRedirects reads the redirect resources, if their path is set.
func (b *builder) readRedirects() (redirects *requestfilter.Redirects, err error) {
	p := b.env.RedirectsPath
	if p == "" {
		return nil, nil
	}

	// #nosec G304 -- Trust the path given from the environment.
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading redirects: %w", err)
	}

	redirects, err = requestfilter.ParseRedirects(data)
	if err != nil {
		return nil, fmt.Errorf("parsing redirects: %w", err)
	}

	return redirects, nil
}

// initStealth initializes the stealth mode.
//
// The following methods must be called before this one:
//   - [builder.initRequestFilter]
func (b *builder) initStealth(ctx context.Context) (err error) {
	l := b.baseLogger.With(slogutil.KeyPrefix, "stealth")
	b.stealth, err = stealth.New(b.conf.Stealth.toInternal(l, b.reqFilter))
	if err != nil {
		return fmt.Errorf("initializing stealth mode: %w", err)
	}

	b.logger.DebugContext(ctx, "initialized stealth mode", "enabled", b.conf.Stealth.Enabled)

	return nil
}

// initWhitelist initializes the user whitelist from its state file.
func (b *builder) initWhitelist(ctx context.Context) (err error) {
	c := b.conf.Whitelist
	b.whitelist, err = whitelist.New(ctx, &whitelist.Config{
		Logger:       b.baseLogger.With(slogutil.KeyPrefix, "whitelist"),
		Clock:        timeutil.SystemClock{},
		CacheManager: b.cacheManager,
		Initial:      c.initialState(),
		StatePath:    b.env.WhitelistPath,
		CacheTTL:     time.Duration(c.CacheTTL),
		CacheSize:    c.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("initializing whitelist: %w", err)
	}

	b.logger.DebugContext(ctx, "initialized whitelist", "path", b.env.WhitelistPath)

	return nil
}

// initRuleStat initializes the rule statistics collector and its uploading
// refresher.  It also adds the refresher with ID [debugIDRuleStat] to the debug
// refreshers.
func (b *builder) initRuleStat(ctx context.Context) (err error) {
	mtrc, err := metrics.NewRuleStat(b.mtrcNamespace, b.promRegisterer)
	if err != nil {
		return fmt.Errorf("registering rulestat metrics: %w", err)
	}

	var u *url.URL
	if b.env.RuleStatURL != nil {
		u = (*url.URL)(b.env.RuleStatURL)
	}

	b.ruleStat = rulestat.New(&rulestat.Config{
		Logger:  b.baseLogger.With(slogutil.KeyPrefix, "rulestat"),
		Metrics: mtrc,
		URL:     u,
	})

	if u == nil {
		b.logger.DebugContext(ctx, "rulestat upload disabled")

		return nil
	}

	refr := service.NewRefreshWorker(&service.RefreshWorkerConfig{
		ContextConstructor: contextutil.NewTimeoutConstructor(time.Duration(b.conf.Web.Timeout)),
		ErrorHandler:       newSlogErrorHandler(b.baseLogger, "rulestat_refresh"),
		Refresher:          b.ruleStat,
		Schedule:           timeutil.NewConstSchedule(time.Duration(b.conf.RuleStat.RefreshIvl)),
		RefreshOnShutdown:  true,
	})
	err = refr.Start(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("starting rulestat refresher: %w", err)
	}

	b.sigHdlr.AddService(refr)

	b.debugRefrs[debugIDRuleStat] = b.ruleStat

	b.logger.DebugContext(ctx, "initialized rulestat")

	return nil
}

// newSlogErrorHandler returns a new [service.SlogErrorHandler] for the given
// prefix.
func newSlogErrorHandler(baseLogger *slog.Logger, prefix string) (h *service.SlogErrorHandler) {
	return service.NewSlogErrorHandler(
		baseLogger.With(slogutil.KeyPrefix, prefix),
		slog.LevelError,
		"refreshing",
	)
}

// initWebRequest initializes the request adapter.
//
// The following methods must be called before this one:
//   - [builder.initRequestFilter]
//   - [builder.initStealth]
//   - [builder.initWhitelist]
//   - [builder.initRuleStat]
func (b *builder) initWebRequest(ctx context.Context) (err error) {
	mtrc, err := metrics.NewWebRequest(b.mtrcNamespace, b.promRegisterer)
	if err != nil {
		return fmt.Errorf("registering webrequest metrics: %w", err)
	}

	c := b.conf.WebRequest
	b.webReq = webrequest.New(&webrequest.Config{
		Logger:       b.baseLogger.With(slogutil.KeyPrefix, "webrequest"),
		Filter:       b.reqFilter,
		Whitelist:    b.whitelist,
		Stealth:      b.stealth,
		RuleStat:     b.ruleStat,
		Metrics:      mtrc,
		CacheManager: b.cacheManager,
		ContextTTL:   time.Duration(c.ContextTTL),
		TabTTL:       time.Duration(c.TabTTL),
		DebugScripts: c.DebugScripts,
		CollectHits:  c.CollectHits,
	})

	b.logger.DebugContext(ctx, "initialized webrequest")

	return nil
}

// initFilterStorage initializes and refreshes the filter lists and starts
// their refresher.  It also adds the refresher with ID [debugIDFilters] to the
// debug refreshers.
//
// The following methods must be called before this one:
//   - [builder.initRequestFilter]
func (b *builder) initFilterStorage(ctx context.Context) (err error) {
	c := b.conf.Filters
	lists, err := b.conf.Lists.toInternal(b.env.UserFilterPath)
	if err != nil {
		return fmt.Errorf("converting lists: %w", err)
	}

	err = os.MkdirAll(b.env.FilterCachePath, dirPerm)
	if err != nil {
		return fmt.Errorf("creating filter cache dir: %w", err)
	}

	err = createIfNotExists(b.env.UserFilterPath)
	if err != nil {
		return fmt.Errorf("creating user filter: %w", err)
	}

	mtrc, err := metrics.NewFilterList(b.mtrcNamespace, b.promRegisterer)
	if err != nil {
		return fmt.Errorf("registering filter list metrics: %w", err)
	}

	refrIvl := time.Duration(c.RefreshIvl)
	b.filterStorage, err = filterlist.New(&filterlist.Config{
		Logger:        b.baseLogger.With(slogutil.KeyPrefix, "filterlist"),
		Clock:         timeutil.SystemClock{},
		Metrics:       mtrc,
		ErrColl:       b.errColl,
		Filter:        b.reqFilter,
		Lists:         lists,
		CacheDir:      b.env.FilterCachePath,
		Staleness:     refrIvl,
		Timeout:       time.Duration(c.ListRefreshTimeout),
		MaxSize:       c.MaxSize,
		MaxConcurrent: c.MaxConcurrent,
	})
	if err != nil {
		return fmt.Errorf("creating filter storage: %w", err)
	}

	refrTimeout := time.Duration(c.RefreshTimeout)
	initCtx, cancel := context.WithTimeout(ctx, refrTimeout)
	defer cancel()

	err = b.filterStorage.RefreshInitial(initCtx)
	if err != nil {
		return fmt.Errorf("refreshing filter lists initially: %w", err)
	}

	refr := service.NewRefreshWorker(&service.RefreshWorkerConfig{
		ContextConstructor: contextutil.NewTimeoutConstructor(refrTimeout),
		ErrorHandler:       newSlogErrorHandler(b.baseLogger, "filters_refresh"),
		Refresher:          b.filterStorage,
		Schedule:           timeutil.NewConstSchedule(refrIvl),
		RefreshOnShutdown:  false,
	})
	err = refr.Start(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("starting filter list refresher: %w", err)
	}

	b.sigHdlr.AddService(refr)

	b.debugRefrs[debugIDFilters] = b.filterStorage

	b.logger.DebugContext(
		ctx,
		"initialized filter storage",
		"lists", len(lists),
		"rules", b.reqFilter.RulesCount(),
	)

	return nil
}

// createIfNotExists creates an empty file at p unless it already exists.
func createIfNotExists(p string) (err error) {
	// #nosec G304 -- Trust the path given from the environment.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	return f.Close()
}

// initUserFilterWatcher starts reloading the filter lists on the changes of
// the user filter file, if enabled.
//
// The following methods must be called before this one:
//   - [builder.initFilterStorage]
func (b *builder) initUserFilterWatcher(ctx context.Context) (err error) {
	if !b.env.UserFilterWatch {
		b.logger.DebugContext(ctx, "user filter watcher disabled")

		return nil
	}

	c := b.conf.Filters
	w, err := filewatch.New(&filewatch.Config{
		Logger:    b.baseLogger.With(slogutil.KeyPrefix, "user_filter_watcher"),
		ErrColl:   b.errColl,
		Refresher: b.filterStorage,
		Path:      b.env.UserFilterPath,
		Delay:     time.Duration(c.UserFilterDelay),
		Timeout:   time.Duration(c.RefreshTimeout),
	})
	if err != nil {
		return fmt.Errorf("creating user filter watcher: %w", err)
	}

	err = w.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting user filter watcher: %w", err)
	}

	b.sigHdlr.AddService(w)

	b.logger.DebugContext(ctx, "initialized user filter watcher", "path", b.env.UserFilterPath)

	return nil
}

// initWeb initializes and starts the JSON API.
//
// The following methods must be called before this one:
//   - [builder.initFilterStorage]
//   - [builder.initWebRequest]
//   - [builder.initWhitelist]
func (b *builder) initWeb(ctx context.Context) (err error) {
	mtrc, err := metrics.NewWebSvc(b.mtrcNamespace, b.promRegisterer)
	if err != nil {
		return fmt.Errorf("registering websvc metrics: %w", err)
	}

	conf := b.conf.Web.toInternal(b.baseLogger.With(slogutil.KeyPrefix, "websvc"))
	conf.WebRequest = b.webReq
	conf.Whitelist = b.whitelist
	conf.Lists = b.filterStorage
	conf.Metrics = mtrc
	conf.ErrColl = b.errColl

	b.webSvc = websvc.New(conf)

	err = b.webSvc.Start(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("starting websvc: %w", err)
	}

	b.sigHdlr.AddService(b.webSvc)

	b.logger.DebugContext(ctx, "initialized websvc", "bind", b.conf.Web.Bind)

	return nil
}

// mustInitDebugSvc initializes, starts, and registers the debug service.  The
// debug HTTP service is considered critical, so it panics instead of returning
// an error.
//
// The following methods must be called before this one:
//   - [builder.initFilterStorage]
//   - [builder.initRuleStat]
func (b *builder) mustInitDebugSvc(ctx context.Context) {
	debugSvcConf := b.env.debugConf(b.baseLogger)
	debugSvcConf.Manager = b.cacheManager
	debugSvcConf.RuleStat = b.ruleStat
	debugSvcConf.Refreshers = b.debugRefrs
	debugSvc := debugsvc.New(debugSvcConf)

	// The debug HTTP service is considered critical, so its Start method panics
	// instead of returning an error.
	_ = debugSvc.Start(context.WithoutCancel(ctx))

	b.sigHdlr.AddService(debugSvc)

	b.logger.DebugContext(
		ctx,
		"initialized debug",
		"refr_ids", slices.Sorted(maps.Keys(b.debugRefrs)),
	)
}

// handleSignals blocks until the process receives a shutdown signal and
// returns the exit code.
func (b *builder) handleSignals(ctx context.Context) (code osutil.ExitCode) {
	b.logger.DebugContext(ctx, "cache manager initialized", "ids", b.cacheManager.IDs())

	return b.sigHdlr.Handle(ctx)
}
