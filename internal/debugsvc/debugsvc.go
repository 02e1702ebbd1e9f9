// Package debugsvc contains the debug HTTP API of AdvFilter.
package debugsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/advblocker/advfilter/internal/advcache"
)

// Service is the HTTP service of AdvFilter.  It serves prometheus metrics,
// pprof, health check, and the debug API endpoints.
type Service struct {
	logger       *slog.Logger
	refrHdlr     *refreshHandler
	cacheHdlr    *cacheHandler
	ruleStatHdlr *ruleStatHandler
	servers      map[string]*server
}

// Config is the AdvFilter debug HTTP service configuration structure.
type Config struct {
	// Logger is used for logging the operation of the service.  It must not be
	// nil.
	Logger *slog.Logger

	// Manager is the cache manager used by the cache purge API.  It must not
	// be nil.
	Manager *advcache.DefaultManager

	// RuleStat is the source of the rule statistics.  It must not be nil.
	RuleStat RuleStatProvider

	// Refreshers are the entities refreshed by the refresh API.
	Refreshers Refreshers

	// APIAddr is the address of the health check and the debug API.  If it's
	// empty, the API isn't served.
	APIAddr string

	// PprofAddr is the address of the pprof handlers.  If it's empty, pprof
	// isn't served.
	PprofAddr string

	// PrometheusAddr is the address of the metrics handler.  If it's empty,
	// the metrics aren't served.
	PrometheusAddr string
}

// New returns a new properly initialized *Service.  c must not be nil.
func New(c *Config) (svc *Service) {
	svc = &Service{
		logger: c.Logger,
		refrHdlr: &refreshHandler{
			refrs: c.Refreshers,
		},
		cacheHdlr: &cacheHandler{
			manager: c.Manager,
		},
		ruleStatHdlr: &ruleStatHandler{
			provider: c.RuleStat,
		},
		servers: map[string]*server{},
	}

	svc.addServer(c.APIAddr, handlerGroupAPI)
	svc.addServer(c.PprofAddr, handlerGroupPprof)
	svc.addServer(c.PrometheusAddr, handlerGroupPrometheus)

	svc.route(c)

	return svc
}

// Handler group names.
const (
	handlerGroupAPI        = "api"
	handlerGroupPprof      = "pprof"
	handlerGroupPrometheus = "prometheus"
)

// server is a single server within the AdvFilter debug HTTP service.
type server struct {
	http *http.Server
	name string
}

// addServer adds a server for the handler group to the service, unless a server
// for addr already exists, in which case the group is joined with it.  If addr
// is empty, no server is added.
func (svc *Service) addServer(addr, name string) {
	if addr == "" {
		return
	}

	srv, ok := svc.servers[addr]
	if ok {
		srv.name += ";" + name

		return
	}

	svc.servers[addr] = &server{
		// #nosec G112 -- Do not set the timeouts, since debug/pprof and similar
		// debug APIs may be busy for a long time.
		http: &http.Server{
			Addr:    addr,
			Handler: http.NewServeMux(),
		},
		name: name,
	}
}

// startServer starts one server and panics if there is an unexpected error.
func startServer(ctx context.Context, l *slog.Logger, s *server) {
	defer slogutil.RecoverAndExit(ctx, l, osutil.ExitCodeFailure)

	l.InfoContext(ctx, "listening", "name", s.name, "addr", s.http.Addr)

	err := s.http.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		panic(fmt.Errorf("debugsvc: listening on %s: %s: %w", s.http.Addr, s.name, err))
	}
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It starts
// serving all endpoints but does not wait for them to actually go online.  err
// is always nil; if any endpoint fails to start, the process exits.
func (svc *Service) Start(ctx context.Context) (err error) {
	for _, srv := range svc.servers {
		go startServer(context.WithoutCancel(ctx), svc.logger, srv)
	}

	return nil
}

// Shutdown implements the [service.Interface] interface for *Service.  It stops
// serving all endpoints.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for _, srv := range svc.servers {
		err = srv.http.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("server %s shutdown: %w", srv.name, err))

			continue
		}

		svc.logger.InfoContext(ctx, "server is shutdown", "name", srv.name)
	}

	return errors.Join(errs...)
}
