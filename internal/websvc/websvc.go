// Package websvc contains the AdvFilter JSON API used by the browser-side
// adapter to get the verdicts for the requests and to manage the settings.
package websvc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/advblocker/advfilter/internal/errcoll"
	"golang.org/x/time/rate"
)

// Service is the AdvFilter web service.  It's safe for concurrent use.
type Service struct {
	logger      *slog.Logger
	webRequest  WebRequest
	whitelist   Whitelist
	lists       Lists
	metrics     Metrics
	errColl     errcoll.Interface
	limiter     *rate.Limiter
	handler     http.Handler
	servers     []*server
	maxBodySize int64
}

// New returns a new properly initialized *Service.  c must not be nil and must
// be valid.
func New(c *Config) (svc *Service) {
	svc = &Service{
		logger:     c.Logger,
		webRequest: c.WebRequest,
		whitelist:  c.Whitelist,
		lists:      c.Lists,
		metrics:    c.Metrics,
		errColl:    c.ErrColl,
		limiter:    rate.NewLimiter(c.RateLimit, c.RateBurst),
		// #nosec G115 -- The size is validated by the configuration.
		maxBodySize: int64(c.MaxBodySize.Bytes()),
	}

	svc.handler = svc.route()

	for _, addr := range c.Bind {
		svc.servers = append(svc.servers, newServer(c.Logger, svc, addr, c.Timeout))
	}

	return svc
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It starts
// the listeners and then serves the API in the background.
func (svc *Service) Start(ctx context.Context) (err error) {
	for _, srv := range svc.servers {
		err = srv.listen(svc.logger)
		if err != nil {
			return fmt.Errorf("starting server %s: %w", srv.addr, err)
		}
	}

	for _, srv := range svc.servers {
		go srv.serve(context.WithoutCancel(ctx))
	}

	return nil
}

// Shutdown implements the [service.Interface] interface for *Service.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for _, srv := range svc.servers {
		err = srv.shutdown(ctx)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		svc.logger.InfoContext(ctx, "server is shutdown", loggerKeyServer, srv.addr)
	}

	return errors.Join(errs...)
}

// LocalAddrs returns the addresses of the started listeners.  The addresses of
// the servers that haven't started yet are skipped.
func (svc *Service) LocalAddrs() (addrs []net.Addr) {
	for _, srv := range svc.servers {
		if a := srv.localAddr(); a != nil {
			addrs = append(addrs, a)
		}
	}

	return addrs
}

// collectError reports an unexpected error of a handler.
func (svc *Service) collectError(ctx context.Context, msg string, err error) {
	l := slogutil.MustLoggerFromContext(ctx)
	errcoll.Collect(ctx, svc.errColl, l, msg, err)
}
