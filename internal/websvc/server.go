package websvc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// server contains an *http.Server as well as the listener associated with it.
type server struct {
	// mu protects logger and listener.
	mu       *sync.Mutex
	http     *http.Server
	logger   *slog.Logger
	listener net.Listener

	addr netip.AddrPort
}

// loggerKeyServer is the key used by [server] to identify itself.
const loggerKeyServer = "server"

// newServer returns a *server that is ready to serve the API at addr.  The TCP
// listener is not started.
func newServer(
	baseLogger *slog.Logger,
	h http.Handler,
	addr netip.AddrPort,
	timeout time.Duration,
) (s *server) {
	logger := baseLogger.With(loggerKeyServer, addr)

	return &server{
		mu: &sync.Mutex{},
		http: &http.Server{
			Handler:           h,
			ReadTimeout:       timeout,
			ReadHeaderTimeout: timeout,
			WriteTimeout:      timeout,
			IdleTimeout:       timeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		},
		logger: logger,
		addr:   addr,
	}
}

// localAddr returns the local address of the server if the server has started
// listening; otherwise, it returns nil.
func (s *server) localAddr() (addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.listener; l != nil {
		return l.Addr()
	}

	return nil
}

// listen starts the TCP listener of s.  The address of the logger is replaced
// in case the port was zero.
func (s *server) listen(baseLogger *slog.Logger) (err error) {
	l, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(s.addr))
	if err != nil {
		return fmt.Errorf("listening tcp: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.listener = l
	s.logger = baseLogger.With(loggerKeyServer, l.Addr())
	s.http.ErrorLog = slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug)

	return nil
}

// serve serves the API on the listener of s, which must be started.  If s
// fails to serve with anything other than [http.ErrServerClosed], it causes an
// unhandled panic.  It is intended to be used as a goroutine.
func (s *server) serve(ctx context.Context) {
	s.mu.Lock()
	l, logger := s.listener, s.logger
	s.mu.Unlock()

	logger.InfoContext(ctx, "starting")

	err := s.http.Serve(l)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.ErrorContext(ctx, "serving", slogutil.KeyError, err)

		panic(fmt.Errorf("websvc: serving: %w", err))
	}
}

// shutdown shuts s down.
func (s *server) shutdown(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	err = s.http.Shutdown(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("shutting down server %s: %w", s.addr, err))
	}

	// Close the listener separately, as it might not have been closed if the
	// context has been canceled.
	if l := s.listener; l != nil {
		err = l.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("closing listener for server %s: %w", s.addr, err))
		}
	}

	return errors.Join(errs...)
}
