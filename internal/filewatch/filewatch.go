// Package filewatch contains a service that refreshes an entity when a file
// changes on disk.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/advblocker/advfilter/internal/errcoll"
	"github.com/fsnotify/fsnotify"
)

// Config is the configuration structure for a [*Watcher].
type Config struct {
	// Logger is used to log the operation of the watcher.  It must not be nil.
	Logger *slog.Logger

	// ErrColl is used to collect the refresh errors.  It must not be nil.
	ErrColl errcoll.Interface

	// Refresher is refreshed after the file changes.  It must not be nil.
	Refresher service.Refresher

	// Path is the path to the watched file.  It must not be empty.  The file
	// itself may not exist.
	Path string

	// Delay is the time to wait for more changes before refreshing.  It must
	// not be negative.
	Delay time.Duration

	// Timeout is the timeout of a single refresh.  It must be positive.
	Timeout time.Duration
}

// Watcher refreshes a [service.Refresher] when a file is written, created,
// removed, or renamed.  The parent directory is watched, so that the editors
// replacing the file are supported.
type Watcher struct {
	logger    *slog.Logger
	errColl   errcoll.Interface
	refresher service.Refresher
	watcher   *fsnotify.Watcher
	done      chan struct{}
	wg        *sync.WaitGroup
	path      string
	delay     time.Duration
	timeout   time.Duration
}

// New returns a new file watcher.  c must not be nil and must be valid.
func New(c *Config) (w *Watcher, err error) {
	path, err := filepath.Abs(c.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	return &Watcher{
		logger:    c.Logger,
		errColl:   c.ErrColl,
		refresher: c.Refresher,
		done:      make(chan struct{}),
		wg:        &sync.WaitGroup{},
		path:      path,
		delay:     c.Delay,
		timeout:   c.Timeout,
	}, nil
}

// type check
var _ service.Interface = (*Watcher)(nil)

// Start implements the [service.Interface] interface for *Watcher.
func (w *Watcher) Start(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "starting file watcher: %w") }()

	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	dir := filepath.Dir(w.path)
	err = w.watcher.Add(dir)
	if err != nil {
		return errors.WithDeferred(fmt.Errorf("watching %q: %w", dir, err), w.watcher.Close())
	}

	w.wg.Add(1)
	go w.handleEvents(context.WithoutCancel(ctx))

	w.logger.InfoContext(ctx, "watching", "path", w.path)

	return nil
}

// Shutdown implements the [service.Interface] interface for *Watcher.
func (w *Watcher) Shutdown(ctx context.Context) (err error) {
	if w.watcher == nil {
		return nil
	}

	close(w.done)
	err = w.watcher.Close()
	w.wg.Wait()

	if err != nil {
		return fmt.Errorf("closing file watcher: %w", err)
	}

	w.logger.InfoContext(ctx, "stopped watching")

	return nil
}

// handleEvents processes the events of the watcher until it's closed.  It is
// intended to be used as a goroutine.
func (w *Watcher) handleEvents(ctx context.Context) {
	defer w.wg.Done()
	defer slogutil.RecoverAndLog(ctx, w.logger)

	// timer is nil until the first change.  Its channel is never drained
	// explicitly, since [time.Timer.Reset] discards the stale values.
	var timer *time.Timer
	var timerCh <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !w.isRelevant(ev) {
				continue
			}

			w.logger.DebugContext(ctx, "file changed", "op", ev.Op)

			if timer == nil {
				timer = time.NewTimer(w.delay)
				timerCh = timer.C
			} else {
				timer.Reset(w.delay)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			errcoll.Collect(ctx, w.errColl, w.logger, "watching file", err)
		case <-timerCh:
			w.refresh(ctx)
		}
	}
}

// isRelevant returns true if ev is a change of the watched file.
func (w *Watcher) isRelevant(ev fsnotify.Event) (ok bool) {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}

	return ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Remove) ||
		ev.Has(fsnotify.Rename)
}

// refresh refreshes the refresher and reports the error, if any.
func (w *Watcher) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	err := w.refresher.Refresh(ctx)
	if err != nil {
		errcoll.Collect(ctx, w.errColl, w.logger, "refreshing after file change", err)

		return
	}

	w.logger.InfoContext(ctx, "refreshed after file change")
}
