// Package lifecycle runs the HTTP listener and drives the service through
// Starting -> Serving -> Draining -> Stopped.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type State int32

const (
	Starting State = iota
	Serving
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Hook runs during Draining, after the listener stops accepting connections.
// ctx carries the remaining shutdown budget.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

type Options struct {
	Logger          *log.Logger
	ShutdownTimeout time.Duration
}

type Manager struct {
	log     *log.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []namedHook
	state atomic.Int32
}

func New(opt Options) *Manager {
	m := &Manager{log: opt.Logger, timeout: opt.ShutdownTimeout}
	if m.log == nil {
		m.log = log.StandardLogger()
	}
	if m.timeout <= 0 {
		m.timeout = 10 * time.Second
	}
	return m
}

// OnShutdown registers a hook. Hooks run in registration order.
func (m *Manager) OnShutdown(name string, fn Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: fn})
}

func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) transition(to State) {
	from := State(m.state.Swap(int32(to)))
	m.log.WithFields(log.Fields{"from": from.String(), "to": to.String()}).Debug("lifecycle")
}

// Run serves srv on ln until ctx is done, then drains: the server stops
// accepting and waits for in-flight requests, and the hooks run, all within
// the shutdown timeout. A nil error means a graceful stop.
func (m *Manager) Run(ctx context.Context, srv *http.Server, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	m.transition(Serving)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		m.transition(Draining)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		errs = append(errs, m.runHooks(shutdownCtx)...)

		m.transition(Stopped)
		return errors.Join(errs...)
	})

	return g.Wait()
}

func (m *Manager) runHooks(ctx context.Context) []error {
	m.mu.Lock()
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	var errs []error
	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			m.log.WithError(err).WithField("hook", h.name).Error("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.log.WithField("hook", h.name).Info("shutdown hook done")
	}
	return errs
}

// Blocking adapts a function without a context (pgxpool.Pool.Close) into a
// Hook that gives up when ctx expires. fn keeps running in the background.
func Blocking(fn func()) Hook {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			fn()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SignalContext is cancelled on the first of sigs. The received signal is logged.
func SignalContext(parent context.Context, logger *log.Logger, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			logger.Infof("%s received, shutting down gracefully", signalName(sig))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func signalName(sig os.Signal) string {
	switch sig.String() {
	case "terminated":
		return "SIGTERM"
	case "interrupt":
		return "SIGINT"
	}
	return sig.String()
}
