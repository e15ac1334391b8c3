// Package app owns the lifecycle shared by every Foyer service binary.
//
// A Service wraps one HTTP listener plus the resources behind it: Run
// blocks until the context is cancelled or the listener fails, and
// Shutdown drains in-flight requests and then tears resources down in
// registration order under a deadline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// readHeaderTimeout bounds slow-header clients on every listener.
const readHeaderTimeout = 10 * time.Second

// Service is one HTTP server and the closers behind it.
type Service struct {
	name string
	srv  *http.Server

	mu      sync.Mutex
	addr    string
	closers []closer

	stopOnce sync.Once
}

type closer struct {
	name  string
	close func() error
}

// New wraps handler in a service named name listening on addr.
func New(name, addr string, handler http.Handler) *Service {
	return &Service{
		name: name,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// OnClose registers a named resource to close during Shutdown. Closers run
// in registration order, matching the wiring order in main.
func (s *Service) OnClose(name string, close func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, closer{name: name, close: close})
}

// Addr returns the bound listen address once Run has opened the listener,
// or "" before that. With a configured port of 0 this is the only way to
// learn the real port.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run opens the listener and serves until ctx is cancelled or the server
// fails. Cancellation is the normal way to stop: Run returns nil for it so
// callers can chain straight into Shutdown.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("app: %s: listen on %s: %w", s.name, s.srv.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info(s.name+" listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("app: %s: serve: %w", s.name, err)
	}
}

// Shutdown stops accepting connections, waits for in-flight requests up to
// the ctx deadline, then runs the registered closers. Closers remaining
// when the deadline passes are skipped and the context error is returned.
// Safe to call more than once; only the first call does anything.
func (s *Service) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		closers := s.closers
		s.mu.Unlock()

		slog.Info(s.name+" shutting down", "closers", len(closers))

		if err := s.srv.Shutdown(ctx); err != nil {
			slog.Warn(s.name+": server shutdown error", "err", err)
			shutdownErr = err
		}

		for i, c := range closers {
			select {
			case <-ctx.Done():
				slog.Warn(s.name+": shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := c.close(); err != nil {
				slog.Warn(s.name+": closer error", "closer", c.name, "err", err)
			}
		}

		slog.Info(s.name + " stopped")
	})
	return shutdownErr
}
