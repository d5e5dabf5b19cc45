// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook releases one resource during shutdown.
type ShutdownHook func(ctx context.Context) error

// Manager owns the control API listener and the shutdown sequence.
type Manager interface {
	// Start serves the API until ctx is cancelled or serving fails, then
	// shuts down before returning.
	Start(ctx context.Context) error
	// Shutdown stops the server and runs the hooks, newest first. Calls after
	// the first return nil.
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
	// Addr blocks until Start has tried to bind and returns the bound
	// address, or "" when binding failed.
	Addr() string
}

type namedHook struct {
	name string
	run  ShutdownHook
}

type manager struct {
	cfg     ServerConfig
	handler http.Handler
	logger  zerolog.Logger

	bound chan struct{}

	mu       sync.Mutex
	srv      *http.Server
	addr     string
	hooks    []namedHook
	started  bool
	shutdown bool
}

// NewManager validates deps and returns a Manager that has not bound yet.
func NewManager(cfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &manager{
		cfg:     cfg,
		handler: deps.APIHandler,
		logger:  deps.Logger.With().Str("component", "manager").Logger(),
		bound:   make(chan struct{}),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	serveErr, err := m.listen()
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	var cause error
	select {
	case cause = <-serveErr:
		m.logger.Error().Err(cause).Str("event", "api.server.failed").Msg("API server failed, shutting down")
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown requested")
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(cause, m.Shutdown(sctx))
}

// listen binds the listener and serves on a goroutine. The returned channel
// receives the error if serving stops for any reason but Shutdown.
func (m *manager) listen() (<-chan error, error) {
	defer close(m.bound)

	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           m.handler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
		MaxHeaderBytes:    m.cfg.MaxHeaderBytes,
	}
	m.mu.Lock()
	m.srv = srv
	m.addr = ln.Addr().String()
	m.mu.Unlock()

	m.logger.Info().
		Str("addr", ln.Addr().String()).
		Dur("write_timeout", m.cfg.WriteTimeout).
		Msg("control API listening")

	errc := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("API server: %w", err)
		}
	}()
	return errc, nil
}

func (m *manager) Addr() string {
	<-m.bound
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case !m.started:
		m.mu.Unlock()
		return ErrManagerNotStarted
	case m.shutdown:
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	srv := m.srv
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		started := time.Now()
		err := h.run(ctx)
		ev := m.logger.Debug()
		if err != nil {
			ev = m.logger.Error().Err(err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
		ev.Str("hook", h.name).Dur("duration", time.Since(started)).Msg("shutdown hook finished")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}
	m.logger.Info().Msg("daemon stopped cleanly")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, namedHook{name: name, run: hook})
	m.mu.Unlock()
}
