// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/config"
	"github.com/ManuGH/camrec/internal/metrics"
)

// Controls is the part of the controller that configuration reloads drive.
type Controls interface {
	SetRenderingEnabled(enabled bool)
	SetOrientation(o capture.Orientation) error
	StartRunning(ctx context.Context) error
}

// App owns the long-lived runtime lifecycle (config watcher, reload wiring,
// auto start) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	controls     Controls
	autoStart    bool
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder and controls may be nil.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.Holder, controls Controls, autoStart bool) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		controls:     controls,
		autoStart:    autoStart,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The watcher is best-effort: a failure leaves the last good config in place.
	if a.cfgHolder != nil {
		g.Go(func() error {
			if err := a.cfgHolder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
	}

	if a.cfgHolder != nil && a.controls != nil {
		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.autoStart && a.controls != nil {
		g.Go(func() error {
			if err := a.controls.StartRunning(ctx); err != nil {
				a.logger.Warn().Err(err).Str("event", "capture.autostart_failed").Msg("auto start failed")
			}
			return nil
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	})

	return g.Wait()
}

// apply pushes the live-reloadable capture settings into the controller.
// Everything else in the config takes effect on restart.
func (a *App) apply(cfg config.AppConfig) {
	metrics.IncConfigReload("applied")
	a.controls.SetRenderingEnabled(cfg.Capture.RenderingEnabled)
	if err := a.controls.SetOrientation(cfg.Capture.ParsedOrientation()); err != nil {
		a.logger.Warn().Err(err).Str("event", "config.apply_failed").Msg("could not apply orientation")
		return
	}
	a.logger.Info().
		Str("event", "config.applied").
		Bool("rendering_enabled", cfg.Capture.RenderingEnabled).
		Str("orientation", cfg.Capture.Orientation).
		Msg("applied capture settings from reloaded config")
}
