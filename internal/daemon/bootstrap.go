// SPDX-License-Identifier: MIT

// Package daemon wires the capture controller, its writers and sinks, and the
// HTTP surface into a running process.
package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/api"
	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/config"
	"github.com/ManuGH/camrec/internal/eventsink"
	"github.com/ManuGH/camrec/internal/health"
	"github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/recordings"
	"github.com/ManuGH/camrec/internal/source/synthetic"
	"github.com/ManuGH/camrec/internal/telemetry"
	"github.com/ManuGH/camrec/internal/writer/ffmpeg"
	"github.com/ManuGH/camrec/internal/writer/rawfile"
)

// ServiceName is reported to tracing and logs.
const ServiceName = "camrec"

// Options tune Bootstrap. Source and Writers override the configured ones.
type Options struct {
	Server ServerConfig
	// Logger defaults to the global logger with component=daemon.
	Logger  *zerolog.Logger
	Source  capture.FrameSource
	Writers capture.WriterFactory
}

// Runtime is a fully wired daemon. Its Manager owns shutdown of every part.
type Runtime struct {
	Config     config.AppConfig
	Controller *capture.Controller
	Catalog    *recordings.Catalog
	Snapshot   *eventsink.Snapshot
	Health     *health.Manager
	API        *api.Server
	Manager    Manager
	Publisher  *eventsink.RedisPublisher
}

// Bootstrap builds every component for cfg. On error, whatever was already
// opened is released again.
func Bootstrap(ctx context.Context, cfg config.AppConfig, opts Options) (rt *Runtime, err error) {
	logger := log.WithComponent("daemon")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Server.ListenAddr == "" {
		opts.Server = DefaultServerConfig(cfg.Listen)
	}

	var cleanups []func(context.Context) error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i](context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	cleanups = append(cleanups, tp.Shutdown)

	catalog, err := recordings.OpenCatalog(ctx, cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	cleanups = append(cleanups, func(context.Context) error { return catalog.Close() })

	writers := opts.Writers
	if writers == nil {
		if writers, err = NewWriterFactory(cfg); err != nil {
			return nil, err
		}
	}

	source := opts.Source
	if source == nil {
		if source, err = synthetic.New(synthetic.Config{
			Width:     cfg.Source.Width,
			Height:    cfg.Source.Height,
			FrameRate: cfg.Source.FrameRate,
			Format:    capture.PixelFormat(cfg.Source.Format),
			FailAfter: cfg.Source.FailAfter,
		}); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
	}

	snapshot := &eventsink.Snapshot{}
	handlers := []capture.Handler{
		eventsink.LogSink{Logger: log.WithComponent("events")},
		snapshot,
		eventsink.LifecycleOnly(eventsink.CatalogRecorder{Store: catalog, Logger: log.WithComponent("catalog")}),
	}

	var publisher *eventsink.RedisPublisher
	if cfg.Redis.Addr != "" {
		publisher, err = eventsink.NewRedisPublisher(ctx, eventsink.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, log.WithComponent("events.redis"))
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		cleanups = append(cleanups, func(context.Context) error { return publisher.Close() })
		handlers = append(handlers, eventsink.LifecycleOnly(publisher))
	}

	ctrlLogger := log.WithComponent("capture")
	ctrl, err := capture.New(capture.Config{
		Source:           source,
		Writers:          writers,
		Handler:          eventsink.NewFanout(handlers...),
		Logger:           &ctrlLogger,
		FinalizeTimeout:  cfg.Writer.FinalizeTimeout,
		RenderingEnabled: cfg.Capture.RenderingEnabled,
		Orientation:      cfg.Capture.ParsedOrientation(),
	})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	cleanups = append(cleanups, ctrl.Close)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewControllerChecker(ctrl))
	hm.RegisterChecker(health.NewPingChecker("catalog", catalog.Ping, false))
	hm.RegisterChecker(health.NewDirChecker("output_dir", cfg.OutputDir))
	if publisher != nil {
		hm.RegisterChecker(health.NewPingChecker("redis", publisher.HealthCheck, true))
	}

	deps := api.Deps{
		Recorder:  ctrl,
		Catalog:   catalog,
		Snapshot:  snapshot,
		Health:    hm,
		OutputDir: cfg.OutputDir,
	}
	if cfg.RateLimit.Enabled {
		deps.ControlRateLimit = cfg.RateLimit.RequestsPerMinute
	}
	if cfg.Telemetry.Enabled {
		deps.TracingService = ServiceName
	}
	srv := api.New(deps)

	mgr, err := NewManager(opts.Server, Deps{Logger: logger, APIHandler: srv.Handler()})
	if err != nil {
		return nil, err
	}
	// LIFO: the controller finalizes any recording before the sinks it
	// reports to are closed.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("catalog", func(context.Context) error { return catalog.Close() })
	if publisher != nil {
		mgr.RegisterShutdownHook("redis", func(context.Context) error { return publisher.Close() })
	}
	mgr.RegisterShutdownHook("controller", ctrl.Close)

	return &Runtime{
		Config:     cfg,
		Controller: ctrl,
		Catalog:    catalog,
		Snapshot:   snapshot,
		Health:     hm,
		API:        srv,
		Manager:    mgr,
		Publisher:  publisher,
	}, nil
}

// NewWriterFactory builds the configured writer backend.
func NewWriterFactory(cfg config.AppConfig) (capture.WriterFactory, error) {
	switch cfg.Writer.Backend {
	case config.BackendRawfile:
		f, err := rawfile.NewFactory(rawfile.Config{
			Dir:       cfg.OutputDir,
			QueueSize: cfg.Writer.QueueSize,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.BackendFFmpeg:
		f, err := ffmpeg.NewFactory(ffmpeg.Config{
			BinaryPath: cfg.Writer.FFmpegPath,
			Dir:        cfg.OutputDir,
			QueueSize:  cfg.Writer.QueueSize,
			Encode: ffmpeg.EncodeOptions{
				Codec:  cfg.Writer.Codec,
				Preset: cfg.Writer.Preset,
				CRF:    cfg.Writer.CRF,
			},
			StopGrace: cfg.Writer.StopGrace,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Writer.Backend)
	}
}
