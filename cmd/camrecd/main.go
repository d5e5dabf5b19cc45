// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/camrec/internal/config"
	"github.com/ManuGH/camrec/internal/daemon"
	"github.com/ManuGH/camrec/internal/health"
	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
	"github.com/ManuGH/camrec/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: daemon.ServiceName,
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Precedence: ENV > File > Defaults
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}
	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: daemon.ServiceName,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	rt, err := daemon.Bootstrap(ctx, cfg, daemon.Options{Logger: &logger})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.bootstrap_failed").
			Msg("failed to initialize daemon")
	}
	metrics.SetBuildInfo(cfg.Version, cfg.Writer.Backend)

	logger.Info().
		Str("event", "startup").
		Str("listen", cfg.Listen).
		Str("backend", cfg.Writer.Backend).
		Str("output_dir", cfg.OutputDir).
		Str("orientation", cfg.Capture.Orientation).
		Bool("auto_start", cfg.Capture.AutoStart).
		Msg("starting camrec")

	holder := config.NewHolder(cfg, loader)
	app := daemon.NewApp(logger, rt.Manager, holder, rt.Controller, cfg.Capture.AutoStart)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
	}
	logger.Info().Str("event", "shutdown.complete").Msg("camrec stopped")
}
