// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/camrec/internal/config"
	"github.com/ManuGH/camrec/internal/version"
)

func runConfigCLI(args []string) int {
	return runConfig(args, os.Stdout, os.Stderr)
}

func runConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  camrecd config validate [--file|-f camrec.yaml]")
	fmt.Fprintln(w, "  camrecd config dump [--file|-f camrec.yaml] [--format=yaml|json]")
}

// resolveDefaultConfigPath picks ${CAMREC_DATA}/camrec.yaml if it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(config.ParseString("CAMREC_DATA", ""))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "camrec.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func configFlags(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	return fs, &file
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs, file := configFlags("camrecd config validate", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}
	if configPath == "" {
		fmt.Fprintln(stderr, "Error: --file is required (no camrec.yaml found in $CAMREC_DATA)")
		return 2
	}

	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	fmt.Fprintf(stdout, "%s is valid\n", configPath)
	return 0
}

// runConfigDump prints the effective configuration (defaults + file + env).
// Without a file it shows defaults merged with the environment.
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs, file := configFlags("camrecd config dump", stderr)
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}
	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}
	fileCfg := fileConfigFromAppConfig(cfg)

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", *format)
		return 2
	}
}

// fileConfigFromAppConfig renders cfg in the file schema with secrets redacted.
func fileConfigFromAppConfig(cfg config.AppConfig) config.FileConfig {
	ptr := func(v int) *int { return &v }
	b := func(v bool) *bool { return &v }
	f := func(v float64) *float64 { return &v }
	u := func(v uint64) *uint64 { return &v }

	password := ""
	if cfg.Redis.Password != "" {
		password = "***"
	}

	return config.FileConfig{
		LogLevel:  cfg.LogLevel,
		Listen:    cfg.Listen,
		OutputDir: cfg.OutputDir,
		Writer: config.FileWriterConfig{
			Backend:         cfg.Writer.Backend,
			QueueSize:       ptr(cfg.Writer.QueueSize),
			FinalizeTimeout: cfg.Writer.FinalizeTimeout.String(),
			FFmpegPath:      cfg.Writer.FFmpegPath,
			Codec:           cfg.Writer.Codec,
			Preset:          cfg.Writer.Preset,
			CRF:             ptr(cfg.Writer.CRF),
			StopGrace:       cfg.Writer.StopGrace.String(),
		},
		Source: config.FileSourceConfig{
			Width:     ptr(cfg.Source.Width),
			Height:    ptr(cfg.Source.Height),
			FrameRate: f(cfg.Source.FrameRate),
			Format:    cfg.Source.Format,
			FailAfter: u(cfg.Source.FailAfter),
		},
		Capture: config.FileCaptureConfig{
			RenderingEnabled: b(cfg.Capture.RenderingEnabled),
			Orientation:      cfg.Capture.Orientation,
			AutoStart:        b(cfg.Capture.AutoStart),
		},
		Catalog: config.FileCatalogConfig{
			Path:            cfg.Catalog.Path,
			VerifyOnStartup: b(cfg.Catalog.VerifyOnStartup),
		},
		Redis: config.FileRedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: password,
			DB:       ptr(cfg.Redis.DB),
			Channel:  cfg.Redis.Channel,
		},
		Telemetry: config.FileTelemetryConfig{
			Enabled:      b(cfg.Telemetry.Enabled),
			Exporter:     cfg.Telemetry.Exporter,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: f(cfg.Telemetry.SamplingRate),
			Environment:  cfg.Telemetry.Environment,
		},
		RateLimit: config.FileRateLimitConfig{
			Enabled:           b(cfg.RateLimit.Enabled),
			RequestsPerMinute: ptr(cfg.RateLimit.RequestsPerMinute),
		},
	}
}
