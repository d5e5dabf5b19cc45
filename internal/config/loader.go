// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/camrec/internal/metrics"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	version    string

	// ConsumedEnvKeys records every environment key the last Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath skips
// the file layer.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, possibly empty.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults, then validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.OutputDir); err == nil {
		cfg.OutputDir = abs
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = filepath.Join(cfg.OutputDir, CatalogDir, "catalog.db")
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		metrics.IncConfigValidationError()
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

// LoadFileConfig loads a YAML config file without applying defaults or env overrides.
func LoadFileConfig(path string) (*FileConfig, error) {
	return NewLoader(path, "").loadFile(path)
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Listen != "" {
		dst.Listen = src.Listen
	}
	if src.OutputDir != "" {
		dst.OutputDir = expandEnv(src.OutputDir)
	}
	if err := mergeFileWriter(&dst.Writer, src.Writer); err != nil {
		return err
	}
	mergeFileSource(&dst.Source, src.Source)
	mergeFileCapture(&dst.Capture, src.Capture)

	if src.Catalog.Path != "" {
		dst.Catalog.Path = expandEnv(src.Catalog.Path)
	}
	setIf(&dst.Catalog.VerifyOnStartup, src.Catalog.VerifyOnStartup)

	if src.Redis.Addr != "" {
		dst.Redis.Addr = src.Redis.Addr
	}
	if src.Redis.Password != "" {
		dst.Redis.Password = expandEnv(src.Redis.Password)
	}
	setIf(&dst.Redis.DB, src.Redis.DB)
	if src.Redis.Channel != "" {
		dst.Redis.Channel = src.Redis.Channel
	}

	setIf(&dst.Telemetry.Enabled, src.Telemetry.Enabled)
	if src.Telemetry.Exporter != "" {
		dst.Telemetry.Exporter = src.Telemetry.Exporter
	}
	if src.Telemetry.Endpoint != "" {
		dst.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	setIf(&dst.Telemetry.SamplingRate, src.Telemetry.SamplingRate)
	if src.Telemetry.Environment != "" {
		dst.Telemetry.Environment = src.Telemetry.Environment
	}

	setIf(&dst.RateLimit.Enabled, src.RateLimit.Enabled)
	setIf(&dst.RateLimit.RequestsPerMinute, src.RateLimit.RequestsPerMinute)
	return nil
}

func mergeFileWriter(dst *WriterConfig, src FileWriterConfig) error {
	if src.Backend != "" {
		dst.Backend = src.Backend
	}
	setIf(&dst.QueueSize, src.QueueSize)
	if err := setDuration(&dst.FinalizeTimeout, "writer.finalizeTimeout", src.FinalizeTimeout); err != nil {
		return err
	}
	if src.FFmpegPath != "" {
		dst.FFmpegPath = expandEnv(src.FFmpegPath)
	}
	if src.Codec != "" {
		dst.Codec = src.Codec
	}
	if src.Preset != "" {
		dst.Preset = src.Preset
	}
	setIf(&dst.CRF, src.CRF)
	return setDuration(&dst.StopGrace, "writer.stopGrace", src.StopGrace)
}

func mergeFileSource(dst *SourceConfig, src FileSourceConfig) {
	setIf(&dst.Width, src.Width)
	setIf(&dst.Height, src.Height)
	setIf(&dst.FrameRate, src.FrameRate)
	if src.Format != "" {
		dst.Format = src.Format
	}
	setIf(&dst.FailAfter, src.FailAfter)
}

func mergeFileCapture(dst *CaptureConfig, src FileCaptureConfig) {
	setIf(&dst.RenderingEnabled, src.RenderingEnabled)
	if src.Orientation != "" {
		dst.Orientation = src.Orientation
	}
	setIf(&dst.AutoStart, src.AutoStart)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

func (l *Loader) env(key string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

// mergeEnvConfig applies CAMREC_* overrides on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = ParseString(l.env("CAMREC_LOG_LEVEL"), cfg.LogLevel)
	cfg.Listen = ParseString(l.env("CAMREC_LISTEN"), cfg.Listen)
	cfg.OutputDir = ParseString(l.env("CAMREC_OUTPUT_DIR"), cfg.OutputDir)

	w := &cfg.Writer
	w.Backend = ParseString(l.env("CAMREC_WRITER_BACKEND"), w.Backend)
	w.QueueSize = ParseInt(l.env("CAMREC_WRITER_QUEUE_SIZE"), w.QueueSize)
	w.FinalizeTimeout = ParseDuration(l.env("CAMREC_FINALIZE_TIMEOUT"), w.FinalizeTimeout)
	w.FFmpegPath = ParseString(l.env("CAMREC_FFMPEG_PATH"), w.FFmpegPath)
	w.Codec = ParseString(l.env("CAMREC_FFMPEG_CODEC"), w.Codec)
	w.Preset = ParseString(l.env("CAMREC_FFMPEG_PRESET"), w.Preset)
	w.CRF = ParseInt(l.env("CAMREC_FFMPEG_CRF"), w.CRF)
	w.StopGrace = ParseDuration(l.env("CAMREC_FFMPEG_STOP_GRACE"), w.StopGrace)

	s := &cfg.Source
	s.Width = ParseInt(l.env("CAMREC_SOURCE_WIDTH"), s.Width)
	s.Height = ParseInt(l.env("CAMREC_SOURCE_HEIGHT"), s.Height)
	s.FrameRate = ParseFloat(l.env("CAMREC_SOURCE_FPS"), s.FrameRate)
	s.Format = ParseString(l.env("CAMREC_SOURCE_PIXEL_FORMAT"), s.Format)
	s.FailAfter = ParseUint(l.env("CAMREC_SOURCE_FAIL_AFTER"), s.FailAfter)

	c := &cfg.Capture
	c.RenderingEnabled = ParseBool(l.env("CAMREC_RENDERING_ENABLED"), c.RenderingEnabled)
	c.Orientation = ParseString(l.env("CAMREC_ORIENTATION"), c.Orientation)
	c.AutoStart = ParseBool(l.env("CAMREC_AUTO_START"), c.AutoStart)

	cfg.Catalog.Path = ParseString(l.env("CAMREC_CATALOG_PATH"), cfg.Catalog.Path)
	cfg.Catalog.VerifyOnStartup = ParseBool(l.env("CAMREC_CATALOG_VERIFY"), cfg.Catalog.VerifyOnStartup)

	r := &cfg.Redis
	r.Addr = ParseString(l.env("CAMREC_REDIS_ADDR"), r.Addr)
	r.Password = ParseString(l.env("CAMREC_REDIS_PASSWORD"), r.Password)
	r.DB = ParseInt(l.env("CAMREC_REDIS_DB"), r.DB)
	r.Channel = ParseString(l.env("CAMREC_REDIS_CHANNEL"), r.Channel)

	t := &cfg.Telemetry
	t.Enabled = ParseBool(l.env("CAMREC_OTEL_ENABLED"), t.Enabled)
	t.Exporter = ParseString(l.env("CAMREC_OTEL_EXPORTER"), t.Exporter)
	t.Endpoint = ParseString(l.env("CAMREC_OTEL_ENDPOINT"), t.Endpoint)
	t.SamplingRate = ParseFloat(l.env("CAMREC_OTEL_SAMPLING_RATE"), t.SamplingRate)
	t.Environment = ParseString(l.env("CAMREC_OTEL_ENVIRONMENT"), t.Environment)

	cfg.RateLimit.Enabled = ParseBool(l.env("CAMREC_RATE_LIMIT_ENABLED"), cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = ParseInt(l.env("CAMREC_RATE_LIMIT_RPM"), cfg.RateLimit.RequestsPerMinute)
}
