// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads camrec configuration from defaults, a YAML file and
// CAMREC_* environment variables, in increasing order of precedence.
package config

import "time"

// Writer backends.
const (
	BackendRawfile = "rawfile"
	BackendFFmpeg  = "ffmpeg"
)

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version  string
	LogLevel string

	// Listen is the HTTP control surface address.
	Listen    string
	OutputDir string

	Writer    WriterConfig
	Source    SourceConfig
	Capture   CaptureConfig
	Catalog   CatalogConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
}

// WriterConfig selects and tunes the recording backend.
type WriterConfig struct {
	Backend   string
	QueueSize int

	// FinalizeTimeout bounds the controller's wait for a writer to finish.
	// Zero waits for as long as the writer takes.
	FinalizeTimeout time.Duration

	FFmpegPath string
	Codec      string
	Preset     string
	CRF        int
	StopGrace  time.Duration
}

// SourceConfig configures the synthetic frame source.
type SourceConfig struct {
	Width     int
	Height    int
	FrameRate float64
	Format    string
	// FailAfter injects a source fault after that many frames when > 0.
	FailAfter uint64
}

// CaptureConfig holds the controller settings that can change at runtime.
type CaptureConfig struct {
	RenderingEnabled bool
	Orientation      string
	// AutoStart starts the source when the daemon comes up.
	AutoStart bool
}

// CatalogConfig locates the SQLite artifact catalog.
type CatalogConfig struct {
	Path            string
	VerifyOnStartup bool
}

// RedisConfig enables lifecycle event publishing when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// TelemetryConfig mirrors telemetry.Config.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// RateLimitConfig limits control requests per client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// FileConfig is the YAML file schema. Pointer fields distinguish an explicit
// zero value from an absent key.
type FileConfig struct {
	LogLevel  string `yaml:"logLevel,omitempty"`
	Listen    string `yaml:"listen,omitempty"`
	OutputDir string `yaml:"outputDir,omitempty"`

	Writer    FileWriterConfig    `yaml:"writer,omitempty"`
	Source    FileSourceConfig    `yaml:"source,omitempty"`
	Capture   FileCaptureConfig   `yaml:"capture,omitempty"`
	Catalog   FileCatalogConfig   `yaml:"catalog,omitempty"`
	Redis     FileRedisConfig     `yaml:"redis,omitempty"`
	Telemetry FileTelemetryConfig `yaml:"telemetry,omitempty"`
	RateLimit FileRateLimitConfig `yaml:"rateLimit,omitempty"`
}

type FileWriterConfig struct {
	Backend         string `yaml:"backend,omitempty"`
	QueueSize       *int   `yaml:"queueSize,omitempty"`
	FinalizeTimeout string `yaml:"finalizeTimeout,omitempty"` // e.g. "30s"
	FFmpegPath      string `yaml:"ffmpegPath,omitempty"`
	Codec           string `yaml:"codec,omitempty"`
	Preset          string `yaml:"preset,omitempty"`
	CRF             *int   `yaml:"crf,omitempty"`
	StopGrace       string `yaml:"stopGrace,omitempty"`
}

type FileSourceConfig struct {
	Width     *int     `yaml:"width,omitempty"`
	Height    *int     `yaml:"height,omitempty"`
	FrameRate *float64 `yaml:"frameRate,omitempty"`
	Format    string   `yaml:"pixelFormat,omitempty"`
	FailAfter *uint64  `yaml:"failAfter,omitempty"`
}

type FileCaptureConfig struct {
	RenderingEnabled *bool  `yaml:"renderingEnabled,omitempty"`
	Orientation      string `yaml:"orientation,omitempty"`
	AutoStart        *bool  `yaml:"autoStart,omitempty"`
}

type FileCatalogConfig struct {
	Path            string `yaml:"path,omitempty"`
	VerifyOnStartup *bool  `yaml:"verifyOnStartup,omitempty"`
}

type FileRedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       *int   `yaml:"db,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

type FileTelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
}

type FileRateLimitConfig struct {
	Enabled           *bool `yaml:"enabled,omitempty"`
	RequestsPerMinute *int  `yaml:"requestsPerMinute,omitempty"`
}
