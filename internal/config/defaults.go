// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// DefaultOutputDir is used when neither file nor environment set one.
const DefaultOutputDir = "./recordings"

// CatalogDir holds the catalog database inside the output directory. It is a
// subdirectory so recording scans only see artifacts.
const CatalogDir = ".camrec"

// Defaults returns the built-in configuration. An empty catalog path is
// resolved to CatalogDir/catalog.db inside the output directory by the loader.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:  "info",
		Listen:    ":8089",
		OutputDir: DefaultOutputDir,
		Writer: WriterConfig{
			Backend:    BackendRawfile,
			QueueSize:  120,
			FFmpegPath: "ffmpeg",
			Codec:      "libx264",
			Preset:     "veryfast",
			CRF:        20,
			StopGrace:  5 * time.Second,
		},
		Source: SourceConfig{
			Width:     640,
			Height:    480,
			FrameRate: 30,
			Format:    "gray",
		},
		Capture: CaptureConfig{
			RenderingEnabled: true,
			Orientation:      "portrait",
		},
		Catalog: CatalogConfig{
			VerifyOnStartup: true,
		},
		Redis: RedisConfig{
			Channel: "camrec:events",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
		},
	}
}
