// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/validate"
)

// Validate checks cfg and returns every failing field at once. The output
// directory is created if it does not exist.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("LogLevel", cfg.LogLevel)
	v.ListenAddr("Listen", cfg.Listen)
	v.Directory("OutputDir", cfg.OutputDir, false)

	w := cfg.Writer
	v.OneOf("Writer.Backend", w.Backend, []string{BackendRawfile, BackendFFmpeg})
	v.Range("Writer.QueueSize", w.QueueSize, 1, 10000)
	v.NonNegativeDuration("Writer.FinalizeTimeout", w.FinalizeTimeout)
	if w.Backend == BackendFFmpeg {
		v.NotEmpty("Writer.FFmpegPath", w.FFmpegPath)
		v.NotEmpty("Writer.Codec", w.Codec)
		v.Range("Writer.CRF", w.CRF, 0, 51)
		v.NonNegativeDuration("Writer.StopGrace", w.StopGrace)
	}

	s := cfg.Source
	v.Range("Source.Width", s.Width, 1, 8192)
	v.Range("Source.Height", s.Height, 1, 8192)
	v.RangeFloat("Source.FrameRate", s.FrameRate, 1, 240)
	if !capture.PixelFormat(s.Format).Valid() {
		v.AddError("Source.Format", fmt.Sprintf("unsupported pixel format %q", s.Format), s.Format)
	}

	v.Custom("Capture.Orientation", cfg.Capture.Orientation, func(any) error {
		_, err := capture.ParseOrientation(cfg.Capture.Orientation)
		return err
	})
	v.NotEmpty("Catalog.Path", cfg.Catalog.Path)

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		v.Range("Redis.DB", cfg.Redis.DB, 0, 15)
		v.NotEmpty("Redis.Channel", cfg.Redis.Channel)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.RangeFloat("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.RateLimit.Enabled {
		v.Positive("RateLimit.RequestsPerMinute", cfg.RateLimit.RequestsPerMinute)
	}

	return v.Err()
}

// ParsedOrientation returns the configured orientation. Validate has already
// rejected unknown names, so this falls back to portrait only for unvalidated input.
func (c CaptureConfig) ParsedOrientation() capture.Orientation {
	o, err := capture.ParseOrientation(c.Orientation)
	if err != nil {
		return capture.OrientationPortrait
	}
	return o
}
