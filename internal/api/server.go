// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the camrec HTTP control surface.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/api/middleware"
	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/eventsink"
	"github.com/ManuGH/camrec/internal/health"
	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/recordings"
)

// Recorder is the controller surface the API drives.
type Recorder interface {
	State() capture.State
	Stats() capture.Stats
	Properties() capture.StreamProperties
	RenderingEnabled() bool
	SetRenderingEnabled(enabled bool)
	Orientation() capture.Orientation
	SetOrientation(o capture.Orientation) error

	StartRunning(ctx context.Context) error
	StopRunning(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
}

// Catalog lists and looks up finalized recordings.
type Catalog interface {
	List(ctx context.Context, limit int) ([]recordings.Record, error)
	Get(ctx context.Context, id string) (recordings.Record, error)
}

// Deps are the server's collaborators. Catalog, Snapshot and Health are optional.
type Deps struct {
	Recorder  Recorder
	Catalog   Catalog
	Snapshot  *eventsink.Snapshot
	Health    *health.Manager
	OutputDir string
	Logger    *zerolog.Logger

	// ControlRateLimit caps control requests per client IP per minute; 0 disables it.
	ControlRateLimit int
	// TracingService enables otelhttp spans under that service name.
	TracingService string
}

// Server implements the HTTP routes.
type Server struct {
	rec       Recorder
	catalog   Catalog
	snapshot  *eventsink.Snapshot
	health    *health.Manager
	outputDir string
	logger    zerolog.Logger
	handler   http.Handler
	classify  recordings.ClassifierConfig
}

// New builds the server and its router.
func New(d Deps) *Server {
	logger := xglog.WithComponent("api")
	if d.Logger != nil {
		logger = *d.Logger
	}
	hm := d.Health
	if hm == nil {
		hm = health.NewManager("")
	}
	s := &Server{
		rec:       d.Recorder,
		catalog:   d.Catalog,
		snapshot:  d.Snapshot,
		health:    hm,
		outputDir: d.OutputDir,
		logger:    logger,
		classify:  recordings.DefaultClassifierConfig(),
	}
	s.handler = s.routes(d)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(d Deps) http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		TracingService: d.TracingService,
		EnableMetrics:  true,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/recordings", s.handleListRecordings)
		r.Get("/recordings/{id}", s.handleGetRecording)
		r.Get("/preview", s.handlePreview)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ControlRateLimit(d.ControlRateLimit))
			r.Post("/running:start", s.control(s.rec.StartRunning))
			r.Post("/running:stop", s.control(s.rec.StopRunning))
			r.Post("/recording:start", s.control(s.rec.StartRecording))
			r.Post("/recording:stop", s.control(s.rec.StopRecording))
			r.Put("/settings", s.handleSettings)
		})
	})
	return r
}
