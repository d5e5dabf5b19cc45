// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package eventsink

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/capture"
	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
	"github.com/ManuGH/camrec/internal/recordings"
)

// ArtifactStore is the subset of recordings.Catalog the recorder needs.
type ArtifactStore interface {
	Add(ctx context.Context, rec recordings.Record) error
}

// CatalogRecorder stores every artifact delivered in a did-stop event.
type CatalogRecorder struct {
	Store   ArtifactStore
	Logger  zerolog.Logger
	Timeout time.Duration
}

func (r CatalogRecorder) HandleEvent(ev capture.Event) {
	if ev.Kind != capture.EventRecordingDidStop || ev.Artifact == nil {
		return
	}
	rec := recordings.Record{Artifact: *ev.Artifact}
	if ev.Err != nil {
		rec.Fault = ev.Err.Error()
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.Store.Add(ctx, rec); err != nil {
		metrics.IncCatalogWrite("failure")
		r.Logger.Error().Err(err).
			Str(xglog.FieldEvent, "catalog.add_failed").
			Str(xglog.FieldRecordingID, rec.ID).
			Msg("failed to catalog recording")
		return
	}
	metrics.IncCatalogWrite("success")
}
