// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package eventsink

import (
	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/capture"
	xglog "github.com/ManuGH/camrec/internal/log"
)

// LogSink writes lifecycle events to a zerolog logger. Preview frames are
// ignored.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) HandleEvent(ev capture.Event) {
	if !ev.Kind.Lifecycle() {
		return
	}
	e := s.Logger.Info()
	if ev.Err != nil {
		e = s.Logger.Warn().Err(ev.Err)
	}
	e = e.Str(xglog.FieldEvent, "capture."+string(ev.Kind)).
		Uint64("seq", ev.Seq).
		Str("state", string(ev.State))
	if a := ev.Artifact; a != nil {
		e = e.Str(xglog.FieldRecordingID, a.ID).
			Str(xglog.FieldPath, a.Path).
			Str(xglog.FieldBackend, a.Backend).
			Uint64(xglog.FieldFrames, a.Frames).
			Dur("duration", a.Duration)
	}
	e.Msg("capture event")
}
