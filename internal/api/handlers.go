// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/eventsink"
	"github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
	"github.com/ManuGH/camrec/internal/recordings"
)

// StatusResponse is the body of GET /api/v1/status and of every control call.
type StatusResponse struct {
	State            capture.State             `json:"state"`
	RenderingEnabled bool                      `json:"rendering_enabled"`
	Orientation      string                    `json:"orientation"`
	Properties       *capture.StreamProperties `json:"properties,omitempty"`
	Stats            capture.Stats             `json:"stats"`
}

// SettingsRequest is the body of PUT /api/v1/settings. Absent fields are unchanged.
type SettingsRequest struct {
	RenderingEnabled *bool   `json:"rendering_enabled,omitempty"`
	Orientation      *string `json:"orientation,omitempty"`
}

// RecordingsResponse is the body of GET /api/v1/recordings.
type RecordingsResponse struct {
	Recordings []recordings.Record `json:"recordings"`
	Files      []recordings.Entry  `json:"files"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		State:            s.rec.State(),
		RenderingEnabled: s.rec.RenderingEnabled(),
		Orientation:      s.rec.Orientation().String(),
		Stats:            s.rec.Stats(),
	}
	if resp.State.Active() {
		p := s.rec.Properties()
		resp.Properties = &p
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// control adapts a controller operation to a POST handler. Open and start
// failures are reported as events, so success here means the request was applied.
func (s *Server) control(op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context()); err != nil {
			writeProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.status())
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid settings body: %v", err))
		return
	}

	if req.Orientation != nil {
		o, err := capture.ParseOrientation(*req.Orientation)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		if err := s.rec.SetOrientation(o); err != nil {
			writeProblem(w, r, err)
			return
		}
	}
	if req.RenderingEnabled != nil {
		s.rec.SetRenderingEnabled(*req.RenderingEnabled)
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "settings.updated").
		Bool("rendering_enabled", s.rec.RenderingEnabled()).
		Str(log.FieldOrientation, s.rec.Orientation().String()).
		Msg("capture settings updated")
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeBadRequest(w, r, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	resp := RecordingsResponse{Recordings: []recordings.Record{}, Files: []recordings.Entry{}}
	if s.catalog != nil {
		recs, err := s.catalog.List(r.Context(), limit)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		resp.Recordings = append(resp.Recordings, recs...)
	}
	if s.outputDir != "" {
		files, err := recordings.ScanDir(s.outputDir, s.classify)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		resp.Files = append(resp.Files, files...)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeProblem(w, r, recordings.ErrNotFound)
		return
	}
	rec, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.snapshot == nil {
		writeJSON(w, http.StatusNotFound, Problem{Error: "no_preview", Detail: "preview snapshots are disabled"})
		return
	}
	var width uint64
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil || n == 0 {
			writeBadRequest(w, r, "width must be a positive integer")
			return
		}
		width = n
	}

	data, frame, err := s.snapshot.PNG(uint(width))
	if err != nil {
		if errors.Is(err, eventsink.ErrNoPreview) {
			metrics.IncPreviewEncode("empty")
		} else {
			metrics.IncPreviewEncode("failure")
		}
		writeProblem(w, r, err)
		return
	}
	metrics.IncPreviewEncode("success")
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
