// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package capturetest provides in-memory collaborators for exercising a
// capture.Controller: a hand-driven frame source, a recording writer
// factory and an event collector.
package capturetest

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/camrec/internal/capture"
)

// DefaultProperties is the format ManualSource reports unless overridden.
var DefaultProperties = capture.StreamProperties{
	FrameRate: 30,
	Width:     64,
	Height:    48,
	Format:    capture.PixelFormatGray,
}

// ManualSource is a FrameSource driven by the test. It keeps the sink of the
// last Start even after Stop, so tests can push frames into a stopped run.
type ManualSource struct {
	mu       sync.Mutex
	sink     capture.SourceSink
	props    capture.StreamProperties
	seq      uint64
	startErr error
	stopErr  error
	starts   int
	stops    int
}

// NewManualSource returns a source reporting DefaultProperties.
func NewManualSource() *ManualSource {
	return &ManualSource{props: DefaultProperties}
}

// FailStart makes the next Start calls return err.
func (s *ManualSource) FailStart(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

// FailStop makes Stop return err.
func (s *ManualSource) FailStop(err error) {
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
}

func (s *ManualSource) Start(_ context.Context, sink capture.SourceSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	s.sink = sink
	return nil
}

func (s *ManualSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return s.stopErr
}

func (s *ManualSource) Properties() capture.StreamProperties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// Counts returns how often Start and Stop were called.
func (s *ManualSource) Counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

func (s *ManualSource) currentSink() capture.SourceSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// NextFrame builds a frame in the current format without emitting it.
func (s *ManualSource) NextFrame() capture.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p := s.props
	return capture.Frame{
		Seq:    s.seq,
		PTS:    time.Duration(s.seq) * p.FrameInterval(),
		Format: p.Format,
		Width:  p.Width,
		Height: p.Height,
		Data:   make([]byte, p.Format.BytesPerFrame(p.Width, p.Height)),
	}
}

// Emit pushes one frame synchronously and returns it.
func (s *ManualSource) Emit() capture.Frame {
	f := s.NextFrame()
	if sink := s.currentSink(); sink != nil {
		sink.HandleFrame(f)
	}
	return f
}

// EmitN pushes n frames back to back.
func (s *ManualSource) EmitN(n int) {
	for i := 0; i < n; i++ {
		s.Emit()
	}
}

// Fail reports a terminal source error.
func (s *ManualSource) Fail(err error) {
	if sink := s.currentSink(); sink != nil {
		sink.HandleSourceError(err)
	}
}

// ChangeFormat switches the negotiated format and reports it.
func (s *ManualSource) ChangeFormat(p capture.StreamProperties) {
	s.mu.Lock()
	s.props = p
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.HandleFormatChange(p)
	}
}
