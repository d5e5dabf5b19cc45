// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
)

const (
	runPending int32 = iota
	runLive
	runClosed
)

// runSink is the SourceSink handed to one FrameSource.Start call. Once
// closed it rejects everything, so a stale or faulted source cannot reach
// the controller again.
type runSink struct {
	c      *Controller
	id     string
	cancel context.CancelFunc

	phase  atomic.Int32
	fault  atomic.Pointer[error]
	frames atomic.Uint64
}

func newRunSink(c *Controller, id string, cancel context.CancelFunc) *runSink {
	return &runSink{c: c, id: id, cancel: cancel}
}

func (r *runSink) activate() {
	r.phase.CompareAndSwap(runPending, runLive)
}

func (r *runSink) close() {
	r.phase.Store(runClosed)
}

func (r *runSink) HandleFrame(f Frame) {
	c := r.c
	if r.phase.Load() != runLive {
		n := c.framesRejected.Add(1)
		metrics.IncFramesRejected()
		if xglog.Every(n, 100) {
			c.logger.Debug().
				Str(xglog.FieldEvent, "capture.frame_rejected").
				Str(xglog.FieldSessionID, r.id).
				Uint64(xglog.FieldDropped, n).
				Msg("frame outside a live session")
		}
		return
	}
	r.frames.Add(1)
	c.route(f)
}

func (r *runSink) HandleFormatChange(p StreamProperties) {
	if r.phase.Load() == runClosed {
		return
	}
	r.c.props.Store(&p)
	r.c.logger.Info().
		Str(xglog.FieldEvent, "capture.format_changed").
		Str(xglog.FieldSessionID, r.id).
		Str(xglog.FieldResolution, p.Resolution()).
		Float64(xglog.FieldFPS, p.FrameRate).
		Str(xglog.FieldPixelFormat, string(p.Format)).
		Msg("stream format changed")
}

// HandleSourceError records the first error before closing the sink, so a
// stop already in progress still reports it once the source has stopped.
func (r *runSink) HandleSourceError(err error) {
	if err == nil || !r.fault.CompareAndSwap(nil, &err) {
		return
	}
	if r.phase.Swap(runClosed) == runClosed {
		return
	}
	go r.c.post(request{op: opSourceFault, run: r})
}

// sourceFault returns the recorded source error wrapped in ErrSourceFault.
func (r *runSink) sourceFault() error {
	if p := r.fault.Load(); p != nil {
		return fmt.Errorf("%w: %w", ErrSourceFault, *p)
	}
	return nil
}

// route runs on the producer goroutine and must not block.
func (c *Controller) route(f Frame) {
	c.framesProduced.Add(1)
	metrics.IncFramesProduced()

	state := c.State()
	if c.rendering.Load() {
		preview := f
		preview.Orientation = c.Orientation()
		c.disp.OfferPreview(preview, state)
	}
	if state == StateRecording {
		if slot := c.slot.Load(); slot != nil {
			slot.append(f)
		}
	}
}

// recordingSlot guards one Writer. append holds the read side of gate via
// TryRLock so the producer never waits; seal takes the write side once.
type recordingSlot struct {
	c      *Controller
	id     string
	writer Writer

	gate   sync.RWMutex
	sealed bool
	fault  atomic.Pointer[error]

	appended atomic.Uint64
}

func newRecordingSlot(c *Controller, id string, w Writer) *recordingSlot {
	return &recordingSlot{c: c, id: id, writer: w}
}

func (s *recordingSlot) append(f Frame) {
	if !s.gate.TryRLock() {
		return
	}
	defer s.gate.RUnlock()
	if s.sealed || s.fault.Load() != nil {
		return
	}
	if err := s.writer.Append(f); err != nil {
		s.reject(err)
		return
	}
	s.appended.Add(1)
	s.c.framesAppended.Add(1)
	metrics.IncFramesAppended()
}

// reject records the first Append error. It runs under the read side of
// gate, so once seal returns the error is visible to writerFault.
func (s *recordingSlot) reject(err error) {
	if !s.fault.CompareAndSwap(nil, &err) {
		return
	}
	reason := writerFaultReason(err)
	metrics.IncWriterFault(reason)
	s.c.logger.Warn().Err(err).
		Str(xglog.FieldEvent, "capture.writer_fault").
		Str(xglog.FieldRecordingID, s.id).
		Str("reason", reason).
		Msg("writer rejected frame, stopping recording")
	go s.c.post(request{op: opWriterFault, slot: s})
}

// writerFault returns the recorded Append error wrapped in ErrWriterFault.
func (s *recordingSlot) writerFault() error {
	if p := s.fault.Load(); p != nil {
		return fmt.Errorf("%w: %w", ErrWriterFault, *p)
	}
	return nil
}

func (s *recordingSlot) seal() {
	s.gate.Lock()
	s.sealed = true
	s.gate.Unlock()
}
