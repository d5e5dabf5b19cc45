// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/camrec/internal/fsm"
	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
	"github.com/ManuGH/camrec/internal/telemetry"
)

const tracerName = "github.com/ManuGH/camrec/internal/capture"

// Config wires a Controller to its collaborators.
type Config struct {
	Source  FrameSource
	Writers WriterFactory
	Handler Handler

	// Logger defaults to the global logger with component=capture.
	Logger *zerolog.Logger

	// FinalizeTimeout bounds Writer.Finalize. Zero waits as long as the writer needs.
	FinalizeTimeout time.Duration

	RenderingEnabled bool
	// Orientation defaults to OrientationPortrait.
	Orientation Orientation
}

func (c Config) validate() error {
	var errs []error
	if c.Source == nil {
		errs = append(errs, errors.New("source is required"))
	}
	if c.Writers == nil {
		errs = append(errs, errors.New("writer factory is required"))
	}
	if c.Handler == nil {
		errs = append(errs, errors.New("handler is required"))
	}
	if c.FinalizeTimeout < 0 {
		errs = append(errs, errors.New("finalize timeout must not be negative"))
	}
	if c.Orientation != 0 && !c.Orientation.Valid() {
		errs = append(errs, fmt.Errorf("orientation %d out of range", c.Orientation))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Stats is a point-in-time snapshot of the controller counters.
type Stats struct {
	FramesProduced      uint64 `json:"frames_produced"`
	FramesRejected      uint64 `json:"frames_rejected"`
	FramesAppended      uint64 `json:"frames_appended"`
	PreviewDelivered    uint64 `json:"preview_delivered"`
	PreviewDropped      uint64 `json:"preview_dropped"`
	RecordingsCompleted uint64 `json:"recordings_completed"`
	RecordingsFailed    uint64 `json:"recordings_failed"`
}

// Controller is the capture/recording state machine. All methods are safe
// for concurrent use.
type Controller struct {
	source          FrameSource
	writers         WriterFactory
	disp            *Dispatcher
	logger          zerolog.Logger
	tracer          trace.Tracer
	finalizeTimeout time.Duration

	machine *fsm.Machine[State, trigger]

	// Lock-free mirrors read on the producer goroutine.
	state       atomic.Value // State
	rendering   atomic.Bool
	orientation atomic.Int32
	props       atomic.Pointer[StreamProperties]
	slot        atomic.Pointer[recordingSlot]

	framesProduced      atomic.Uint64
	framesRejected      atomic.Uint64
	framesAppended      atomic.Uint64
	recordingsCompleted atomic.Uint64
	recordingsFailed    atomic.Uint64

	baseCtx    context.Context
	baseCancel context.CancelFunc
	requests   chan request
	actorDone  chan struct{}

	// Owned by the actor goroutine.
	run    *runSink
	closed bool
}

// New validates cfg and starts the controller goroutines in StateIdle.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := xglog.WithComponent("capture")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	orientation := cfg.Orientation
	if orientation == 0 {
		orientation = OrientationPortrait
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		source:          cfg.Source,
		writers:         cfg.Writers,
		disp:            NewDispatcher(cfg.Handler, logger),
		logger:          logger,
		tracer:          telemetry.Tracer(tracerName),
		finalizeTimeout: cfg.FinalizeTimeout,
		machine:         newMachine(),
		baseCtx:         baseCtx,
		baseCancel:      cancel,
		requests:        make(chan request),
		actorDone:       make(chan struct{}),
	}
	c.state.Store(StateIdle)
	c.rendering.Store(cfg.RenderingEnabled)
	c.orientation.Store(int32(orientation))
	c.machine.OnTransition(c.observeTransition)
	metrics.SetState(string(StateIdle))

	go c.loop()
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state.Load().(State)
}

// SetRenderingEnabled gates preview delivery. It takes effect on the next frame.
func (c *Controller) SetRenderingEnabled(enabled bool) {
	c.rendering.Store(enabled)
}

// RenderingEnabled reports whether preview frames are delivered.
func (c *Controller) RenderingEnabled() bool {
	return c.rendering.Load()
}

// SetOrientation applies o to subsequent preview frames and to recordings
// started afterwards. An active recording keeps the orientation it was opened with.
func (c *Controller) SetOrientation(o Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidOrientation, o)
	}
	c.orientation.Store(int32(o))
	return nil
}

// Orientation returns the current orientation.
func (c *Controller) Orientation() Orientation {
	return Orientation(c.orientation.Load())
}

// Properties returns the negotiated stream format, or the zero value when idle.
func (c *Controller) Properties() StreamProperties {
	if !c.State().Active() {
		return StreamProperties{}
	}
	if p := c.props.Load(); p != nil {
		return *p
	}
	return StreamProperties{}
}

// FrameRate returns the current frame rate, or 0 when idle.
func (c *Controller) FrameRate() float64 {
	return c.Properties().FrameRate
}

// Dimensions returns the current frame size, or 0x0 when idle.
func (c *Controller) Dimensions() (width, height int) {
	p := c.Properties()
	return p.Width, p.Height
}

// Stats returns a snapshot of the frame and recording counters.
func (c *Controller) Stats() Stats {
	delivered, dropped := c.disp.PreviewStats()
	return Stats{
		FramesProduced:      c.framesProduced.Load(),
		FramesRejected:      c.framesRejected.Load(),
		FramesAppended:      c.framesAppended.Load(),
		PreviewDelivered:    delivered,
		PreviewDropped:      dropped,
		RecordingsCompleted: c.recordingsCompleted.Load(),
		RecordingsFailed:    c.recordingsFailed.Load(),
	}
}

// StartRunning starts the frame source. A source that fails to start is
// reported as EventRunningStopped and StartRunning returns nil.
func (c *Controller) StartRunning(ctx context.Context) error {
	return c.submit(ctx, opStartRunning)
}

// StopRunning stops the frame source, stopping an active recording first.
func (c *Controller) StopRunning(ctx context.Context) error {
	return c.submit(ctx, opStopRunning)
}

// StartRecording opens a writer for the current stream. A writer that fails
// to open is reported as EventRecordingFailed and StartRecording returns nil.
func (c *Controller) StartRecording(ctx context.Context) error {
	return c.submit(ctx, opStartRecording)
}

// StopRecording seals the writer, finalizes it and reports the artifact as
// EventRecordingDidStop. It returns once the did-stop event is queued.
func (c *Controller) StopRecording(ctx context.Context) error {
	return c.submit(ctx, opStopRecording)
}

// Close stops any active session as StopRunning would, then drains the
// dispatcher. Calls after the first only wait for the drain.
func (c *Controller) Close(ctx context.Context) error {
	err := c.submit(ctx, opClose)
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	if err != nil {
		return err
	}
	<-c.actorDone
	c.baseCancel()
	return c.disp.Close(ctx)
}

type opKind int

const (
	opStartRunning opKind = iota
	opStopRunning
	opStartRecording
	opStopRecording
	opSourceFault
	opWriterFault
	opClose
)

func (o opKind) String() string {
	switch o {
	case opStartRunning:
		return "StartRunning"
	case opStopRunning:
		return "StopRunning"
	case opStartRecording:
		return "StartRecording"
	case opStopRecording:
		return "StopRecording"
	case opSourceFault:
		return "SourceFault"
	case opWriterFault:
		return "WriterFault"
	case opClose:
		return "Close"
	default:
		return "unknown"
	}
}

type request struct {
	ctx  context.Context
	op   opKind
	run  *runSink
	slot *recordingSlot
	done chan error
}

func (c *Controller) submit(ctx context.Context, op opKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := request{ctx: ctx, op: op, done: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.actorDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands an internally detected fault to the actor. It is always called
// on its own goroutine so the producer never waits for the actor.
func (c *Controller) post(req request) {
	req.ctx = c.baseCtx
	select {
	case c.requests <- req:
	case <-c.actorDone:
	}
}

func (c *Controller) loop() {
	defer close(c.actorDone)
	for req := range c.requests {
		err := c.apply(req)
		if req.done != nil {
			req.done <- err
		}
		if c.closed {
			return
		}
	}
}

func (c *Controller) apply(req request) error {
	// Accepted requests complete even if the caller gives up waiting.
	ctx := context.WithoutCancel(req.ctx)
	from := c.State()
	ctx, span := c.tracer.Start(ctx, "capture."+req.op.String(),
		trace.WithAttributes(telemetry.TransitionAttributes(req.op.String(), string(from), "")...))
	defer span.End()

	var err error
	switch req.op {
	case opStartRunning:
		err = c.startRunning(ctx)
	case opStopRunning:
		err = c.stopRunning(ctx)
	case opStartRecording:
		err = c.startRecording(ctx)
	case opStopRecording:
		err = c.stopRecordingOp(ctx)
	case opSourceFault:
		err = c.handleSourceFault(ctx, req.run)
	case opWriterFault:
		err = c.handleWriterFault(ctx, req.slot)
	case opClose:
		if c.State().Active() {
			err = c.stopRunning(ctx)
		}
		c.closed = true
	}

	span.SetAttributes(telemetry.TransitionAttributes(req.op.String(), "", string(c.State()))...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Controller) fire(t trigger) {
	if _, err := c.machine.Fire(t); err != nil {
		c.logger.Error().Err(err).
			Str(xglog.FieldEvent, "capture.transition_rejected").
			Str("trigger", string(t)).
			Msg("lifecycle table rejected a checked transition")
	}
}

func (c *Controller) observeTransition(from, to State, t trigger) {
	c.state.Store(to)
	metrics.RecordTransition(string(from), string(to))
	metrics.SetState(string(to))
	c.logger.Info().
		Str(xglog.FieldEvent, "capture.transition").
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Str("trigger", string(t)).
		Msg("state transition")
}

func (c *Controller) emit(ev Event) {
	ev.State = c.State()
	if !c.disp.Emit(ev) {
		c.logger.Warn().Str(xglog.FieldEvent, "capture.emit_after_close").
			Str("kind", string(ev.Kind)).Msg("dispatcher closed, event discarded")
	}
}

func (c *Controller) startRunning(ctx context.Context) error {
	if c.State() != StateIdle {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(c.baseCtx)
	run := newRunSink(c, uuid.NewString(), cancel)
	runCtx = xglog.ContextWithSessionID(runCtx, run.id)
	logger := c.logger.With().Str(xglog.FieldSessionID, run.id).Logger()

	if err := c.source.Start(runCtx, run); err != nil {
		run.close()
		cancel()
		logger.Warn().Err(err).Str(xglog.FieldEvent, "capture.source_start_failed").Msg("frame source failed to start")
		c.emit(Event{Kind: EventRunningStopped, Err: fmt.Errorf("%w: %w", ErrSourceStart, err)})
		return nil
	}

	props := c.source.Properties()
	c.props.Store(&props)
	c.run = run
	c.fire(triggerStartRunning)
	run.activate()

	trace.SpanFromContext(ctx).SetAttributes(telemetry.StreamAttributes(
		props.Resolution(), props.FrameRate, string(props.Format), c.Orientation().String())...)
	logger.Info().
		Str(xglog.FieldEvent, "capture.running").
		Str(xglog.FieldResolution, props.Resolution()).
		Float64(xglog.FieldFPS, props.FrameRate).
		Str(xglog.FieldPixelFormat, string(props.Format)).
		Msg("capture session running")
	return nil
}

// stopRunning ends the session. A source error recorded by the run sink,
// before or during the stop, is reported in running_stopped.
func (c *Controller) stopRunning(ctx context.Context) error {
	if !c.State().Active() {
		return ErrNotRunning
	}
	run := c.run
	if c.State() == StateRecording {
		c.stopRecording(ctx, run.sourceFault())
	}

	run.close()
	stopErr := c.source.Stop()
	run.cancel()
	c.run = nil
	c.fire(triggerStopRunning)
	c.props.Store(nil)

	// Read after Stop: the source calls nothing once Stop has returned.
	err := run.sourceFault()
	if stopErr != nil {
		err = joinErrs(err, fmt.Errorf("stop source: %w", stopErr))
	}
	ev := c.logger.Info()
	if err != nil {
		ev = c.logger.Warn().Err(err)
	}
	ev.Str(xglog.FieldEvent, "capture.stopped").
		Str(xglog.FieldSessionID, run.id).
		Uint64(xglog.FieldFrames, run.frames.Load()).
		Msg("capture session stopped")

	c.emit(Event{Kind: EventRunningStopped, Err: err})
	return nil
}

func (c *Controller) startRecording(ctx context.Context) error {
	switch c.State() {
	case StateIdle:
		return ErrNotRunning
	case StateRecording, StateStopping:
		return ErrAlreadyRecording
	}

	props := c.Properties()
	orientation := c.Orientation()
	id := uuid.NewString()
	ctx = xglog.ContextWithRecordingID(ctx, id)

	w, err := c.writers.Open(ctx, props, orientation)
	if err != nil {
		c.recordingsFailed.Add(1)
		metrics.IncRecording("open_failed")
		c.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "capture.recording_open_failed").
			Str(xglog.FieldRecordingID, id).
			Msg("writer failed to open")
		c.emit(Event{Kind: EventRecordingFailed, Err: err})
		return nil
	}

	c.slot.Store(newRecordingSlot(c, id, w))
	c.fire(triggerStartRecording)
	metrics.IncRecording("started")
	c.logger.Info().
		Str(xglog.FieldEvent, "capture.recording_started").
		Str(xglog.FieldRecordingID, id).
		Str(xglog.FieldResolution, props.Resolution()).
		Str(xglog.FieldOrientation, orientation.String()).
		Msg("recording started")
	c.emit(Event{Kind: EventRecordingStarted})
	return nil
}

func (c *Controller) stopRecordingOp(ctx context.Context) error {
	if c.State() != StateRecording {
		return ErrNotRecording
	}
	c.stopRecording(ctx, nil)
	return nil
}

// stopRecording runs will-stop, seal, finalize, did-stop. cause is a source
// fault, which still salvages the artifact. A writer fault recorded on the
// slot is always reported and discards the artifact, whoever stopped it.
func (c *Controller) stopRecording(ctx context.Context, cause error) {
	slot := c.slot.Load()
	c.fire(triggerStopRecording)
	c.emit(Event{Kind: EventRecordingWillStop})
	slot.seal()
	writerErr := slot.writerFault()
	cause = joinErrs(cause, writerErr)

	fctx := c.baseCtx
	if c.finalizeTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, c.finalizeTimeout)
		defer cancel()
	}
	fctx = trace.ContextWithSpan(xglog.ContextWithRecordingID(fctx, slot.id), trace.SpanFromContext(ctx))

	started := time.Now()
	art, err := slot.writer.Finalize(fctx)
	metrics.ObserveFinalize(time.Since(started))
	if err != nil && c.finalizeTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrFinalizeTimeout, c.finalizeTimeout, err)
	}
	c.slot.Store(nil)
	c.fire(triggerFinalized)

	ev := Event{Kind: EventRecordingDidStop, Err: joinErrs(cause, err)}
	if err == nil && writerErr == nil {
		ev.Artifact = &art
		trace.SpanFromContext(ctx).SetAttributes(
			telemetry.RecordingAttributes(art.ID, art.Backend, art.Frames, art.Bytes)...)
	}

	logEv := c.logger.Info()
	if ev.Err != nil {
		c.recordingsFailed.Add(1)
		metrics.IncRecording("failed")
		logEv = c.logger.Warn().Err(ev.Err)
	} else {
		c.recordingsCompleted.Add(1)
		metrics.IncRecording("finalized")
	}
	logEv = logEv.Str(xglog.FieldEvent, "capture.recording_stopped").
		Str(xglog.FieldRecordingID, slot.id).
		Uint64(xglog.FieldFrames, slot.appended.Load())
	if err == nil {
		logEv = logEv.Str(xglog.FieldFinalPath, art.Path)
	}
	logEv.Msg("recording stopped")

	c.emit(ev)
}

// handleSourceFault and handleWriterFault ignore faults whose run or slot
// already ended; that stop reported the recorded error itself.
func (c *Controller) handleSourceFault(ctx context.Context, run *runSink) error {
	if run == nil || run != c.run {
		return nil
	}
	return c.stopRunning(ctx)
}

func (c *Controller) handleWriterFault(ctx context.Context, slot *recordingSlot) error {
	if c.State() != StateRecording || c.slot.Load() != slot {
		return nil
	}
	c.stopRecording(ctx, nil)
	return nil
}
