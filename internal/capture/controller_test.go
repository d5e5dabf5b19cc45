// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camrec/internal/capture"
	"github.com/ManuGH/camrec/internal/capture/capturetest"
)

const waitTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	c       *capture.Controller
	src     *capturetest.ManualSource
	writers *capturetest.WriterFactory
	rec     *capturetest.Recorder
}

func newHarness(t *testing.T, opts ...func(*capture.Config)) *harness {
	t.Helper()
	h := &harness{
		src:     capturetest.NewManualSource(),
		writers: capturetest.NewWriterFactory(),
		rec:     capturetest.NewRecorder(),
	}
	nop := zerolog.Nop()
	cfg := capture.Config{
		Source:           h.src,
		Writers:          h.writers,
		Handler:          h.rec,
		Logger:           &nop,
		RenderingEnabled: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := capture.New(cfg)
	require.NoError(t, err)
	h.c = c
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		require.NoError(t, c.Close(ctx))
	})
	return h
}

func (h *harness) wait(t *testing.T, kind capture.EventKind, n int) {
	t.Helper()
	require.True(t, h.rec.WaitFor(kind, n, waitTimeout), "timed out waiting for %d x %s", n, kind)
}

func seqRange(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := capture.New(capture.Config{})
	require.ErrorIs(t, err, capture.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "source is required")
	assert.Contains(t, err.Error(), "handler is required")

	_, err = capture.New(capture.Config{
		Source:      capturetest.NewManualSource(),
		Writers:     capturetest.NewWriterFactory(),
		Handler:     capturetest.NewRecorder(),
		Orientation: capture.Orientation(9),
	})
	require.ErrorIs(t, err, capture.ErrInvalidConfig)
}

func TestController_LifecycleNotificationsMirrorTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	assert.Equal(t, capture.StateRunning, h.c.State())
	require.NoError(t, h.c.StartRecording(ctx))
	assert.Equal(t, capture.StateRecording, h.c.State())
	require.NoError(t, h.c.StopRecording(ctx))
	assert.Equal(t, capture.StateRunning, h.c.State())
	require.NoError(t, h.c.StartRecording(ctx))
	require.NoError(t, h.c.StopRunning(ctx))
	assert.Equal(t, capture.StateIdle, h.c.State())
	h.wait(t, capture.EventRunningStopped, 1)

	type seen struct {
		Kind  capture.EventKind
		State capture.State
	}
	var got []seen
	for _, ev := range h.rec.Lifecycle() {
		got = append(got, seen{ev.Kind, ev.State})
	}
	want := []seen{
		{capture.EventRecordingStarted, capture.StateRecording},
		{capture.EventRecordingWillStop, capture.StateStopping},
		{capture.EventRecordingDidStop, capture.StateRunning},
		{capture.EventRecordingStarted, capture.StateRecording},
		{capture.EventRecordingWillStop, capture.StateStopping},
		{capture.EventRecordingDidStop, capture.StateRunning},
		{capture.EventRunningStopped, capture.StateIdle},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lifecycle sequence mismatch (-want +got):\n%s", diff)
	}

	var last uint64
	for _, ev := range h.rec.Events() {
		assert.Greater(t, ev.Seq, last, "event sequence must increase strictly")
		last = ev.Seq
	}
	ev, _ := h.rec.Last(capture.EventRunningStopped)
	assert.NoError(t, ev.Err)
}

func TestController_StartRecordingTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	err := h.c.StartRecording(ctx)
	require.ErrorIs(t, err, capture.ErrAlreadyRecording)
	require.ErrorIs(t, err, capture.ErrInvalidState)

	require.NoError(t, h.c.StopRecording(ctx))
	h.wait(t, capture.EventRecordingDidStop, 1)
	assert.Equal(t, 1, h.rec.Count(capture.EventRecordingStarted))
	assert.Len(t, h.writers.Writers(), 1)
}

func TestController_StopRecordingWhenNotRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.ErrorIs(t, h.c.StopRecording(ctx), capture.ErrNotRecording)
	require.NoError(t, h.c.StartRunning(ctx))
	require.ErrorIs(t, h.c.StopRecording(ctx), capture.ErrNotRecording)
	assert.Equal(t, capture.StateRunning, h.c.State())

	// The next notification proves nothing was queued for the rejected calls.
	require.NoError(t, h.c.StartRecording(ctx))
	h.wait(t, capture.EventRecordingStarted, 1)
	assert.Equal(t, []capture.EventKind{capture.EventRecordingStarted}, h.rec.LifecycleKinds())
}

func TestController_PreconditionErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for name, call := range map[string]func(context.Context) error{
		"StopRunning":    h.c.StopRunning,
		"StartRecording": h.c.StartRecording,
	} {
		err := call(ctx)
		assert.ErrorIs(t, err, capture.ErrNotRunning, name)
		assert.ErrorIs(t, err, capture.ErrInvalidState, name)
	}

	require.NoError(t, h.c.StartRunning(ctx))
	assert.ErrorIs(t, h.c.StartRunning(ctx), capture.ErrAlreadyRunning)
	assert.Equal(t, capture.StateRunning, h.c.State())
	starts, _ := h.src.Counts()
	assert.Equal(t, 1, starts)
}

func TestController_StopRunningWhileRecordingOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.EmitN(3)
	require.NoError(t, h.c.StopRunning(ctx))
	h.wait(t, capture.EventRunningStopped, 1)

	want := []capture.EventKind{
		capture.EventRecordingStarted,
		capture.EventRecordingWillStop,
		capture.EventRecordingDidStop,
		capture.EventRunningStopped,
	}
	if diff := cmp.Diff(want, h.rec.LifecycleKinds()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	didStop, _ := h.rec.Last(capture.EventRecordingDidStop)
	require.NotNil(t, didStop.Artifact)
	assert.Equal(t, uint64(3), didStop.Artifact.Frames)
	assert.True(t, h.writers.Last().Finalized())
}

func TestController_RenderingToggleDoesNotDisturbRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))

	h.src.EmitN(10)
	h.c.SetRenderingEnabled(false)
	assert.False(t, h.c.RenderingEnabled())
	h.src.EmitN(10)
	h.c.SetRenderingEnabled(true)
	h.src.EmitN(10)

	assert.Equal(t, capture.StateRecording, h.c.State())
	_, stops := h.src.Counts()
	assert.Zero(t, stops)

	require.NoError(t, h.c.StopRecording(ctx))
	if diff := cmp.Diff(seqRange(1, 30), h.writers.Last().Seqs()); diff != "" {
		t.Fatalf("writer frames (-want +got):\n%s", diff)
	}
}

func TestController_PreviewOffWhileRenderingDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *capture.Config) { cfg.RenderingEnabled = false })
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	h.src.EmitN(5)
	h.c.SetRenderingEnabled(true)
	h.src.Emit()
	h.wait(t, capture.EventPreviewFrame, 1)

	ev, _ := h.rec.Last(capture.EventPreviewFrame)
	assert.Equal(t, uint64(6), ev.Frame.Seq)
	assert.Equal(t, 1, h.rec.Count(capture.EventPreviewFrame))
}

func TestController_SlowPreviewConsumerDropsPreviewOnly(t *testing.T) {
	h := newHarness(t, func(cfg *capture.Config) {
		cfg.Handler.(*capturetest.Recorder).PreviewDelay = 5 * time.Millisecond
	})
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	const produced = 200
	h.src.EmitN(produced)
	require.NoError(t, h.c.StopRecording(ctx))

	stats := h.c.Stats()
	assert.Equal(t, uint64(produced), stats.FramesProduced)
	assert.Equal(t, uint64(produced), stats.FramesAppended)
	assert.Len(t, h.writers.Last().Seqs(), produced)
	assert.Less(t, stats.PreviewDelivered, uint64(produced))
	assert.Positive(t, stats.PreviewDropped)
}

func TestController_HundredFramesScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.EmitN(100)
	require.NoError(t, h.c.StopRecording(ctx))
	h.wait(t, capture.EventRecordingDidStop, 1)

	assert.Equal(t, 1, h.rec.Count(capture.EventRecordingDidStop))
	ev, _ := h.rec.Last(capture.EventRecordingDidStop)
	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Artifact)
	assert.NotEmpty(t, ev.Artifact.ID)
	assert.Equal(t, uint64(100), ev.Artifact.Frames)
	assert.Len(t, h.writers.Last().Seqs(), 100)
	assert.Zero(t, h.writers.Last().AppendsAfterFinalize())
	assert.Equal(t, uint64(1), h.c.Stats().RecordingsCompleted)
}

func TestController_SourceFaultStopsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("device unplugged")

	require.NoError(t, h.c.StartRunning(ctx))
	h.src.Emit()
	h.wait(t, capture.EventPreviewFrame, 1)

	h.src.Fail(boom)
	h.wait(t, capture.EventRunningStopped, 1)
	assert.Equal(t, capture.StateIdle, h.c.State())

	ev, _ := h.rec.Last(capture.EventRunningStopped)
	require.ErrorIs(t, ev.Err, capture.ErrSourceFault)
	require.ErrorIs(t, ev.Err, boom)

	// A misbehaving source keeps pushing; nothing gets through.
	h.src.EmitN(5)
	h.src.Fail(boom)
	stats := h.c.Stats()
	assert.Equal(t, uint64(1), stats.FramesProduced)
	assert.Equal(t, uint64(5), stats.FramesRejected)
	assert.Equal(t, 1, h.rec.Count(capture.EventPreviewFrame))
	assert.Equal(t, 1, h.rec.Count(capture.EventRunningStopped))
	assert.Equal(t, capture.StreamProperties{}, h.c.Properties())
}

func TestController_SourceFaultWhileRecordingSalvages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("sensor timeout")

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.EmitN(7)
	h.src.Fail(boom)
	h.wait(t, capture.EventRunningStopped, 1)

	want := []capture.EventKind{
		capture.EventRecordingStarted,
		capture.EventRecordingWillStop,
		capture.EventRecordingDidStop,
		capture.EventRunningStopped,
	}
	if diff := cmp.Diff(want, h.rec.LifecycleKinds()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	didStop, _ := h.rec.Last(capture.EventRecordingDidStop)
	require.ErrorIs(t, didStop.Err, capture.ErrSourceFault)
	require.NotNil(t, didStop.Artifact, "recording should be salvaged")
	assert.Equal(t, uint64(7), didStop.Artifact.Frames)
	_, stops := h.src.Counts()
	assert.Equal(t, 1, stops)
}

func TestController_SourceStartFailure(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("permission denied")
	h.src.FailStart(boom)

	require.NoError(t, h.c.StartRunning(context.Background()))
	h.wait(t, capture.EventRunningStopped, 1)
	assert.Equal(t, capture.StateIdle, h.c.State())

	ev, _ := h.rec.Last(capture.EventRunningStopped)
	require.ErrorIs(t, ev.Err, capture.ErrSourceStart)
	require.ErrorIs(t, ev.Err, boom)
	assert.Zero(t, h.c.Stats().FramesProduced)
}

func TestController_SourceStopErrorReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("stop failed")
	h.src.FailStop(boom)

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StopRunning(ctx))
	h.wait(t, capture.EventRunningStopped, 1)
	ev, _ := h.rec.Last(capture.EventRunningStopped)
	require.ErrorIs(t, ev.Err, boom)
	assert.Equal(t, capture.StateIdle, h.c.State())
}

func TestController_RecordingOpenFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("disk full")
	h.writers.FailOpen(boom)

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.wait(t, capture.EventRecordingFailed, 1)

	assert.Equal(t, capture.StateRunning, h.c.State())
	ev, _ := h.rec.Last(capture.EventRecordingFailed)
	require.ErrorIs(t, ev.Err, boom)
	assert.Equal(t, uint64(1), h.c.Stats().RecordingsFailed)
	assert.Zero(t, h.rec.Count(capture.EventRecordingStarted))
}

func TestController_WriterFaultStopsRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.writers.FailAppendAfter(5, capture.ErrWriterBacklog)

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.EmitN(10)
	h.wait(t, capture.EventRecordingDidStop, 1)

	want := []capture.EventKind{
		capture.EventRecordingStarted,
		capture.EventRecordingWillStop,
		capture.EventRecordingDidStop,
	}
	if diff := cmp.Diff(want, h.rec.LifecycleKinds()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	ev, _ := h.rec.Last(capture.EventRecordingDidStop)
	require.ErrorIs(t, ev.Err, capture.ErrWriterFault)
	require.ErrorIs(t, ev.Err, capture.ErrWriterBacklog)
	assert.Nil(t, ev.Artifact)
	assert.Equal(t, seqRange(1, 5), h.writers.Last().Seqs())

	require.Eventually(t, func() bool { return h.c.State() == capture.StateRunning }, waitTimeout, time.Millisecond)
}

func TestController_WriterFaultDuringClientStopIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	h.writers.HoldAppend(3, entered, release, capture.ErrWriterBacklog)

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.EmitN(2)

	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		h.src.Emit()
	}()
	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("frame 3 never reached the writer")
	}

	// The stop is accepted while frame 3 is still inside Append; the refusal
	// lands after will-stop.
	stopped := make(chan error, 1)
	go func() { stopped <- h.c.StopRecording(ctx) }()
	h.wait(t, capture.EventRecordingWillStop, 1)
	close(release)
	<-emitted
	require.NoError(t, <-stopped)
	h.wait(t, capture.EventRecordingDidStop, 1)

	ev, _ := h.rec.Last(capture.EventRecordingDidStop)
	require.ErrorIs(t, ev.Err, capture.ErrWriterFault)
	require.ErrorIs(t, ev.Err, capture.ErrWriterBacklog)
	assert.Nil(t, ev.Artifact)
	assert.Equal(t, seqRange(1, 2), h.writers.Last().Seqs())
	assert.Equal(t, capture.StateRunning, h.c.State())
	assert.Equal(t, uint64(1), h.c.Stats().RecordingsFailed)
	assert.Never(t, func() bool {
		return h.rec.Count(capture.EventRecordingDidStop) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestController_SourceFaultDuringClientStopIsReportedOnce(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t)
	h.writers.BlockFinalize(release)
	ctx := context.Background()
	boom := errors.New("sensor lost")

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.EmitN(4)

	stopped := make(chan error, 1)
	go func() { stopped <- h.c.StopRunning(ctx) }()
	h.wait(t, capture.EventRecordingWillStop, 1)
	h.src.Fail(boom)
	close(release)
	require.NoError(t, <-stopped)
	h.wait(t, capture.EventRunningStopped, 1)

	want := []capture.EventKind{
		capture.EventRecordingStarted,
		capture.EventRecordingWillStop,
		capture.EventRecordingDidStop,
		capture.EventRunningStopped,
	}
	if diff := cmp.Diff(want, h.rec.LifecycleKinds()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	didStop, _ := h.rec.Last(capture.EventRecordingDidStop)
	assert.NoError(t, didStop.Err)
	require.NotNil(t, didStop.Artifact)
	assert.Equal(t, uint64(4), didStop.Artifact.Frames)

	ev, _ := h.rec.Last(capture.EventRunningStopped)
	require.ErrorIs(t, ev.Err, capture.ErrSourceFault)
	require.ErrorIs(t, ev.Err, boom)
	assert.Equal(t, capture.StateIdle, h.c.State())
	assert.Never(t, func() bool {
		return h.rec.Count(capture.EventRunningStopped) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
	_, stops := h.src.Counts()
	assert.Equal(t, 1, stops)
}

func TestController_FinalizeTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := newHarness(t, func(cfg *capture.Config) { cfg.FinalizeTimeout = 20 * time.Millisecond })
	h.writers.BlockFinalize(release)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	require.NoError(t, h.c.StopRecording(ctx))
	h.wait(t, capture.EventRecordingDidStop, 1)

	ev, _ := h.rec.Last(capture.EventRecordingDidStop)
	require.ErrorIs(t, ev.Err, capture.ErrFinalizeTimeout)
	require.ErrorIs(t, ev.Err, context.DeadlineExceeded)
	assert.Nil(t, ev.Artifact)
	assert.Equal(t, capture.StateRunning, h.c.State())
}

func TestController_FinalizeUnboundedQueuesLaterRequests(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t)
	h.writers.BlockFinalize(release)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.c.StopRecording(ctx))
	}()
	h.wait(t, capture.EventRecordingWillStop, 1)
	assert.Equal(t, capture.StateStopping, h.c.State())

	// Frames during stopping still preview but never reach the sealed writer.
	h.src.EmitN(3)
	assert.Empty(t, h.writers.Last().Seqs())

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.c.StartRecording(waitCtx), context.DeadlineExceeded)
	assert.Zero(t, h.rec.Count(capture.EventRecordingDidStop))

	close(release)
	wg.Wait()
	h.wait(t, capture.EventRecordingDidStop, 1)
	assert.Equal(t, capture.StateRunning, h.c.State())
	assert.Equal(t, 1, h.rec.Count(capture.EventRecordingStarted))
}

func TestController_PropertiesOnlyWhileActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Zero(t, h.c.FrameRate())
	w, ht := h.c.Dimensions()
	assert.Zero(t, w)
	assert.Zero(t, ht)

	require.NoError(t, h.c.StartRunning(ctx))
	assert.Equal(t, capturetest.DefaultProperties, h.c.Properties())

	hd := capture.StreamProperties{FrameRate: 60, Width: 1280, Height: 720, Format: capture.PixelFormatNV12}
	h.src.ChangeFormat(hd)
	assert.InDelta(t, 60.0, h.c.FrameRate(), 0.001)
	w, ht = h.c.Dimensions()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, ht)

	require.NoError(t, h.c.StartRecording(ctx))
	assert.Equal(t, hd, h.writers.Last().Properties())

	require.NoError(t, h.c.StopRunning(ctx))
	assert.Equal(t, capture.StreamProperties{}, h.c.Properties())
}

func TestController_OrientationAppliesToPreviewAndNewWriters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, capture.OrientationPortrait, h.c.Orientation())
	require.ErrorIs(t, h.c.SetOrientation(capture.Orientation(0)), capture.ErrInvalidOrientation)
	require.NoError(t, h.c.SetOrientation(capture.OrientationLandscapeLeft))

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.Emit()
	h.wait(t, capture.EventPreviewFrame, 1)
	ev, _ := h.rec.Last(capture.EventPreviewFrame)
	assert.Equal(t, capture.OrientationLandscapeLeft, ev.Frame.Orientation)

	require.NoError(t, h.c.SetOrientation(capture.OrientationPortraitUpsideDown))
	assert.Equal(t, capture.OrientationLandscapeLeft, h.writers.Last().Orientation())

	require.NoError(t, h.c.StopRecording(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	assert.Equal(t, capture.OrientationPortraitUpsideDown, h.writers.Last().Orientation())
}

func TestController_CancelledBeforeAccepted(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, h.c.StartRunning(ctx), context.Canceled)
	assert.Equal(t, capture.StateIdle, h.c.State())
	starts, _ := h.src.Counts()
	assert.Zero(t, starts)

	require.NoError(t, h.c.StartRunning(context.Background()))
	assert.Equal(t, capture.StateRunning, h.c.State())
}

func TestController_CloseStopsActiveSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.c.StartRunning(ctx))
	require.NoError(t, h.c.StartRecording(ctx))
	h.src.EmitN(4)

	closeCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	require.NoError(t, h.c.Close(closeCtx))

	// Close drains the dispatcher, so every event is already delivered.
	want := []capture.EventKind{
		capture.EventRecordingStarted,
		capture.EventRecordingWillStop,
		capture.EventRecordingDidStop,
		capture.EventRunningStopped,
	}
	if diff := cmp.Diff(want, h.rec.LifecycleKinds()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	assert.ErrorIs(t, h.c.StartRunning(ctx), capture.ErrClosed)
	assert.NoError(t, h.c.Close(closeCtx))
}
