// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package rawfile

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camrec/internal/capture"
)

var props = capture.StreamProperties{FrameRate: 10, Width: 2, Height: 2, Format: capture.PixelFormatRGB24}

func newFactory(t *testing.T, queue int) (*Factory, string) {
	t.Helper()
	dir := t.TempDir()
	nop := zerolog.Nop()
	f, err := NewFactory(Config{Dir: dir, QueueSize: queue, Logger: &nop})
	require.NoError(t, err)
	return f, dir
}

func testFrame(seq uint64) capture.Frame {
	data := bytes.Repeat([]byte{byte(seq)}, props.Format.BytesPerFrame(2, 2))
	return capture.Frame{Seq: seq, PTS: time.Duration(seq) * 100 * time.Millisecond, Format: props.Format, Width: 2, Height: 2, Data: data}
}

func TestWriter_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f, dir := newFactory(t, 64)

	w, err := f.Open(context.Background(), props, capture.OrientationPortrait)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, Extension, filepath.Ext(e.Name()), "final name must not exist before finalize")
	}

	for i := uint64(1); i <= 20; i++ {
		fr := testFrame(i)
		require.NoError(t, w.Append(fr))
		fr.Data[0] = 0xee // caller reuses its buffer
	}
	art, err := w.Finalize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(20), art.Frames)
	assert.Equal(t, "rawfile", art.Backend)
	assert.Equal(t, 2*time.Second, art.Duration)
	assert.Equal(t, capture.OrientationPortrait, art.Orientation)

	r, err := OpenReader(art.Path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, art.ID, r.Header.ID)
	assert.Equal(t, 90, r.Header.Rotation)
	assert.Equal(t, props, r.Header.Properties())

	var seqs []uint64
	for {
		fr, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, byte(fr.Seq), fr.Data[0], "payload must be copied on Append")
		seqs = append(seqs, fr.Seq)
	}
	assert.Len(t, seqs, 20)
	assert.Equal(t, uint64(1), seqs[0])

	info, err := os.Stat(art.Path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), art.Bytes, "file includes the header line")
}

func TestWriter_ClosedAfterFinalize(t *testing.T) {
	f, _ := newFactory(t, 4)
	w, err := f.Open(context.Background(), props, capture.OrientationLandscapeRight)
	require.NoError(t, err)

	art, err := w.Finalize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, art.Frames)
	assert.Zero(t, art.Duration)

	assert.ErrorIs(t, w.Append(testFrame(1)), capture.ErrWriterClosed)
	_, err = w.Finalize(context.Background())
	assert.ErrorIs(t, err, capture.ErrWriterClosed)
}

func TestWriter_BacklogWhenQueueFull(t *testing.T) {
	f, _ := newFactory(t, 1)
	w, err := f.Open(context.Background(), props, capture.OrientationPortrait)
	require.NoError(t, err)

	var backlog bool
	for i := uint64(1); i <= 10000 && !backlog; i++ {
		if err := w.Append(testFrame(i)); err != nil {
			require.ErrorIs(t, err, capture.ErrWriterBacklog)
			backlog = true
		}
	}
	assert.True(t, backlog, "a one-slot queue must eventually report backlog")
	_, err = w.Finalize(context.Background())
	assert.NoError(t, err)
}

func TestWriter_CancelledFinalizeDiscardsOutput(t *testing.T) {
	f, dir := newFactory(t, 8)
	w, err := f.Open(context.Background(), props, capture.OrientationPortrait)
	require.NoError(t, err)
	require.NoError(t, w.Append(testFrame(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Finalize(ctx)
	if err == nil {
		// The loop may have drained before the select observed the cancel.
		return
	}
	require.ErrorIs(t, err, context.Canceled)
	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(dir)
		return len(entries) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFactory_Validation(t *testing.T) {
	_, err := NewFactory(Config{})
	assert.Error(t, err)

	f, _ := newFactory(t, 1)
	_, err = f.Open(context.Background(), capture.StreamProperties{Format: "mjpeg"}, capture.OrientationPortrait)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Open(ctx, props, capture.OrientationPortrait)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_RejectsForeignFile(t *testing.T) {
	_, err := NewReader(bytes.NewBufferString("{\"magic\":\"other\"}\n"))
	assert.ErrorIs(t, err, ErrBadMagic)
	_, err = NewReader(bytes.NewBufferString("not json\n"))
	assert.ErrorIs(t, err, ErrBadMagic)
}
