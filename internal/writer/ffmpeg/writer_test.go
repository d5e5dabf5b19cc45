// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camrec/internal/capture"
)

var testProps = capture.StreamProperties{FrameRate: 25, Width: 4, Height: 2, Format: capture.PixelFormatGray}

// fakeEncoder writes a shell script standing in for ffmpeg. The last
// argument is the output path.
func fakeEncoder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\nfor a; do out=\"$a\"; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestFactory(t *testing.T, binary string) (*Factory, string) {
	t.Helper()
	dir := t.TempDir()
	nop := zerolog.Nop()
	f, err := NewFactory(Config{BinaryPath: binary, Dir: dir, QueueSize: 16, StopGrace: 100 * time.Millisecond, Logger: &nop})
	require.NoError(t, err)
	return f, dir
}

func frame(seq uint64) capture.Frame {
	return capture.Frame{Seq: seq, Format: testProps.Format, Width: 4, Height: 2, Data: []byte{1, 2, 3, 4, 5, 6, 7, byte(seq)}}
}

func TestWriter_FinalizePublishesArtifact(t *testing.T) {
	f, dir := newTestFactory(t, fakeEncoder(t, `cat > "$out"`))

	w, err := f.Open(context.Background(), testProps, capture.OrientationLandscapeRight)
	require.NoError(t, err)
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, w.Append(frame(i)))
	}

	art, err := w.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), art.Frames)
	assert.Equal(t, int64(80), art.Bytes)
	assert.Equal(t, 400*time.Millisecond, art.Duration)
	assert.Equal(t, "ffmpeg", art.Backend)
	assert.Equal(t, dir, filepath.Dir(art.Path))
	assert.True(t, strings.HasSuffix(art.Path, ".mp4"))

	_, err = os.Stat(art.Path + ".partial")
	assert.True(t, os.IsNotExist(err), "partial file must be renamed")

	assert.ErrorIs(t, w.Append(frame(11)), capture.ErrWriterClosed)
	_, err = w.Finalize(context.Background())
	assert.ErrorIs(t, err, capture.ErrWriterClosed)
}

func TestWriter_EncoderFailureCarriesDiagnostics(t *testing.T) {
	f, dir := newTestFactory(t, fakeEncoder(t, `cat > /dev/null; echo "Invalid frame size" >&2; exit 1`))

	w, err := f.Open(context.Background(), testProps, capture.OrientationPortrait)
	require.NoError(t, err)
	require.NoError(t, w.Append(frame(1)))

	_, err = w.Finalize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid frame size")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed output must be removed")
}

func TestWriter_FinalizeDeadlineKillsEncoder(t *testing.T) {
	f, _ := newTestFactory(t, fakeEncoder(t, `trap '' TERM; sleep 30`))

	w, err := f.Open(context.Background(), testProps, capture.OrientationPortrait)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = w.Finalize(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWriter_AppendRejectsWrongSize(t *testing.T) {
	f, _ := newTestFactory(t, fakeEncoder(t, `cat > "$out"`))
	w, err := f.Open(context.Background(), testProps, capture.OrientationPortrait)
	require.NoError(t, err)

	err = w.Append(capture.Frame{Seq: 1, Data: []byte{1}})
	assert.ErrorIs(t, err, ErrFrameSize)
	_, err = w.Finalize(context.Background())
	assert.NoError(t, err)
}

func TestFactory_OpenFailsForMissingBinary(t *testing.T) {
	f, _ := newTestFactory(t, filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := f.Open(context.Background(), testProps, capture.OrientationPortrait)
	assert.Error(t, err)
}

func TestNewFactory_RequiresDir(t *testing.T) {
	_, err := NewFactory(Config{})
	assert.Error(t, err)
}
