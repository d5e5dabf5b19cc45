// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package synthetic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camrec/internal/capture"
)

type collectSink struct {
	mu      sync.Mutex
	frames  []capture.Frame
	formats []capture.StreamProperties
	errs    []error
}

func (c *collectSink) HandleFrame(f capture.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
}

func (c *collectSink) HandleFormatChange(p capture.StreamProperties) {
	c.mu.Lock()
	c.formats = append(c.formats, p)
	c.mu.Unlock()
}

func (c *collectSink) HandleSourceError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collectSink) counts() (frames, errs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames), len(c.errs)
}

func fastConfig() Config {
	return Config{Width: 8, Height: 4, FrameRate: 200, Format: capture.PixelFormatRGB24}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	err := Config{Width: 0, Height: 10, FrameRate: 500, Format: "h264"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dimensions")
	assert.Contains(t, err.Error(), "frame rate")
	assert.Contains(t, err.Error(), "unsupported pixel format")

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestSource_ProducesFramesUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src, err := New(fastConfig())
	require.NoError(t, err)
	sink := &collectSink{}

	require.NoError(t, src.Start(context.Background(), sink))
	require.ErrorIs(t, src.Start(context.Background(), sink), ErrAlreadyStarted)
	require.Eventually(t, func() bool {
		n, _ := sink.counts()
		return n >= 5
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	n, _ := sink.counts()
	time.Sleep(20 * time.Millisecond)
	after, _ := sink.counts()
	assert.Equal(t, n, after, "no frames after Stop")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, f := range sink.frames {
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.Len(t, f.Data, capture.PixelFormatRGB24.BytesPerFrame(8, 4))
	}
}

func TestSource_InjectedFaultIsTerminal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := fastConfig()
	cfg.FailAfter = 3
	src, err := New(cfg)
	require.NoError(t, err)
	sink := &collectSink{}

	require.NoError(t, src.Start(context.Background(), sink))
	require.Eventually(t, func() bool {
		_, errs := sink.counts()
		return errs == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	frames, errs := sink.counts()
	assert.Equal(t, 3, frames)
	assert.Equal(t, 1, errs)
	assert.ErrorIs(t, sink.errs[0], ErrInjectedFault)
	require.NoError(t, src.Stop())
}

func TestSource_SetFormatReportsChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src, err := New(fastConfig())
	require.NoError(t, err)
	sink := &collectSink{}
	require.NoError(t, src.Start(context.Background(), sink))
	defer func() { require.NoError(t, src.Stop()) }()

	next := capture.StreamProperties{Width: 4, Height: 4, FrameRate: 100, Format: capture.PixelFormatGray}
	require.NoError(t, src.SetFormat(next))
	assert.Equal(t, next, src.Properties())
	assert.Error(t, src.SetFormat(capture.StreamProperties{}))

	sink.mu.Lock()
	require.Len(t, sink.formats, 1)
	assert.Equal(t, next, sink.formats[0])
	sink.mu.Unlock()
}

func TestSource_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src, err := New(fastConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	sink := &collectSink{}
	require.NoError(t, src.Start(ctx, sink))
	cancel()
	require.NoError(t, src.Stop())
}

func TestPattern_ChromaIsNeutral(t *testing.T) {
	p := capture.StreamProperties{Width: 4, Height: 2, Format: capture.PixelFormatNV12}
	buf := pattern(p, 1)
	require.Len(t, buf, 12)
	for _, b := range buf[8:] {
		assert.Equal(t, byte(0x80), b)
	}

	bgra := pattern(capture.StreamProperties{Width: 1, Height: 1, Format: capture.PixelFormatBGRA}, 0)
	assert.Equal(t, byte(0xff), bgra[3])
}
