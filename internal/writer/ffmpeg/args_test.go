// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camrec/internal/capture"
)

func TestBuildArgs(t *testing.T) {
	props := capture.StreamProperties{FrameRate: 29.97, Width: 1280, Height: 720, Format: capture.PixelFormatNV12}
	args, err := BuildArgs(props, capture.OrientationPortrait, "/out/a.mp4.partial", EncodeOptions{})
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f rawvideo -pix_fmt nv12 -s 1280x720 -framerate 29.97 -i pipe:0")
	assert.Contains(t, joined, "-vf transpose=1")
	assert.Contains(t, joined, "-c:v libx264 -preset veryfast -crf 20")
	assert.Equal(t, "/out/a.mp4.partial", args[len(args)-1])
}

func TestBuildArgs_Rotation(t *testing.T) {
	props := capture.StreamProperties{FrameRate: 30, Width: 2, Height: 2, Format: capture.PixelFormatGray}
	tests := map[capture.Orientation]string{
		capture.OrientationPortrait:           "transpose=1",
		capture.OrientationPortraitUpsideDown: "transpose=2",
		capture.OrientationLandscapeLeft:      "hflip,vflip",
	}
	for o, vf := range tests {
		args, err := BuildArgs(props, o, "x", DefaultEncodeOptions())
		require.NoError(t, err)
		assert.Contains(t, strings.Join(args, " "), "-vf "+vf, o.String())
	}

	args, err := BuildArgs(props, capture.OrientationLandscapeRight, "x", DefaultEncodeOptions())
	require.NoError(t, err)
	assert.NotContains(t, args, "-vf")
}

func TestBuildArgs_RejectsBadInput(t *testing.T) {
	_, err := BuildArgs(capture.StreamProperties{FrameRate: 30, Width: 2, Height: 2, Format: "h264"}, capture.OrientationPortrait, "x", EncodeOptions{})
	assert.Error(t, err)
	_, err = BuildArgs(capture.StreamProperties{Format: capture.PixelFormatGray}, capture.OrientationPortrait, "x", EncodeOptions{})
	assert.Error(t, err)
}

func TestRingBuffer(t *testing.T) {
	r := NewRingBuffer(3)
	assert.Empty(t, r.Lines())
	r.Add("a")
	r.Add("b")
	assert.Equal(t, []string{"a", "b"}, r.Lines())
	r.Add("c")
	r.Add("d")
	assert.Equal(t, []string{"b", "c", "d"}, r.Lines())
}
