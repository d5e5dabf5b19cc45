// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/ManuGH/camrec/internal/capture"
)

// EncodeOptions selects the output encoder.
type EncodeOptions struct {
	Codec  string
	Preset string
	CRF    int
}

// DefaultEncodeOptions is H.264 tuned for real-time input.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{Codec: "libx264", Preset: "veryfast", CRF: 20}
}

// BuildArgs converts the stream format and orientation into ffmpeg flags
// reading rawvideo from stdin and writing an mp4 to output.
func BuildArgs(props capture.StreamProperties, o capture.Orientation, output string, opts EncodeOptions) ([]string, error) {
	pixFmt, ok := pixFmtFor(props.Format)
	if !ok {
		return nil, fmt.Errorf("ffmpeg writer: unsupported pixel format %q", props.Format)
	}
	if props.Width <= 0 || props.Height <= 0 || props.FrameRate <= 0 {
		return nil, fmt.Errorf("ffmpeg writer: incomplete stream properties %s@%.2f", props.Resolution(), props.FrameRate)
	}
	if opts.Codec == "" {
		opts = DefaultEncodeOptions()
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-s", props.Resolution(),
		"-framerate", strconv.FormatFloat(props.FrameRate, 'f', -1, 64),
		"-i", "pipe:0",
	}
	if vf := rotateFilter(o); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-c:v", opts.Codec)
	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	}
	if opts.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(opts.CRF))
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	)
	return args, nil
}

func pixFmtFor(p capture.PixelFormat) (string, bool) {
	switch p {
	case capture.PixelFormatRGB24:
		return "rgb24", true
	case capture.PixelFormatBGRA:
		return "bgra", true
	case capture.PixelFormatNV12:
		return "nv12", true
	case capture.PixelFormatYUV420P:
		return "yuv420p", true
	case capture.PixelFormatGray:
		return "gray", true
	default:
		return "", false
	}
}

func rotateFilter(o capture.Orientation) string {
	switch o.Degrees() {
	case 90:
		return "transpose=1"
	case 180:
		return "hflip,vflip"
	case 270:
		return "transpose=2"
	default:
		return ""
	}
}
