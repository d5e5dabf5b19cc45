// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"fmt"
	"time"
)

// PixelFormat identifies the memory layout of Frame.Data.
type PixelFormat string

const (
	PixelFormatRGB24   PixelFormat = "rgb24"
	PixelFormatBGRA    PixelFormat = "bgra"
	PixelFormatNV12    PixelFormat = "nv12"
	PixelFormatYUV420P PixelFormat = "yuv420p"
	PixelFormatGray    PixelFormat = "gray"
)

// BytesPerFrame returns the buffer size of one w x h frame, or 0 for an unknown format.
func (p PixelFormat) BytesPerFrame(w, h int) int {
	switch p {
	case PixelFormatRGB24:
		return w * h * 3
	case PixelFormatBGRA:
		return w * h * 4
	case PixelFormatNV12, PixelFormatYUV420P:
		return w*h + 2*((w+1)/2)*((h+1)/2)
	case PixelFormatGray:
		return w * h
	default:
		return 0
	}
}

// Valid reports whether p is a known pixel format.
func (p PixelFormat) Valid() bool {
	return p.BytesPerFrame(1, 1) > 0
}

// Orientation is the rotation applied to preview frames and new recordings.
// Values follow the capture-device convention (1..4).
type Orientation int32

const (
	OrientationPortrait           Orientation = 1
	OrientationPortraitUpsideDown Orientation = 2
	OrientationLandscapeRight     Orientation = 3
	OrientationLandscapeLeft      Orientation = 4
)

// ParseOrientation accepts the names produced by Orientation.String.
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "portrait":
		return OrientationPortrait, nil
	case "portrait_upside_down":
		return OrientationPortraitUpsideDown, nil
	case "landscape_right":
		return OrientationLandscapeRight, nil
	case "landscape_left":
		return OrientationLandscapeLeft, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOrientation, s)
	}
}

func (o Orientation) String() string {
	switch o {
	case OrientationPortrait:
		return "portrait"
	case OrientationPortraitUpsideDown:
		return "portrait_upside_down"
	case OrientationLandscapeRight:
		return "landscape_right"
	case OrientationLandscapeLeft:
		return "landscape_left"
	default:
		return "unknown"
	}
}

// Valid reports whether o is one of the four supported rotations.
func (o Orientation) Valid() bool {
	return o >= OrientationPortrait && o <= OrientationLandscapeLeft
}

// Degrees is the clockwise rotation a writer applies to sensor-native
// (landscape right) frames to honour o.
func (o Orientation) Degrees() int {
	switch o {
	case OrientationPortrait:
		return 90
	case OrientationPortraitUpsideDown:
		return 270
	case OrientationLandscapeLeft:
		return 180
	default:
		return 0
	}
}

// Frame is one buffer of decoded video. The controller only borrows it:
// writers that retain Data past Append must copy it.
type Frame struct {
	Seq         uint64
	PTS         time.Duration
	Format      PixelFormat
	Width       int
	Height      int
	Orientation Orientation // stamped on preview delivery
	Data        []byte
}

// StreamProperties is the source's currently negotiated format.
type StreamProperties struct {
	FrameRate float64     `json:"frame_rate"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Format    PixelFormat `json:"pixel_format"`
}

// Resolution formats the dimensions as WxH.
func (p StreamProperties) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// FrameInterval is the nominal time between two frames, or 0 if the rate is unknown.
func (p StreamProperties) FrameInterval() time.Duration {
	if p.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / p.FrameRate)
}

// Artifact is the durable result of a finalized recording. The client owns
// it once it is delivered in a recording_did_stop event.
type Artifact struct {
	ID          string           `json:"id"`
	Path        string           `json:"path"`
	Backend     string           `json:"backend"`
	Frames      uint64           `json:"frames"`
	Bytes       int64            `json:"bytes"`
	Duration    time.Duration    `json:"duration"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Properties  StreamProperties `json:"properties"`
	Orientation Orientation      `json:"orientation"`
}
