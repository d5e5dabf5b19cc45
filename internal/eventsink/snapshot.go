// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package eventsink

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/nfnt/resize"

	"github.com/ManuGH/camrec/internal/capture"
)

// ErrNoPreview is returned by Snapshot.PNG before the first preview frame.
var ErrNoPreview = errors.New("eventsink: no preview frame yet")

// Snapshot keeps a copy of the most recent preview frame.
type Snapshot struct {
	mu    sync.RWMutex
	frame *capture.Frame
}

func (s *Snapshot) HandleEvent(ev capture.Event) {
	if ev.Kind != capture.EventPreviewFrame || ev.Frame == nil {
		return
	}
	f := *ev.Frame
	f.Data = append([]byte(nil), f.Data...)
	s.mu.Lock()
	s.frame = &f
	s.mu.Unlock()
}

// Latest returns the last preview frame.
func (s *Snapshot) Latest() (capture.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return capture.Frame{}, false
	}
	return *s.frame, true
}

// Reset forgets the stored frame.
func (s *Snapshot) Reset() {
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
}

// PNG encodes the latest frame, rotated to its orientation. A positive
// maxWidth scales it down to fit, keeping the aspect ratio.
func (s *Snapshot) PNG(maxWidth uint) ([]byte, capture.Frame, error) {
	f, ok := s.Latest()
	if !ok {
		return nil, capture.Frame{}, ErrNoPreview
	}
	img, err := FrameImage(f)
	if err != nil {
		return nil, f, err
	}
	img = rotate(img, f.Orientation.Degrees())
	if maxWidth > 0 && int(maxWidth) < img.Bounds().Dx() {
		img = resize.Thumbnail(maxWidth, uint(img.Bounds().Dy()), img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, f, fmt.Errorf("eventsink: encode png: %w", err)
	}
	return buf.Bytes(), f, nil
}

// FrameImage wraps f's pixel data in an image.Image.
func FrameImage(f capture.Frame) (image.Image, error) {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("eventsink: invalid frame size %dx%d", w, h)
	}
	if want := f.Format.BytesPerFrame(w, h); want == 0 || len(f.Data) < want {
		return nil, fmt.Errorf("eventsink: frame has %d bytes, %s %dx%d needs %d", len(f.Data), f.Format, w, h, want)
	}
	rect := image.Rect(0, 0, w, h)

	switch f.Format {
	case capture.PixelFormatGray:
		return &image.Gray{Pix: f.Data[:w*h], Stride: w, Rect: rect}, nil
	case capture.PixelFormatRGB24:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < w*h; i, j = i+1, j+3 {
			copy(img.Pix[i*4:i*4+3], f.Data[j:j+3])
			img.Pix[i*4+3] = 0xff
		}
		return img, nil
	case capture.PixelFormatBGRA:
		img := image.NewRGBA(rect)
		for i := 0; i < w*h*4; i += 4 {
			img.Pix[i+0] = f.Data[i+2]
			img.Pix[i+1] = f.Data[i+1]
			img.Pix[i+2] = f.Data[i+0]
			img.Pix[i+3] = f.Data[i+3]
		}
		return img, nil
	case capture.PixelFormatYUV420P, capture.PixelFormatNV12:
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
		copy(img.Y, f.Data[:w*h])
		chroma := f.Data[w*h:]
		n := len(img.Cb)
		if f.Format == capture.PixelFormatYUV420P {
			copy(img.Cb, chroma[:n])
			copy(img.Cr, chroma[n:2*n])
		} else {
			for i := 0; i < n; i++ {
				img.Cb[i] = chroma[2*i]
				img.Cr[i] = chroma[2*i+1]
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("eventsink: unsupported pixel format %q", f.Format)
	}
}

// rotate turns src clockwise by deg (0, 90, 180 or 270).
func rotate(src image.Image, deg int) image.Image {
	if deg == 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if deg == 90 || deg == 270 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y))
			switch deg {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}
