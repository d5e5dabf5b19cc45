// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package synthetic implements a test-pattern capture.FrameSource paced by a
// token-bucket limiter. It stands in for a camera in development and tests.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/camrec/internal/capture"
	xglog "github.com/ManuGH/camrec/internal/log"
)

var (
	// ErrInjectedFault is reported after Config.FailAfter frames.
	ErrInjectedFault  = errors.New("synthetic: injected source fault")
	ErrAlreadyStarted = errors.New("synthetic: already started")
)

// Config describes the generated stream.
type Config struct {
	Width     int
	Height    int
	FrameRate float64
	Format    capture.PixelFormat

	// FailAfter reports ErrInjectedFault after this many frames. Zero disables it.
	FailAfter uint64
}

// DefaultConfig is a 640x480 gray stream at 30 fps.
func DefaultConfig() Config {
	return Config{Width: 640, Height: 480, FrameRate: 30, Format: capture.PixelFormatGray}
}

// Validate checks the stream parameters.
func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid dimensions %dx%d", c.Width, c.Height))
	}
	if c.FrameRate <= 0 || c.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("frame rate %.2f out of range (0, 240]", c.FrameRate))
	}
	if !c.Format.Valid() {
		errs = append(errs, fmt.Errorf("unsupported pixel format %q", c.Format))
	}
	return errors.Join(errs...)
}

func (c Config) properties() capture.StreamProperties {
	return capture.StreamProperties{FrameRate: c.FrameRate, Width: c.Width, Height: c.Height, Format: c.Format}
}

// Source generates a moving gradient. Start, Stop and SetFormat are safe for
// concurrent use; frames are pushed from one internal goroutine.
type Source struct {
	logger    zerolog.Logger
	failAfter uint64

	props atomic.Pointer[capture.StreamProperties]

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	limiter *rate.Limiter
	sink    capture.SourceSink
}

// New returns a stopped source.
func New(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("synthetic source: %w", err)
	}
	s := &Source{
		logger:    xglog.WithComponent("source.synthetic"),
		failAfter: cfg.FailAfter,
	}
	p := cfg.properties()
	s.props.Store(&p)
	return s, nil
}

// Properties returns the current stream format.
func (s *Source) Properties() capture.StreamProperties {
	return *s.props.Load()
}

// Start begins producing frames into sink until ctx is cancelled or Stop is called.
func (s *Source) Start(ctx context.Context, sink capture.SourceSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := s.Properties()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.limiter = rate.NewLimiter(rate.Limit(p.FrameRate), 1)
	s.sink = sink

	go s.produce(runCtx, s.limiter, sink, s.done)

	s.logger.Info().
		Str(xglog.FieldEvent, "source.started").
		Str(xglog.FieldSessionID, xglog.SessionIDFromContext(ctx)).
		Str(xglog.FieldResolution, p.Resolution()).
		Float64(xglog.FieldFPS, p.FrameRate).
		Msg("synthetic source started")
	return nil
}

// Stop halts frame production and waits for the producer goroutine. It is
// idempotent and safe after an injected fault.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.limiter, s.sink = nil, nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info().Str(xglog.FieldEvent, "source.stopped").Msg("synthetic source stopped")
	return nil
}

// SetFormat renegotiates the stream. A running source reports the change to
// its sink before the first frame in the new format.
func (s *Source) SetFormat(p capture.StreamProperties) error {
	cfg := Config{Width: p.Width, Height: p.Height, FrameRate: p.FrameRate, Format: p.Format}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("synthetic source: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props.Store(&p)
	if s.limiter != nil {
		s.limiter.SetLimit(rate.Limit(p.FrameRate))
	}
	if s.sink != nil {
		s.sink.HandleFormatChange(p)
	}
	return nil
}

func (s *Source) produce(ctx context.Context, limiter *rate.Limiter, sink capture.SourceSink, done chan struct{}) {
	defer close(done)
	started := time.Now()
	var seq uint64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		seq++
		p := s.Properties()
		sink.HandleFrame(capture.Frame{
			Seq:    seq,
			PTS:    time.Since(started),
			Format: p.Format,
			Width:  p.Width,
			Height: p.Height,
			Data:   pattern(p, seq),
		})
		if s.failAfter > 0 && seq >= s.failAfter {
			s.logger.Warn().
				Str(xglog.FieldEvent, "source.fault_injected").
				Uint64(xglog.FieldFrames, seq).
				Msg("synthetic source reporting injected fault")
			sink.HandleSourceError(ErrInjectedFault)
			return
		}
	}
}

// pattern renders a diagonal gradient shifted by seq. Chroma planes are flat gray.
func pattern(p capture.StreamProperties, seq uint64) []byte {
	buf := make([]byte, p.Format.BytesPerFrame(p.Width, p.Height))
	bpp := 1
	switch p.Format {
	case capture.PixelFormatRGB24:
		bpp = 3
	case capture.PixelFormatBGRA:
		bpp = 4
	}
	shift := int(seq % 256)
	for y := 0; y < p.Height; y++ {
		row := y * p.Width * bpp
		for x := 0; x < p.Width; x++ {
			v := byte((x + y + shift) & 0xff)
			px := row + x*bpp
			for c := 0; c < bpp; c++ {
				buf[px+c] = v
			}
			if bpp == 4 {
				buf[px+3] = 0xff
			}
		}
	}
	if p.Format == capture.PixelFormatNV12 || p.Format == capture.PixelFormatYUV420P {
		luma := p.Width * p.Height
		for i := luma; i < len(buf); i++ {
			buf[i] = 0x80
		}
	}
	return buf
}
