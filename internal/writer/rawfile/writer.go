// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package rawfile is a capture.Writer backend storing uncompressed frames in
// a simple length-prefixed container. The file only appears under its final
// name once Finalize succeeds.
package rawfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/capture"
	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
	"github.com/ManuGH/camrec/internal/recordings"
)

const backendName = "rawfile"

// Config configures the raw container backend.
type Config struct {
	Dir       string
	QueueSize int
	Logger    *zerolog.Logger
}

// Factory opens one container file per recording.
type Factory struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewFactory validates cfg and creates the output directory.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Dir == "" {
		return nil, errors.New("rawfile writer: output dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 120
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("rawfile writer: create output dir: %w", err)
	}
	logger := xglog.WithComponent("writer.rawfile")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Factory{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Open creates a pending file and writes the container header.
func (f *Factory) Open(ctx context.Context, props capture.StreamProperties, o capture.Orientation) (capture.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !props.Format.Valid() {
		return nil, fmt.Errorf("rawfile writer: unsupported pixel format %q", props.Format)
	}

	started := f.now()
	id := uuid.NewString()
	path := filepath.Join(f.cfg.Dir, recordings.FileName(started, id, Extension))

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, fmt.Errorf("rawfile writer: create pending file: %w", err)
	}
	bw := bufio.NewWriterSize(pf, 1<<20)
	err = writeHeader(bw, Header{
		ID:          id,
		Width:       props.Width,
		Height:      props.Height,
		FrameRate:   props.FrameRate,
		Format:      props.Format,
		Orientation: o,
		Rotation:    o.Degrees(),
		StartedAt:   started.UTC(),
	})
	if err != nil {
		_ = pf.Cleanup()
		return nil, fmt.Errorf("rawfile writer: write header: %w", err)
	}

	w := &writer{
		id:          id,
		path:        path,
		props:       props,
		orientation: o,
		startedAt:   started,
		now:         f.now,
		logger: f.logger.With().
			Str(xglog.FieldRecordingID, xglog.RecordingIDFromContext(ctx)).
			Str(xglog.FieldPath, path).
			Logger(),
		pf:    pf,
		bw:    bw,
		queue: make(chan capture.Frame, f.cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go w.loop()

	w.logger.Info().
		Str(xglog.FieldEvent, "writer.opened").
		Str(xglog.FieldBackend, backendName).
		Str(xglog.FieldResolution, props.Resolution()).
		Msg("raw container opened")
	return w, nil
}

type writer struct {
	id          string
	path        string
	props       capture.StreamProperties
	orientation capture.Orientation
	startedAt   time.Time
	now         func() time.Time
	logger      zerolog.Logger

	pf    *renameio.PendingFile
	bw    *bufio.Writer
	queue chan capture.Frame
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	frames   atomic.Uint64
	bytes    atomic.Int64
	firstPTS time.Duration
	lastPTS  time.Duration
}

func (w *writer) Append(f capture.Frame) error {
	if err := w.stickyErr(); err != nil {
		return err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return capture.ErrWriterClosed
	}
	f.Data = append([]byte(nil), f.Data...)
	select {
	case w.queue <- f:
		metrics.SetWriterQueueDepth(backendName, len(w.queue))
		return nil
	default:
		return capture.ErrWriterBacklog
	}
}

func (w *writer) Finalize(ctx context.Context) (capture.Artifact, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return capture.Artifact{}, capture.ErrWriterClosed
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-ctx.Done():
		// The loop still owns the pending file; discard it once it exits.
		go func() {
			<-w.done
			_ = w.pf.Cleanup()
		}()
		return capture.Artifact{}, ctx.Err()
	}

	if err := w.stickyErr(); err != nil {
		_ = w.pf.Cleanup()
		return capture.Artifact{}, err
	}
	if err := w.bw.Flush(); err != nil {
		_ = w.pf.Cleanup()
		return capture.Artifact{}, fmt.Errorf("rawfile writer: flush: %w", err)
	}
	if err := w.pf.CloseAtomicallyReplace(); err != nil {
		_ = w.pf.Cleanup()
		return capture.Artifact{}, fmt.Errorf("rawfile writer: publish artifact: %w", err)
	}

	frames := w.frames.Load()
	duration := w.lastPTS - w.firstPTS
	if frames > 0 {
		duration += w.props.FrameInterval()
	}
	art := capture.Artifact{
		ID:          w.id,
		Path:        w.path,
		Backend:     backendName,
		Frames:      frames,
		Bytes:       w.bytes.Load(),
		Duration:    duration,
		StartedAt:   w.startedAt,
		FinishedAt:  w.now(),
		Properties:  w.props,
		Orientation: w.orientation,
	}
	w.logger.Info().
		Str(xglog.FieldEvent, "writer.finalized").
		Str(xglog.FieldFinalPath, art.Path).
		Uint64(xglog.FieldFrames, frames).
		Int64("bytes", art.Bytes).
		Msg("raw container finalized")
	return art, nil
}

func (w *writer) loop() {
	defer close(w.done)
	defer metrics.SetWriterQueueDepth(backendName, 0)
	for f := range w.queue {
		if w.stickyErr() != nil {
			continue
		}
		n, err := writeRecord(w.bw, f)
		if err != nil {
			w.setErr(fmt.Errorf("rawfile writer: write frame %d: %w", f.Seq, err))
			continue
		}
		if w.frames.Add(1) == 1 {
			w.firstPTS = f.PTS
		}
		w.lastPTS = f.PTS
		w.bytes.Add(int64(n))
		metrics.SetWriterQueueDepth(backendName, len(w.queue))
	}
}

func (w *writer) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
		w.logger.Error().Err(err).Str(xglog.FieldEvent, "writer.io_error").Msg("raw container write failed")
	}
}

func (w *writer) stickyErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
