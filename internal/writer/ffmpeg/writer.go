// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ffmpeg is a capture.Writer backend that pipes raw frames into an
// ffmpeg child process and produces an mp4 artifact.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camrec/internal/capture"
	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
	"github.com/ManuGH/camrec/internal/procgroup"
	"github.com/ManuGH/camrec/internal/recordings"
)

const backendName = "ffmpeg"

// ErrFrameSize is returned by Append for a frame that does not match the
// format the writer was opened with.
var ErrFrameSize = errors.New("ffmpeg writer: frame size mismatch")

// Config configures the ffmpeg backend.
type Config struct {
	BinaryPath string
	Dir        string
	QueueSize  int
	Encode     EncodeOptions
	StopGrace  time.Duration
	Logger     *zerolog.Logger
}

// Factory opens one ffmpeg process per recording.
type Factory struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewFactory validates cfg and creates the output directory.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Dir == "" {
		return nil, errors.New("ffmpeg writer: output dir is required")
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "ffmpeg"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 120
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("ffmpeg writer: create output dir: %w", err)
	}
	logger := xglog.WithComponent("writer.ffmpeg")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Factory{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Open starts an encoder for props. The artifact is written under a
// .partial name and renamed on a clean exit.
func (f *Factory) Open(ctx context.Context, props capture.StreamProperties, o capture.Orientation) (capture.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := f.now()
	id := uuid.NewString()
	final := filepath.Join(f.cfg.Dir, recordings.FileName(started, id, ".mp4"))
	partial := final + recordings.PartialSuffix

	args, err := BuildArgs(props, o, partial, f.cfg.Encode)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(f.cfg.BinaryPath, args...)
	procgroup.Set(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg writer: stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg writer: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg writer: exec start failed: %w", err)
	}

	logger := f.logger.With().
		Str(xglog.FieldRecordingID, xglog.RecordingIDFromContext(ctx)).
		Str(xglog.FieldPath, partial).
		Int("pid", cmd.Process.Pid).
		Logger()

	w := &writer{
		id:          id,
		final:       final,
		partial:     partial,
		props:       props,
		orientation: o,
		frameSize:   props.Format.BytesPerFrame(props.Width, props.Height),
		startedAt:   started,
		now:         f.now,
		grace:       f.cfg.StopGrace,
		logger:      logger,
		cmd:         cmd,
		queue:       make(chan capture.Frame, f.cfg.QueueSize),
		pumpDone:    make(chan struct{}),
		waitCh:      make(chan error, 1),
		ring:        NewRingBuffer(50),
	}
	go w.monitor(stderr)
	go w.pump(stdin)

	logger.Info().
		Str(xglog.FieldEvent, "writer.opened").
		Str(xglog.FieldBackend, backendName).
		Strs("args", args).
		Msg("encoder started")
	return w, nil
}

type writer struct {
	id          string
	final       string
	partial     string
	props       capture.StreamProperties
	orientation capture.Orientation
	frameSize   int
	startedAt   time.Time
	now         func() time.Time
	grace       time.Duration
	logger      zerolog.Logger

	cmd      *exec.Cmd
	queue    chan capture.Frame
	pumpDone chan struct{}
	waitCh   chan error
	ring     *RingBuffer

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	frames atomic.Uint64
	bytes  atomic.Int64
}

func (w *writer) Append(f capture.Frame) error {
	if err := w.stickyErr(); err != nil {
		return err
	}
	if len(f.Data) != w.frameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(f.Data), w.frameSize)
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
	case <-w.pumpDone:
	case <-ctx.Done():
		return capture.Artifact{}, w.abort(ctx.Err())
	}

	var exitErr error
	select {
	case exitErr = <-w.waitCh:
	case <-ctx.Done():
		return capture.Artifact{}, w.abort(ctx.Err())
	}

	if err := errors.Join(w.stickyErr(), exitErr); err != nil {
		_ = os.Remove(w.partial)
		return capture.Artifact{}, fmt.Errorf("ffmpeg writer: encoder failed: %w%s", err, w.diagnostics())
	}

	if err := os.Rename(w.partial, w.final); err != nil {
		return capture.Artifact{}, fmt.Errorf("ffmpeg writer: publish artifact: %w", err)
	}
	info, err := os.Stat(w.final)
	if err != nil {
		return capture.Artifact{}, fmt.Errorf("ffmpeg writer: stat artifact: %w", err)
	}

	frames := w.frames.Load()
	art := capture.Artifact{
		ID:          w.id,
		Path:        w.final,
		Backend:     backendName,
		Frames:      frames,
		Bytes:       info.Size(),
		Duration:    time.Duration(frames) * w.props.FrameInterval(),
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
		Msg("encoder finished")
	return art, nil
}

// abort kills the encoder group after a finalize deadline and discards the
// partial output.
func (w *writer) abort(cause error) error {
	w.logger.Warn().
		Str(xglog.FieldEvent, "writer.abort").
		Err(cause).
		Msg("finalize interrupted, terminating encoder")
	_ = procgroup.Terminate(w.cmd, w.waitCh, w.grace)
	<-w.pumpDone
	_ = os.Remove(w.partial)
	return cause
}

func (w *writer) pump(stdin io.WriteCloser) {
	defer close(w.pumpDone)
	defer metrics.SetWriterQueueDepth(backendName, 0)

	bw := bufio.NewWriterSize(stdin, max(w.frameSize*2, 64<<10))
	for f := range w.queue {
		if w.stickyErr() != nil {
			continue
		}
		if _, err := bw.Write(f.Data); err != nil {
			w.setErr(fmt.Errorf("write frame %d: %w", f.Seq, err))
			continue
		}
		w.frames.Add(1)
		w.bytes.Add(int64(len(f.Data)))
		metrics.SetWriterQueueDepth(backendName, len(w.queue))
	}
	if w.stickyErr() == nil {
		if err := bw.Flush(); err != nil {
			w.setErr(fmt.Errorf("flush: %w", err))
		}
	}
	// Closing stdin is ffmpeg's end-of-stream.
	_ = stdin.Close()
}

func (w *writer) monitor(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		w.ring.Add(line)
		w.logger.Debug().Str("stderr", line).Msg("encoder output")
	}
	w.waitCh <- w.cmd.Wait()
}

func (w *writer) diagnostics() string {
	lines := w.ring.Lines()
	if len(lines) == 0 {
		return ""
	}
	return ": " + strings.Join(lines, " | ")
}

func (w *writer) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
		w.logger.Error().Err(err).Str(xglog.FieldEvent, "writer.io_error").Msg("encoder pipe failed")
	}
}

func (w *writer) stickyErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
