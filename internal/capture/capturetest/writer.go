// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capturetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/camrec/internal/capture"
)

// WriterFactory opens FakeWriters and remembers each one.
type WriterFactory struct {
	mu       sync.Mutex
	openErr  error
	writers  []*FakeWriter
	template FakeWriter
}

// NewWriterFactory returns a factory whose writers accept every frame.
func NewWriterFactory() *WriterFactory {
	return &WriterFactory{}
}

// FailOpen makes subsequent Open calls return err.
func (f *WriterFactory) FailOpen(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

// FailAppendAfter makes writers opened afterwards fail Append once n frames were accepted.
func (f *WriterFactory) FailAppendAfter(n uint64, err error) {
	f.mu.Lock()
	f.template.failAfter = n
	f.template.appendErr = err
	f.mu.Unlock()
}

// HoldAppend makes writers opened afterwards stall the Append of frame seq:
// entered is closed when that Append starts, and it returns err once release
// is closed.
func (f *WriterFactory) HoldAppend(seq uint64, entered chan<- struct{}, release <-chan struct{}, err error) {
	f.mu.Lock()
	f.template.hold = &appendHold{seq: seq, entered: entered, release: release, err: err}
	f.mu.Unlock()
}

// FailFinalize makes writers opened afterwards fail Finalize with err.
func (f *WriterFactory) FailFinalize(err error) {
	f.mu.Lock()
	f.template.finalizeErr = err
	f.mu.Unlock()
}

// BlockFinalize makes writers opened afterwards wait in Finalize until
// release is closed or the finalize context expires.
func (f *WriterFactory) BlockFinalize(release <-chan struct{}) {
	f.mu.Lock()
	f.template.release = release
	f.mu.Unlock()
}

func (f *WriterFactory) Open(ctx context.Context, props capture.StreamProperties, o capture.Orientation) (capture.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	w := &FakeWriter{
		id:          fmt.Sprintf("fake-%d", len(f.writers)+1),
		props:       props,
		orientation: o,
		startedAt:   time.Now(),
		failAfter:   f.template.failAfter,
		appendErr:   f.template.appendErr,
		finalizeErr: f.template.finalizeErr,
		release:     f.template.release,
		hold:        f.template.hold,
	}
	f.writers = append(f.writers, w)
	return w, nil
}

// Writers returns every writer opened so far.
func (f *WriterFactory) Writers() []*FakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeWriter(nil), f.writers...)
}

// Last returns the most recently opened writer, or nil.
func (f *WriterFactory) Last() *FakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writers) == 0 {
		return nil
	}
	return f.writers[len(f.writers)-1]
}

// FakeWriter records appended frame sequence numbers.
type FakeWriter struct {
	id          string
	props       capture.StreamProperties
	orientation capture.Orientation
	startedAt   time.Time

	failAfter   uint64
	appendErr   error
	finalizeErr error
	release     <-chan struct{}
	hold        *appendHold

	mu              sync.Mutex
	seqs            []uint64
	bytes           int64
	finalized       bool
	appendAfterSeal atomic.Uint64
}

type appendHold struct {
	seq     uint64
	entered chan<- struct{}
	release <-chan struct{}
	err     error
}

func (w *FakeWriter) Append(f capture.Frame) error {
	if h := w.hold; h != nil && f.Seq == h.seq {
		close(h.entered)
		<-h.release
		return h.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		w.appendAfterSeal.Add(1)
		return capture.ErrWriterClosed
	}
	if w.appendErr != nil && uint64(len(w.seqs)) >= w.failAfter {
		return w.appendErr
	}
	w.seqs = append(w.seqs, f.Seq)
	w.bytes += int64(len(f.Data))
	return nil
}

func (w *FakeWriter) Finalize(ctx context.Context) (capture.Artifact, error) {
	if w.release != nil {
		select {
		case <-w.release:
		case <-ctx.Done():
			w.markFinalized()
			return capture.Artifact{}, ctx.Err()
		}
	}
	w.markFinalized()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalizeErr != nil {
		return capture.Artifact{}, w.finalizeErr
	}
	return capture.Artifact{
		ID:          w.id,
		Path:        "mem://" + w.id,
		Backend:     "fake",
		Frames:      uint64(len(w.seqs)),
		Bytes:       w.bytes,
		StartedAt:   w.startedAt,
		FinishedAt:  time.Now(),
		Properties:  w.props,
		Orientation: w.orientation,
	}, nil
}

func (w *FakeWriter) markFinalized() {
	w.mu.Lock()
	w.finalized = true
	w.mu.Unlock()
}

// Seqs returns the sequence numbers of accepted frames, in append order.
func (w *FakeWriter) Seqs() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint64(nil), w.seqs...)
}

// Finalized reports whether Finalize was called.
func (w *FakeWriter) Finalized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finalized
}

// AppendsAfterFinalize counts Append calls that arrived after Finalize.
func (w *FakeWriter) AppendsAfterFinalize() uint64 {
	return w.appendAfterSeal.Load()
}

// Orientation returns the orientation the writer was opened with.
func (w *FakeWriter) Orientation() capture.Orientation { return w.orientation }

// Properties returns the stream format the writer was opened with.
func (w *FakeWriter) Properties() capture.StreamProperties { return w.props }
