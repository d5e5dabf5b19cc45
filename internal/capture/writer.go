// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import "context"

// WriterFactory opens a Writer bound to the stream format and orientation in
// effect when recording starts.
type WriterFactory interface {
	Open(ctx context.Context, props StreamProperties, orientation Orientation) (Writer, error)
}

// Writer is a file-writing/encoding backend.
//
// Append is fire-and-forget: it queues the frame and returns immediately. It
// must copy Frame.Data if the data outlives the call. A non-nil error means
// the writer can no longer keep the recording intact (ErrWriterBacklog,
// ErrWriterClosed or a sticky I/O error).
//
// Finalize drains queued frames and produces the artifact. If ctx expires
// first, Finalize returns ctx.Err() and discards the partial output.
type Writer interface {
	Append(f Frame) error
	Finalize(ctx context.Context) (Artifact, error)
}
