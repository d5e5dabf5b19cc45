// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import "context"

// FrameSource abstracts the capture device.
//
// Implementations must guarantee:
//   - Start returns once the device is producing (or failed to), frames are
//     pushed into sink from the source's own goroutine
//   - after a fatal error the source calls sink.HandleSourceError exactly once
//     and pushes no further frames
//   - Stop is idempotent and safe to call after a fatal error
//   - Properties is safe to call from any goroutine
type FrameSource interface {
	Start(ctx context.Context, sink SourceSink) error
	Stop() error
	Properties() StreamProperties
}

// SourceSink receives the push stream of a running FrameSource. None of its
// methods block.
type SourceSink interface {
	HandleFrame(f Frame)
	HandleFormatChange(p StreamProperties)
	HandleSourceError(err error)
}
