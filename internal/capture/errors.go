// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"errors"
	"fmt"
)

// Precondition errors. They are returned synchronously and never produce an Event.
var (
	ErrInvalidState     = errors.New("capture: invalid state")
	ErrAlreadyRunning   = fmt.Errorf("%w: already running", ErrInvalidState)
	ErrNotRunning       = fmt.Errorf("%w: not running", ErrInvalidState)
	ErrAlreadyRecording = fmt.Errorf("%w: already recording", ErrInvalidState)
	ErrNotRecording     = fmt.Errorf("%w: not recording", ErrInvalidState)
)

var (
	ErrClosed             = errors.New("capture: controller closed")
	ErrInvalidOrientation = errors.New("capture: invalid orientation")
	ErrInvalidConfig      = errors.New("capture: invalid config")
)

// Fault classes carried in Event.Err.
var (
	ErrSourceFault     = errors.New("capture: source fault")
	ErrSourceStart     = errors.New("capture: source failed to start")
	ErrWriterFault     = errors.New("capture: writer fault")
	ErrFinalizeTimeout = errors.New("capture: finalize timed out")
)

// Writer backend errors returned from Writer.Append.
var (
	ErrWriterBacklog = errors.New("capture: writer backlog full")
	ErrWriterClosed  = errors.New("capture: writer closed")
)

func writerFaultReason(err error) string {
	switch {
	case errors.Is(err, ErrWriterBacklog):
		return "backlog"
	case errors.Is(err, ErrWriterClosed):
		return "closed"
	default:
		return "io"
	}
}

func joinErrs(cause, err error) error {
	switch {
	case cause == nil:
		return err
	case err == nil:
		return cause
	default:
		return errors.Join(cause, err)
	}
}
