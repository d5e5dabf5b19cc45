// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import "time"

// EventKind tags an Event.
type EventKind string

const (
	EventRunningStopped    EventKind = "running_stopped"
	EventPreviewFrame      EventKind = "preview_frame"
	EventRecordingStarted  EventKind = "recording_started"
	EventRecordingFailed   EventKind = "recording_failed"
	EventRecordingWillStop EventKind = "recording_will_stop"
	EventRecordingDidStop  EventKind = "recording_did_stop"
)

// Lifecycle reports whether k is never dropped by the dispatcher.
func (k EventKind) Lifecycle() bool {
	return k != EventPreviewFrame
}

// Event is one client notification.
//
//   - EventPreviewFrame carries Frame.
//   - EventRecordingDidStop carries Artifact when one was produced, and Err
//     when finalize failed or the recording ended on a fault. Both may be set
//     when a faulted recording was salvaged.
//   - EventRunningStopped and EventRecordingFailed carry Err when the cause
//     was a fault.
type Event struct {
	Kind     EventKind
	Seq      uint64
	Time     time.Time
	State    State
	Frame    *Frame
	Artifact *Artifact
	Err      error
}

// Handler receives events on the dispatcher goroutine, one at a time.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }

// ChanHandler forwards events to a channel. A full channel blocks the
// dispatcher, which in turn only delays other events; preview frames are
// still dropped upstream.
type ChanHandler chan Event

func (c ChanHandler) HandleEvent(ev Event) { c <- ev }
