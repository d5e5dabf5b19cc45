// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"github.com/ManuGH/camrec/internal/fsm"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
)

// Active reports whether the source is running in s.
func (s State) Active() bool {
	return s == StateRunning || s == StateRecording || s == StateStopping
}

type trigger string

const (
	triggerStartRunning   trigger = "start_running"
	triggerStopRunning    trigger = "stop_running"
	triggerStartRecording trigger = "start_recording"
	triggerStopRecording  trigger = "stop_recording"
	triggerFinalized      trigger = "finalized"
)

// transitions is the complete lifecycle table. Preconditions are checked by
// the controller before firing, so an ErrInvalidTransition here is a bug.
var transitions = []fsm.Transition[State, trigger]{
	{From: StateIdle, Event: triggerStartRunning, To: StateRunning},
	{From: StateRunning, Event: triggerStopRunning, To: StateIdle},
	{From: StateRunning, Event: triggerStartRecording, To: StateRecording},
	{From: StateRecording, Event: triggerStopRecording, To: StateStopping},
	{From: StateStopping, Event: triggerFinalized, To: StateRunning},
}

func newMachine() *fsm.Machine[State, trigger] {
	return fsm.MustNew(StateIdle, transitions)
}
