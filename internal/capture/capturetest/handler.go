// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capturetest

import (
	"sync"
	"time"

	"github.com/ManuGH/camrec/internal/capture"
)

// Recorder is a capture.Handler that keeps every event it receives.
type Recorder struct {
	// PreviewDelay stalls each preview delivery to simulate a slow consumer.
	PreviewDelay time.Duration

	mu      sync.Mutex
	events  []capture.Event
	changed chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{changed: make(chan struct{}, 1)}
}

func (r *Recorder) HandleEvent(ev capture.Event) {
	if ev.Kind == capture.EventPreviewFrame && r.PreviewDelay > 0 {
		time.Sleep(r.PreviewDelay)
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything received so far.
func (r *Recorder) Events() []capture.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.Event(nil), r.events...)
}

// Lifecycle returns received events without preview frames.
func (r *Recorder) Lifecycle() []capture.Event {
	var out []capture.Event
	for _, ev := range r.Events() {
		if ev.Kind.Lifecycle() {
			out = append(out, ev)
		}
	}
	return out
}

// LifecycleKinds returns the kinds of Lifecycle, in delivery order.
func (r *Recorder) LifecycleKinds() []capture.EventKind {
	var out []capture.EventKind
	for _, ev := range r.Lifecycle() {
		out = append(out, ev.Kind)
	}
	return out
}

// Count returns how many events of kind were received.
func (r *Recorder) Count(kind capture.EventKind) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind capture.EventKind) (capture.Event, bool) {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			return events[i], true
		}
	}
	return capture.Event{}, false
}

// WaitFor blocks until at least n events of kind arrived or timeout elapses.
func (r *Recorder) WaitFor(kind capture.EventKind, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.Count(kind) >= n {
			return true
		}
		select {
		case <-r.changed:
		case <-deadline.C:
			return r.Count(kind) >= n
		}
	}
}
