// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package eventsink contains capture.Handler implementations used by the
// daemon: fan-out, logging, Redis publishing, catalog recording and the
// latest-preview snapshot.
package eventsink

import "github.com/ManuGH/camrec/internal/capture"

// Fanout delivers each event to every handler in order.
type Fanout []capture.Handler

// NewFanout drops nil handlers.
func NewFanout(handlers ...capture.Handler) Fanout {
	out := make(Fanout, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (f Fanout) HandleEvent(ev capture.Event) {
	for _, h := range f {
		h.HandleEvent(ev)
	}
}

// LifecycleOnly forwards everything except preview frames.
func LifecycleOnly(h capture.Handler) capture.Handler {
	return capture.HandlerFunc(func(ev capture.Event) {
		if ev.Kind.Lifecycle() {
			h.HandleEvent(ev)
		}
	})
}
