// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/camrec/internal/log"
	"github.com/ManuGH/camrec/internal/metrics"
)

// Dispatcher delivers events to a Handler on its own goroutine.
//
// Lifecycle events are queued without bound and never dropped. Preview
// frames share the queue, but at most one may be queued or in the handler at
// any time; offers made meanwhile are dropped.
type Dispatcher struct {
	handler Handler
	logger  zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	queue  []Event
	seq    uint64
	closed bool

	wake chan struct{}
	done chan struct{}

	previewBusy      atomic.Bool
	previewDelivered atomic.Uint64
	previewDropped   atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. Close must be called to stop it.
func NewDispatcher(h Handler, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		handler: h,
		logger:  logger,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues a lifecycle event and returns false if the dispatcher is closed.
// Seq and Time are assigned here.
func (d *Dispatcher) Emit(ev Event) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.enqueueLocked(ev)
	d.mu.Unlock()
	d.signal()
	return true
}

// OfferPreview queues f as a preview frame unless one is already pending.
// It never blocks on the handler.
func (d *Dispatcher) OfferPreview(f Frame, state State) bool {
	if !d.previewBusy.CompareAndSwap(false, true) {
		n := d.previewDropped.Add(1)
		metrics.IncPreviewDropped()
		if xglog.Every(n, 100) {
			d.logger.Debug().
				Str(xglog.FieldEvent, "capture.preview_dropped").
				Uint64(xglog.FieldDropped, n).
				Msg("preview consumer busy, dropping frames")
		}
		return false
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.previewBusy.Store(false)
		return false
	}
	d.enqueueLocked(Event{Kind: EventPreviewFrame, State: state, Frame: &f})
	d.mu.Unlock()
	d.signal()
	return true
}

// PreviewStats returns the number of delivered and dropped preview frames.
func (d *Dispatcher) PreviewStats() (delivered, dropped uint64) {
	return d.previewDelivered.Load(), d.previewDropped.Load()
}

// Close stops accepting events, delivers everything already queued and waits
// for the delivery goroutine. It is safe to call more than once.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) enqueueLocked(ev Event) {
	d.seq++
	ev.Seq = d.seq
	ev.Time = d.now()
	d.queue = append(d.queue, ev)
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, ev := range batch {
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	if ev.Kind == EventPreviewFrame {
		defer func() {
			d.previewDelivered.Add(1)
			metrics.IncPreviewDelivered()
			d.previewBusy.Store(false)
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str(xglog.FieldEvent, "capture.handler_panic").
				Str("kind", string(ev.Kind)).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	d.handler.HandleEvent(ev)
}
