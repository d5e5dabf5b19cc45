// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics exposes the camrec Prometheus collectors.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camrec_frames_produced_total",
		Help: "Total number of frames accepted from the frame source",
	})

	framesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camrec_frames_rejected_total",
		Help: "Total number of frames pushed by a source after its run was closed",
	})

	previewFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_preview_frames_total",
		Help: "Total number of preview frames by result (delivered, dropped)",
	}, []string{"result"})

	framesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camrec_frames_appended_total",
		Help: "Total number of frames handed to an active recording writer",
	})

	writerFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_writer_faults_total",
		Help: "Total number of writer faults by reason",
	}, []string{"reason"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_transitions_total",
		Help: "Total number of recorder state transitions",
	}, []string{"from", "to"})

	recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_recordings_total",
		Help: "Total number of recordings by outcome (started, open_failed, finalized, failed)",
	}, []string{"result"})

	finalizeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camrec_finalize_seconds",
		Help:    "Time spent draining and finalizing a recording",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
	})

	recorderState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camrec_state",
		Help: "Current recorder state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	writerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camrec_writer_queue_depth",
		Help: "Frames queued inside a writer backend and not yet written",
	}, []string{"backend"})
)

var knownStates = []string{"idle", "running", "recording", "stopping"}

// IncFramesProduced records one frame accepted from the source.
func IncFramesProduced() { framesProduced.Inc() }

// IncFramesRejected records one frame pushed into a closed run.
func IncFramesRejected() { framesRejected.Inc() }

// IncPreviewDelivered records a preview frame handed to the client.
func IncPreviewDelivered() { previewFrames.WithLabelValues("delivered").Inc() }

// IncPreviewDropped records a preview frame dropped because the client was busy.
func IncPreviewDropped() { previewFrames.WithLabelValues("dropped").Inc() }

// IncFramesAppended records one frame handed to the writer.
func IncFramesAppended() { framesAppended.Inc() }

// IncWriterFault records a writer fault with a normalized reason.
// reason ∈ {backlog,closed,io,timeout,unknown}
func IncWriterFault(reason string) {
	writerFaults.WithLabelValues(normalizeWriterFaultReason(reason)).Inc()
}

// RecordTransition counts a transition and moves the state gauge.
func RecordTransition(from, to string) {
	from, to = normalizeState(from), normalizeState(to)
	transitions.WithLabelValues(from, to).Inc()
	SetState(to)
}

// SetState sets the state gauge to one-hot encode the given state.
func SetState(state string) {
	state = normalizeState(state)
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		recorderState.WithLabelValues(s).Set(v)
	}
}

// IncRecording records a recording outcome.
// result ∈ {started,open_failed,finalized,failed}
func IncRecording(result string) {
	switch result {
	case "started", "open_failed", "finalized", "failed":
	default:
		result = "unknown"
	}
	recordings.WithLabelValues(result).Inc()
}

// ObserveFinalize records the duration of a finalize call.
func ObserveFinalize(d time.Duration) {
	finalizeSeconds.Observe(d.Seconds())
}

// SetWriterQueueDepth publishes the queued-frame count for a writer backend.
func SetWriterQueueDepth(backend string, depth int) {
	if backend == "" {
		backend = "unknown"
	}
	writerQueueDepth.WithLabelValues(backend).Set(float64(depth))
}

func normalizeState(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, known := range knownStates {
		if s == known {
			return s
		}
	}
	return "unknown"
}

func normalizeWriterFaultReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "backlog", "closed", "io", "timeout":
		return strings.ToLower(strings.TrimSpace(reason))
	default:
		return "unknown"
	}
}
