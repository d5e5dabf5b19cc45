// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_encoder_terminate_total",
		Help: "Signals sent to encoder process groups by signal and result (sent, esrch, error)",
	}, []string{"signal", "result"})

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_encoder_exit_total",
		Help: "Encoder process exits by outcome (exit0, exit_nonzero, forced_exit0, forced_error)",
	}, []string{"outcome"})
)

// IncProcTerminate records a signal sent to an encoder process group.
func IncProcTerminate(signal, result string) {
	switch signal {
	case "SIGTERM", "SIGKILL":
	default:
		signal = "other"
	}
	switch result {
	case "sent", "esrch", "error":
	default:
		result = "unknown"
	}
	procTerminate.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how an encoder process exited.
func IncProcWait(outcome string) {
	switch outcome {
	case "exit0", "exit_nonzero", "forced_exit0", "forced_error":
	default:
		outcome = "unknown"
	}
	procWait.WithLabelValues(outcome).Inc()
}
