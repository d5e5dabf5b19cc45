// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camrec_build_info",
		Help: "Build information (constant 1)",
	}, []string{"version", "backend"})

	// Operational metrics
	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_config_reloads_total",
		Help: "Configuration reloads by result",
	}, []string{"result"}) // result=loaded|failed|applied

	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camrec_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	catalogWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_catalog_writes_total",
		Help: "Artifacts written to the recordings catalog by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_events_published_total",
		Help: "Lifecycle events published to the message bus by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	previewEncodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_preview_encodes_total",
		Help: "Preview snapshots served as PNG by outcome",
	}, []string{"outcome"}) // outcome=success|empty|failure
)

// SetBuildInfo publishes the running version and writer backend.
func SetBuildInfo(version, backend string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, backend).Set(1)
}

func IncConfigReload(result string) {
	switch result {
	case "loaded", "failed", "applied":
	default:
		result = "unknown"
	}
	configReloads.WithLabelValues(result).Inc()
}

func IncConfigValidationError() { configValidationErrors.Inc() }

func IncCatalogWrite(outcome string) { catalogWrites.WithLabelValues(outcome).Inc() }

func IncEventPublish(outcome string) { eventsPublished.WithLabelValues(outcome).Inc() }

func IncPreviewEncode(outcome string) { previewEncodes.WithLabelValues(outcome).Inc() }

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camrec_circuit_breaker_state",
		Help: "Circuit breaker state per component (1 for the active state, 0 otherwise)",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrec_circuit_breaker_trips_total",
		Help: "Circuit breaker trips per component by reason",
	}, []string{"component", "reason"})
)

// SetCircuitBreakerState marks state as the active breaker state of component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(component, s).Set(v)
	}
}

func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}
