// Package metrics exposes the Prometheus collectors the fleet engine
// records against: tick outcomes, vendor call latency/errors, and POI
// resolution tier hits.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_engine_run_ticks_total",
			Help: "Total run tick outcomes by result",
		},
		[]string{"result"},
	)

	vendorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_engine_vendor_call_duration_seconds",
			Help:    "Vendor dispatch API call latency by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	vendorCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_engine_vendor_call_errors_total",
			Help: "Total vendor dispatch API call errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	resolverTierHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_engine_poi_resolver_tier_hits_total",
			Help: "POI resolution outcomes by tier",
		},
		[]string{"tier"},
	)

	poiEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_engine_robot_poll_events_total",
			Help: "Robot state poller outcomes by result",
		},
		[]string{"result"},
	)

	persistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_engine_persistence_errors_total",
			Help: "Total persistence operation errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)
)

// RecordTick increments the tick outcome counter. result is one of:
// "advanced", "completed", "failed", "noop".
func RecordTick(result string) {
	tickOutcomes.WithLabelValues(result).Inc()
}

// ObserveVendorCall records the duration of a vendor API call.
func ObserveVendorCall(operation string, seconds float64) {
	vendorCallDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordVendorCallError increments the vendor call error counter.
func RecordVendorCallError(operation, errorType string) {
	vendorCallErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordResolverTier increments the resolution-tier hit counter. tier is
// one of: "mapping", "direct_id", "name", "unresolved".
func RecordResolverTier(tier string) {
	resolverTierHits.WithLabelValues(tier).Inc()
}

// RecordPollOutcome increments the poller outcome counter. result is one
// of: "updated", "unchanged", "error".
func RecordPollOutcome(result string) {
	poiEvents.WithLabelValues(result).Inc()
}

// RecordPersistenceError increments the persistence error counter.
func RecordPersistenceError(operation, errorType string) {
	persistenceErrors.WithLabelValues(operation, errorType).Inc()
}
