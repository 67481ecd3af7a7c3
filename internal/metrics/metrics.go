// Package metrics holds the Prometheus instruments of the overlay engine and
// its surrounding plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bpmnlens"

var (
	// overlayOps counts overlay additions and removals.
	// Labels: mode (instance, aggregation), op (add, remove)
	overlayOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "overlay",
		Name:      "operations_total",
		Help:      "Overlay add/remove operations issued against the canvas",
	}, []string{"mode", "op"})

	// gatewayBlocks counts gateway region shapes created and released.
	// Labels: op (create, release)
	gatewayBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "overlay",
		Name:      "gateway_blocks_total",
		Help:      "Gateway region shapes created and released",
	}, []string{"op"})

	// reportsSkipped counts reports that caused no canvas mutation.
	// Labels: reason (missing_element, unknown_kind)
	reportsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "overlay",
		Name:      "reports_skipped_total",
		Help:      "Overlay reports or flags skipped during reconciliation",
	}, []string{"reason"})

	// reconcileDuration measures one reconciliation pass over a batch.
	// Labels: mode
	reconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "overlay",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of one overlay batch reconciliation",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"mode"})

	// passesDropped counts re-entrant reconciliation passes that were dropped.
	passesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "passes_dropped_total",
		Help:      "Re-entrant overlay passes dropped while another was in flight",
	})

	// updatesReceived counts job updates by outcome.
	// Labels: outcome (applied, deferred, filtered, invalid)
	updatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "updates_total",
		Help:      "Real-time job updates handled by outcome",
	}, []string{"outcome"})

	// connectorMessages counts aggregator messages.
	// Labels: direction (in, out), type
	connectorMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connector",
		Name:      "messages_total",
		Help:      "Aggregator WebSocket messages by direction and type",
	}, []string{"direction", "type"})

	// hubDropped counts events a slow hub subscriber missed.
	// Labels: event_type
	hubDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "events_dropped_total",
		Help:      "Stream events dropped because a subscriber buffer was full",
	}, []string{"event_type"})

	hubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "subscribers",
		Help:      "Live stream subscriptions",
	})

	// snapshotsPruned counts snapshot rows removed by the retention sweep.
	snapshotsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "snapshots_pruned_total",
		Help:      "Overlay snapshots deleted by the retention sweep",
	})
)

// RecordOverlayOp records an overlay add or remove.
func RecordOverlayOp(mode, op string) {
	overlayOps.WithLabelValues(mode, op).Inc()
}

// RecordGatewayBlock records a gateway region shape create or release.
func RecordGatewayBlock(op string) {
	gatewayBlocks.WithLabelValues(op).Inc()
}

// RecordSkipped records a skipped report or flag.
func RecordSkipped(reason string) {
	reportsSkipped.WithLabelValues(reason).Inc()
}

// ObserveReconcile records the duration of one batch.
func ObserveReconcile(mode string, seconds float64) {
	reconcileDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordPassDropped records a dropped re-entrant pass.
func RecordPassDropped() {
	passesDropped.Inc()
}

// RecordUpdate records a job update outcome.
func RecordUpdate(outcome string) {
	updatesReceived.WithLabelValues(outcome).Inc()
}

// RecordConnectorMessage records an aggregator message.
func RecordConnectorMessage(direction, msgType string) {
	connectorMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordHubDrop records an event dropped for a slow subscriber.
func RecordHubDrop(eventType string) {
	hubDropped.WithLabelValues(eventType).Inc()
}

// SetHubSubscribers records the number of live subscriptions.
func SetHubSubscribers(n int) {
	hubSubscribers.Set(float64(n))
}

// RecordPruned records snapshots removed by a retention sweep.
func RecordPruned(n int64) {
	if n > 0 {
		snapshotsPruned.Add(float64(n))
	}
}
