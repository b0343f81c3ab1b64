// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the event pipeline:
// - Event intake and validation
// - Batch delivery latency and outcomes
// - Retry and dead-letter behavior
// - Circuit breaker state

var (
	// Event Intake Metrics
	EventsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_queued_total",
			Help: "Total number of events accepted into the send queue",
		},
		[]string{"event"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_rejected_total",
			Help: "Total number of events rejected before queueing",
		},
		[]string{"reason"}, // "empty_name", "name_too_long", "data_too_large", "uninitialized"
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_queue_depth",
			Help: "Current number of events waiting in the send queue",
		},
	)

	// Delivery Metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_deliveries_total",
			Help: "Total number of delivery attempts by outcome",
		},
		[]string{"outcome"}, // "success", "transient", "permanent"
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_delivery_duration_seconds",
			Help:    "Duration of collector POST requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeliveryBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_delivery_batch_size",
			Help:    "Number of events per delivery request",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	DeliveryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_delivery_retries_total",
			Help: "Total number of delivery retry attempts",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_dropped_total",
			Help: "Total number of events dropped without delivery",
		},
		[]string{"reason"}, // "permanent", "queue_full", "dead_letter_evicted"
	)

	// Dead Letter Metrics
	DeadLetterEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_dead_letter_entries",
			Help: "Current number of persisted dead-letter events",
		},
	)

	DeadLetterAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_dead_letter_added_total",
			Help: "Total number of events persisted to the dead-letter store",
		},
	)

	DeadLetterExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_dead_letter_expired_total",
			Help: "Total number of dead-letter events discarded on TTL expiry",
		},
	)

	DeadLetterResent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_dead_letter_resent_total",
			Help: "Total number of dead-letter events handed back to the send path",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Session Metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_sessions_started_total",
			Help: "Total number of new sessions created",
		},
	)

	// Command Metrics
	CommandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_commands_processed_total",
			Help: "Total number of commands consumed from the inbox",
		},
		[]string{"command"}, // "config", "track", "setUserId", "debug", "invalid"
	)

	CommandInboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_command_inbox_depth",
			Help: "Current number of commands waiting in the inbox",
		},
	)
)

// RecordDelivery records one delivery attempt with its outcome and timing.
func RecordDelivery(outcome string, batchSize int, duration time.Duration) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
	DeliveryBatchSize.Observe(float64(batchSize))
	DeliveryDuration.Observe(duration.Seconds())
}

// RecordRejection records an event rejected before it entered the queue.
func RecordRejection(reason string) {
	EventsRejected.WithLabelValues(reason).Inc()
}

// RecordDrop records events discarded without successful delivery.
func RecordDrop(reason string, count int) {
	EventsDropped.WithLabelValues(reason).Add(float64(count))
}
