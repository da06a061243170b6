// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LifecycleTransitions counts committed identity state changes.
	LifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appleverse_lifecycle_transitions_total",
		Help: "Total number of committed identity lifecycle transitions",
	}, []string{"operation", "from", "to"})

	// LifecycleRejections counts lifecycle operations that were refused and why.
	LifecycleRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appleverse_lifecycle_rejections_total",
		Help: "Total number of lifecycle operations that did not commit",
	}, []string{"operation", "code"})

	// LoginAttempts counts admin logins by outcome.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appleverse_login_attempts_total",
		Help: "Total number of admin login attempts by outcome",
	}, []string{"outcome"})

	// NotificationFailures counts reviewer notifications that could not be delivered.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appleverse_notification_failures_total",
		Help: "Total number of failed reviewer notifications by channel",
	}, []string{"channel"})

	// StoreOperationLatency records credential store latency by backend and operation.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appleverse_store_operation_latency_seconds",
		Help:    "Credential store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// WebSocketEventsTotal counts reviewer feed events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appleverse_websocket_events_total",
		Help: "Total reviewer feed events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts feed messages dropped because a client was too slow.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appleverse_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// StoreMetrics records latency for one storage backend.
type StoreMetrics struct {
	backend string
}

// NewStoreMetrics returns a StoreMetrics labelled with the given backend name.
func NewStoreMetrics(backend string) *StoreMetrics {
	return &StoreMetrics{backend: backend}
}

// ObserveOperation records the latency of a store operation that began at start.
func (m *StoreMetrics) ObserveOperation(operation string, start time.Time) {
	StoreOperationLatency.WithLabelValues(m.backend, operation).Observe(time.Since(start).Seconds())
}

// TrackOperation returns a function that records operation latency when called (e.g. defer).
func (m *StoreMetrics) TrackOperation(operation string) func() {
	start := time.Now()
	return func() {
		m.ObserveOperation(operation, start)
	}
}
