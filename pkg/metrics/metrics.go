package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Event consumption
	EventsConsumed          *prometheus.CounterVec
	EventProcessingDuration prometheus.Histogram
	ConsumerState           prometheus.Gauge

	// Fan-out
	NotificationsDispatched *prometheus.CounterVec
	Broadcasts              prometheus.Counter

	// Realtime gateway
	ActiveConnections prometheus.Gauge
	InboundEvents     *prometheus.CounterVec

	// Presence and offline stores
	StoreOperations *prometheus.CounterVec
	StoreLatency    *prometheus.HistogramVec

	// HTTP
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "events_total",
			Help:      "Lifecycle events consumed, by event type and outcome",
		}, []string{"event_type", "outcome"}),
		EventProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing a lifecycle event",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		ConsumerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "state",
			Help:      "Consumer state: 0 disconnected, 1 connecting, 2 consuming, 3 reconnecting",
		}),

		NotificationsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "notifications_total",
			Help:      "Notifications dispatched, by target kind and delivery path",
		}, []string{"target", "delivery"}),
		Broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "task_broadcasts_total",
			Help:      "task:update broadcasts emitted",
		}),

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently connected realtime sessions",
		}),
		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "inbound_events_total",
			Help:      "Client events received, by event name and status",
		}, []string{"event", "status"}),

		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Presence and offline store operations",
		}, []string{"store", "operation", "status"}),
		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of presence and offline store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"store", "operation"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

// NewNop builds metrics against a throwaway registry.
func NewNop() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}
