package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the booking lifecycle
type Metrics struct {
	TransitionsTotal          *prometheus.CounterVec
	OperationDuration         *prometheus.HistogramVec
	EnrichmentFailuresTotal   *prometheus.CounterVec
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationsDropped      prometheus.Counter
	NotificationQueueDepth    prometheus.Gauge
	OutboxPublishedTotal      prometheus.Counter
	OutboxFailuresTotal       prometheus.Counter
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_booking_transitions_total",
			Help: "Total number of committed booking lifecycle operations",
		}, []string{"operation", "status"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxi_booking_operation_duration_seconds",
			Help:    "Duration of booking lifecycle operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		EnrichmentFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_booking_enrichment_failures_total",
			Help: "Reference lookups that failed while building a booking view",
		}, []string{"reference"}),

		NotificationsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_booking_notifications_sent_total",
			Help: "Booking emails handed to the mail server",
		}, []string{"template", "recipient"}),

		NotificationFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_booking_notification_failures_total",
			Help: "Booking emails that could not be sent",
		}, []string{"stage"}),

		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxi_booking_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full",
		}),

		NotificationQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taxi_booking_notification_queue_depth",
			Help: "Notifications waiting for a worker",
		}),

		OutboxPublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxi_booking_outbox_published_total",
			Help: "Lifecycle events published to the broker",
		}),

		OutboxFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "taxi_booking_outbox_failures_total",
			Help: "Lifecycle events that failed to publish",
		}),
	}
}
