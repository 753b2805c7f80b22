package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of notification messages published to the bus",
		},
		[]string{"channel"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_publish_failures_total",
			Help: "Total number of failed publish attempts",
		},
		[]string{"channel"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of delivery attempts by final status",
		},
		[]string{"channel", "status"}, // status: sent, failed, dropped
	)

	DeliveryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_retries_total",
			Help: "Total number of delivery retries",
		},
		[]string{"channel"},
	)

	FailureRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failure_records_total",
			Help: "Total number of failure records written",
		},
		[]string{"channel"},
	)

	SchedulerClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_claims_total",
			Help: "Total number of claim attempts on due notifications",
		},
		[]string{"result"}, // result: won, lost
	)

	SchedulerSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_sweep_duration_seconds",
			Help:    "Duration of a scheduler sweep over due notifications",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	BatchFlushSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_batch_flush_size",
			Help:    "Number of notifications flushed per batch",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
		[]string{"channel"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)
)

// ObserveDBQuery records a query duration against the given operation and table.
func ObserveDBQuery(operation, table string, start time.Time) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
