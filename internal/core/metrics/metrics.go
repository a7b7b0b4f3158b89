package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotationRequests tracks Generate calls by outcome
	QuotationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotation_requests_total",
			Help: "Total number of quotation requests",
		},
		[]string{"outcome"},
	)

	// StageDuration tracks time spent in each pipeline stage, retries included
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quotation_stage_duration_seconds",
			Help:    "Quotation pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// RetryAttempts counts attempts that were followed by a retry
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotation_retry_attempts_total",
			Help: "Total number of retried attempts per operation",
		},
		[]string{"operation"},
	)

	// RetriesExhausted counts operations that ran out of attempts
	RetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotation_retries_exhausted_total",
			Help: "Total number of operations that exhausted their retry budget",
		},
		[]string{"operation"},
	)

	// ClientRequests tracks outbound lookups per service and status
	ClientRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotation_client_requests_total",
			Help: "Total number of requests to customer and product services",
		},
		[]string{"service", "status"},
	)

	// ClientLatency tracks outbound lookup latency
	ClientLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quotation_client_latency_seconds",
			Help:    "Customer and product service latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// StoreErrors tracks failed quotation store calls
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotation_store_errors_total",
			Help: "Total number of quotation store errors",
		},
		[]string{"backend", "operation"},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quotation_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
