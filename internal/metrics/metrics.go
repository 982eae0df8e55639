package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpmeout_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpmeout_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpmeout_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpmeout_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpmeout_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"result"}, // "commit", "rollback"
	)
)

// Upload metrics
var (
	UploadChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpmeout_upload_chunks_total",
			Help: "Total number of recording chunks received",
		},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpmeout_upload_bytes_total",
			Help: "Total decoded bytes of recording chunks written to disk",
		},
	)

	UploadMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_upload_merges_total",
			Help: "Total number of chunk merges by result",
		},
		[]string{"status"}, // "success", "no_chunks", "error"
	)

	UploadMergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpmeout_upload_merge_duration_seconds",
			Help:    "Time spent concatenating chunks into the original recording",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Processing metrics
var (
	ProcessingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_processing_jobs_total",
			Help: "Total number of background processing jobs by result",
		},
		[]string{"status"}, // "success", "failed"
	)

	ProcessingJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpmeout_processing_jobs_in_progress",
			Help: "Number of recordings currently being processed",
		},
	)

	ProcessingJobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpmeout_processing_jobs_queued",
			Help: "Number of recordings waiting for a free processing worker",
		},
	)

	ProcessingStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpmeout_processing_step_duration_seconds",
			Help:    "Duration of each post-upload processing step",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"step"},
	)

	ProcessingStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_processing_step_failures_total",
			Help: "Total number of failed processing steps",
		},
		[]string{"step"},
	)

	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_archive_uploads_total",
			Help: "Total number of artifacts mirrored to object storage",
		},
		[]string{"status"},
	)
)

// Auth and notification metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "status"}, // method: "password", "google", "facebook"
	)

	OTPIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_otp_issued_total",
			Help: "Total number of one-time passcodes issued",
		},
		[]string{"purpose"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpmeout_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"kind", "status"},
	)
)

// Inventory gauges, refreshed by the Collector
var (
	VideosTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helpmeout_videos",
			Help: "Number of stored videos by status",
		},
		[]string{"status"},
	)

	UsersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpmeout_users",
			Help: "Number of active (not deleted) users",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpmeout_active_sessions",
			Help: "Number of unexpired sessions",
		},
	)
)

// AppInfo exposes build information as labels on a constant gauge.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "helpmeout_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
