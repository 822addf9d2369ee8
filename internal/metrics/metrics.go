package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipforge_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	MediaUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipforge_media_uploads_total",
			Help: "Total number of media uploads",
		},
	)

	MediaUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipforge_media_upload_size_bytes",
			Help:    "Size of uploaded media files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 12), // 1MB to 2GB
		},
	)

	// Export Job Metrics
	ExportsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_exports_created_total",
			Help: "Total number of export jobs created",
		},
		[]string{"driver"},
	)

	ExportsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_exports_completed_total",
			Help: "Total number of finished export jobs",
		},
		[]string{"driver", "status"},
	)

	ExportsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipforge_exports_in_progress",
			Help: "Number of exports currently rendering",
		},
	)

	ExportQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipforge_export_queue_depth",
			Help: "Number of export jobs waiting in queue",
		},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipforge_export_duration_seconds",
			Help:    "Export processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"driver", "format"},
	)

	// Rendering Metrics
	FramesRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_frames_rendered_total",
			Help: "Total number of output frames composited",
		},
		[]string{"driver"},
	)

	CompositeFrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipforge_composite_frame_duration_seconds",
			Help:    "Time to composite one output frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	DecodeFrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipforge_decode_frame_duration_seconds",
			Help:    "Time to resolve one source frame from a decoder",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	FrameCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_frame_cache_hits_total",
			Help: "Decoder frame cache hits and misses",
		},
		[]string{"result"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipforge_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipforge_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// Business Metrics
	TimelineDurationExported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipforge_timeline_duration_exported_seconds_total",
			Help: "Total timeline duration exported in seconds",
		},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordExportCreated records an export job creation
func RecordExportCreated(driver string) {
	ExportsCreatedTotal.WithLabelValues(driver).Inc()
}

// RecordExportCompleted records an export job outcome
func RecordExportCompleted(driver, status, format string, duration float64) {
	ExportsCompletedTotal.WithLabelValues(driver, status).Inc()
	ExportDuration.WithLabelValues(driver, format).Observe(duration)
}

// UpdateExportMetrics updates current export gauges
func UpdateExportMetrics(inProgress, queueDepth int) {
	ExportsInProgress.Set(float64(inProgress))
	ExportQueueDepth.Set(float64(queueDepth))
}

// RecordFrameRendered records one composited output frame
func RecordFrameRendered(driver string, compositeSeconds float64) {
	FramesRenderedTotal.WithLabelValues(driver).Inc()
	CompositeFrameDuration.Observe(compositeSeconds)
}

// RecordFrameCacheAccess records a decoder cache hit or miss
func RecordFrameCacheAccess(hit bool) {
	if hit {
		FrameCacheHitsTotal.WithLabelValues("hit").Inc()
	} else {
		FrameCacheHitsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
