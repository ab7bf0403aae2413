// Package metrics exposes Prometheus collectors for the melodeon server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_http_requests_total",
		Help: "Total number of HTTP requests handled, by method, path and status.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "melodeon_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	contentDownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "melodeon_content_download_bytes_total",
		Help: "Total bytes of source content served to clients.",
	})

	contentDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_content_downloads_total",
		Help: "Total number of source content downloads, by result.",
	}, []string{"result"})

	contentUploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "melodeon_content_upload_bytes_total",
		Help: "Total bytes of raw file content received over ingest sessions.",
	})

	contentUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_content_uploads_total",
		Help: "Total number of file uploads received over ingest sessions, by result.",
	}, []string{"result"})

	backendOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "melodeon_backend_operation_duration_seconds",
		Help:    "Storage backend operation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	backendOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_backend_operations_total",
		Help: "Total number of storage backend operations, by backend, operation and result.",
	}, []string{"backend", "operation", "result"})

	connCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_conn_cache_lookups_total",
		Help: "Backend connection cache lookups, by result.",
	}, []string{"result"})

	descriptorCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_descriptor_cache_lookups_total",
		Help: "Delivery descriptor cache lookups, by result.",
	}, []string{"result"})

	presignFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "melodeon_presign_failures_total",
		Help: "Total number of failed presign attempts that fell back to proxied delivery.",
	})

	ingestSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "melodeon_ingest_sessions_total",
		Help: "Total number of ingest sessions opened.",
	})

	ingestFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_ingest_files_total",
		Help: "Total number of files processed by ingest sessions, by result.",
	}, []string{"result"})

	dbQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "melodeon_db_query_duration_seconds",
		Help:    "Database query latency in seconds, by query name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	dbConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "melodeon_db_connections_open",
		Help: "Number of currently open database connections.",
	})

	authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "melodeon_auth_attempts_total",
		Help: "Total number of authentication attempts, by result.",
	}, []string{"result"})
)

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// RecordHTTPRequest records one handled HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordContentDownload records a completed content download response.
func RecordContentDownload(bytes int64, success bool) {
	if bytes > 0 {
		contentDownloadBytes.Add(float64(bytes))
	}
	contentDownloadsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordContentUpload records a raw file payload received over an ingest session.
func RecordContentUpload(bytes int64, success bool) {
	if bytes > 0 {
		contentUploadBytes.Add(float64(bytes))
	}
	contentUploadsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordBackendOperation records one storage backend operation.
func RecordBackendOperation(backend, operation string, duration time.Duration, success bool) {
	backendOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	backendOperationsTotal.WithLabelValues(backend, operation, resultLabel(success)).Inc()
}

// RecordConnCacheLookup records a backend connection cache lookup.
func RecordConnCacheLookup(hit bool) {
	connCacheLookupsTotal.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordDescriptorCacheLookup records a delivery descriptor cache lookup.
func RecordDescriptorCacheLookup(hit bool) {
	descriptorCacheLookupsTotal.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordPresignFailure records a presign attempt that failed and fell back.
func RecordPresignFailure() {
	presignFailuresTotal.Inc()
}

// RecordIngestSession records a newly opened ingest session.
func RecordIngestSession() {
	ingestSessionsTotal.Inc()
}

// RecordIngestFile records one file run through an ingest session.
func RecordIngestFile(success bool) {
	ingestFilesTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordDBQuery records one database query.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the open database connection gauge.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	authAttemptsTotal.WithLabelValues(resultLabel(success)).Inc()
}
