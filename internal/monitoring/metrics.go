package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "path", "status_class"},
	)

	// HTTP 并发请求数
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_http_inflight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
		[]string{"path"},
	)

	// 错误日志指标
	ErrorsLoggedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_errors_logged_total",
			Help: "Errors recorded by the error logger",
		},
		[]string{"code", "category", "severity"},
	)

	LogBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_log_buffer_entries",
			Help: "Entries currently held in the in-memory log buffer",
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_deliveries_total",
			Help: "Remote delivery attempts of log entries",
		},
		[]string{"source", "result"}, // source: direct/retry, result: success/failure
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faultline_delivery_duration_seconds",
			Help:    "Remote delivery latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_retry_queue_depth",
			Help: "Entries waiting in the delivery retry queue",
		},
	)

	RetryQueueEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_retry_queue_evictions_total",
			Help: "Entries dropped from a full retry queue",
		},
	)

	// 全局错误处理指标
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_reports_total",
			Help: "Reports captured by the global error handler",
		},
		[]string{"source", "severity"}, // source: panic/unhandled/manual
	)

	ReportQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_report_queue_depth",
			Help: "Reports waiting for the next batch flush",
		},
	)

	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_report_flushes_total",
			Help: "Batch flushes of queued reports",
		},
		[]string{"kind", "result"}, // kind: periodic/immediate/manual
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_notifications_total",
			Help: "User notifications emitted or suppressed",
		},
		[]string{"type", "result"}, // result: sent/suppressed
	)

	// 采集端指标
	IngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_ingested_errors_total",
			Help: "Errors accepted by the collector",
		},
		[]string{"endpoint", "category"},
	)

	ArchiveOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_archive_operations_total",
			Help: "Error archive operations",
		},
		[]string{"operation", "result"},
	)

	ArchiveUnresolved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_archive_unresolved",
			Help: "Unresolved fingerprints in the error archive",
		},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_stream_clients",
			Help: "Connected websocket stream clients",
		},
	)

	// 存储指标
	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_storage_operations_total",
			Help: "Key-value storage operations",
		},
		[]string{"backend", "operation", "result"},
	)

	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_storage_operation_duration_seconds",
			Help:    "Key-value storage latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)

	// UI 状态持久化与健康检查
	StatePersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_state_persist_total",
			Help: "UI state persistence attempts",
		},
		[]string{"key", "result"},
	)

	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faultline_health_status",
			Help: "Probe result per service (1 healthy, 0.5 degraded, 0 down)",
		},
		[]string{"service"},
	)
)

// StatusClass buckets an HTTP status into 2xx/3xx/4xx/5xx.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ResultLabel maps an error to the success/failure label value.
func ResultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
