package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	reportRendersTotal    *prometheus.CounterVec
	reportRenderSeconds   *prometheus.HistogramVec
	reportCacheTotal      *prometheus.CounterVec
	processingRunsTotal   *prometheus.CounterVec
	processingInFlight    *prometheus.GaugeVec
	processingEventsTotal *prometheus.CounterVec
	websocketClients      prometheus.Gauge
	uploadsRejectedTotal  *prometheus.CounterVec
	backendRequestSeconds *prometheus.HistogramVec
	backendFailuresTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rendus_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		reportRendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_report_renders_total",
			Help: "Number of reports rendered by output format.",
		}, []string{"format"})

		reportRenderSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rendus_report_render_seconds",
			Help:    "Time spent building a report by output format.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"})

		reportCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_report_snapshot_cache_total",
			Help: "Course snapshot cache lookups by result.",
		}, []string{"result"})

		processingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_processing_runs_total",
			Help: "Completed coordinator runs by kind and outcome.",
		}, []string{"kind", "outcome"})

		processingInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rendus_processing_in_flight",
			Help: "Coordinator runs currently in flight by kind.",
		}, []string{"kind"})

		processingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_processing_events_total",
			Help: "Processing events published by type.",
		}, []string{"type"})

		websocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rendus_websocket_clients_active",
			Help: "Number of connected websocket subscribers.",
		})

		uploadsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_uploads_rejected_total",
			Help: "Rejected uploads by kind and reason.",
		}, []string{"kind", "reason"})

		backendRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rendus_backend_request_duration_seconds",
			Help:    "Duration of course backend requests by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"})

		backendFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendus_backend_request_failures_total",
			Help: "Course backend requests that failed after retries, by operation.",
		}, []string{"operation"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			reportRendersTotal,
			reportRenderSeconds,
			reportCacheTotal,
			processingRunsTotal,
			processingInFlight,
			processingEventsTotal,
			websocketClients,
			uploadsRejectedTotal,
			backendRequestSeconds,
			backendFailuresTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ReportRenders counts rendered reports.
func ReportRenders() *prometheus.CounterVec {
	RegisterMetrics()
	return reportRendersTotal
}

// ReportRenderDuration observes report build time.
func ReportRenderDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return reportRenderSeconds
}

// ReportCache counts snapshot cache hits and misses.
func ReportCache() *prometheus.CounterVec {
	RegisterMetrics()
	return reportCacheTotal
}

// ProcessingRuns counts finished coordinator runs.
func ProcessingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return processingRunsTotal
}

// ProcessingInFlight tracks running coordinator workflows.
func ProcessingInFlight() *prometheus.GaugeVec {
	RegisterMetrics()
	return processingInFlight
}

// ProcessingEvents counts published processing events.
func ProcessingEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return processingEventsTotal
}

// WebsocketClients tracks connected event subscribers.
func WebsocketClients() prometheus.Gauge {
	RegisterMetrics()
	return websocketClients
}

// UploadsRejected counts uploads refused before reaching the backend.
func UploadsRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsRejectedTotal
}

// BackendRequestDuration observes course backend call latency.
func BackendRequestDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return backendRequestSeconds
}

// BackendRequestFailures counts course backend calls that failed after retries.
func BackendRequestFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return backendFailuresTotal
}
