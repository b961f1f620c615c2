// Package metrics provides Prometheus metrics for the Stark results service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for the view dimension of aggregation metrics.
const (
	ViewSponsor = "sponsor"
	ViewJudge   = "judge"
)

var defaultLatencyBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500} //nolint:gochecknoglobals // bucket layout shared by every latency histogram

// Manager manages all Prometheus metrics for the Stark service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Results Metrics
	aggregationLatency  *prometheus.HistogramVec
	aggregationFailures *prometheus.CounterVec
	participantsRanked  prometheus.Histogram
	exportsTotal        prometheus.Counter
	provisionalResults  prometheus.Counter
	policyDenials       *prometheus.CounterVec

	// Evaluation Metrics
	evaluationsSaved    prometheus.Counter
	evaluationSaveError prometheus.Counter
	saveRateLimited     prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Store Metrics
	storeQueryLatency *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec

	// Audit Pipeline Metrics
	auditQueueSize     prometheus.Gauge
	auditQueueCapacity prometheus.Gauge
	auditEnqueued      prometheus.Counter
	auditDropped       prometheus.Counter
	auditWritten       prometheus.Counter
	auditWriteErrors   prometheus.Counter
	auditWorkers       prometheus.Gauge

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "stark",
		subsystem:        "results",
		histogramBuckets: defaultLatencyBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.aggregationLatency = m.histogramVec("aggregation_latency_milliseconds",
		"Leaderboard aggregation latency in milliseconds", "view")
	m.aggregationFailures = m.counterVec("aggregation_failures_total",
		"Leaderboard aggregations that failed on a store read", "view")
	m.participantsRanked = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "participants_ranked",
		Help:        "Number of participants per aggregated leaderboard",
		Buckets:     []float64{0, 1, 3, 5, 10, 25, 50, 100, 250},
		ConstLabels: m.constLabels,
	})
	m.exportsTotal = m.counter("exports_total", "Results exports generated")
	m.provisionalResults = m.counter("provisional_results_total",
		"Aggregated results flagged provisional because too few judges voted")
	m.policyDenials = m.counterVec("policy_denials_total",
		"Requests refused by the access policy", "capability")

	m.evaluationsSaved = m.counter("evaluations_saved_total", "Evaluations persisted by judges")
	m.evaluationSaveError = m.counter("evaluation_save_errors_total", "Evaluation upserts that failed")
	m.saveRateLimited = m.counter("evaluation_saves_rate_limited_total",
		"Evaluation saves rejected by the per-judge rate limiter")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds",
		"Store operation latency in milliseconds", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operations that returned an error", "op")

	m.auditQueueSize = m.gauge("audit_queue_size", "Audit entries waiting to be written")
	m.auditQueueCapacity = m.gauge("audit_queue_capacity", "Maximum audit queue length")
	m.auditEnqueued = m.counter("audit_enqueued_total", "Audit entries accepted by the queue")
	m.auditDropped = m.counter("audit_dropped_total", "Audit entries dropped because the queue was full or closed")
	m.auditWritten = m.counter("audit_written_total", "Audit entries persisted")
	m.auditWriteErrors = m.counter("audit_write_errors_total", "Audit entries that failed to persist")
	m.auditWorkers = m.gauge("audit_workers", "Running audit writer workers")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
}

// Results Metrics Functions.

// RecordAggregation observes one leaderboard aggregation.
func RecordAggregation(view string, latencyMs float64, participants int) {
	globalManager.aggregationLatency.WithLabelValues(view).Observe(latencyMs)
	globalManager.participantsRanked.Observe(float64(participants))
}

// RecordAggregationFailure counts an aggregation aborted by a store read failure.
func RecordAggregationFailure(view string) {
	globalManager.aggregationFailures.WithLabelValues(view).Inc()
}

// RecordExport counts one generated results export.
func RecordExport() {
	globalManager.exportsTotal.Inc()
}

// RecordProvisionalResults adds the number of provisional results in one aggregation.
func RecordProvisionalResults(count int) {
	globalManager.provisionalResults.Add(float64(count))
}

// RecordPolicyDenial counts a request refused for the given capability.
func RecordPolicyDenial(capability string) {
	globalManager.policyDenials.WithLabelValues(capability).Inc()
}

// Evaluation Metrics Functions.

// RecordEvaluationSaved counts a persisted evaluation.
func RecordEvaluationSaved() {
	globalManager.evaluationsSaved.Inc()
}

// RecordEvaluationSaveError counts a failed evaluation upsert.
func RecordEvaluationSaveError() {
	globalManager.evaluationSaveError.Inc()
}

// RecordSaveRateLimited counts a save refused by the limiter.
func RecordSaveRateLimited() {
	globalManager.saveRateLimited.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Store Metrics Functions.

// RecordStoreQuery records the latency of a store operation.
func RecordStoreQuery(op string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// Audit Metrics Functions.

// UpdateAuditQueueSize sets the current audit backlog.
func UpdateAuditQueueSize(size int) {
	globalManager.auditQueueSize.Set(float64(size))
}

// UpdateAuditQueueCapacity sets the audit queue capacity.
func UpdateAuditQueueCapacity(capacity int) {
	globalManager.auditQueueCapacity.Set(float64(capacity))
}

// RecordAuditEnqueued counts an accepted audit entry.
func RecordAuditEnqueued() {
	globalManager.auditEnqueued.Inc()
}

// RecordAuditDropped counts an audit entry that never reached the queue.
func RecordAuditDropped() {
	globalManager.auditDropped.Inc()
}

// RecordAuditWritten counts a persisted audit entry.
func RecordAuditWritten() {
	globalManager.auditWritten.Inc()
}

// RecordAuditWriteError counts an audit entry the store refused.
func RecordAuditWriteError() {
	globalManager.auditWriteErrors.Inc()
}

// UpdateAuditWorkers sets the number of running audit workers.
func UpdateAuditWorkers(count int) {
	globalManager.auditWorkers.Set(float64(count))
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
