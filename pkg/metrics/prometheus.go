// Package metrics provides Prometheus metrics for the ghostrun settlement service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Run lifecycle
	runsStarted    prometheus.Counter
	runsAbandoned  prometheus.Counter
	battles        prometheus.Counter
	settlements    *prometheus.CounterVec
	fatals         *prometheus.CounterVec
	epDelta        prometheus.Histogram
	duplicateRuns  prometheus.Counter
	unfinishedRuns prometheus.Counter

	// Leaderboard / store
	leaderboardSize    prometheus.Gauge
	leaderboardUpdates prometheus.Counter
	storeLatency       *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueDequeues      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Worker
	workerLatency prometheus.Histogram
	workerErrors  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ghostrun",
		subsystem:        "settlement",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.runsStarted = m.counter("runs_started_total", "Runs started")
	m.runsAbandoned = m.counter("runs_abandoned_total", "Runs abandoned before settlement")
	m.unfinishedRuns = m.counter("runs_unfinished_penalized_total", "Run starts that replaced an unfinished run and applied the EP penalty")
	m.battles = m.counter("battles_finished_total", "Battles finished and persisted")
	m.settlements = m.counterVec("settlements_total", "Run settlements by outcome", "outcome")
	m.fatals = m.counterVec("fatal_violations_total", "Aborted operations caused by contract violations", "kind")
	m.epDelta = m.histogram("ep_delta", "Signed EP change applied by a settlement",
		[]float64{-50, -30, -10, 0, 1, 10, 30, 50, 70})
	m.duplicateRuns = m.counter("settlements_duplicate_total", "Settlements dropped as duplicates")

	m.leaderboardSize = m.gauge("leaderboard_entries", "Entries tracked on the leaderboard, surplus included")
	m.leaderboardUpdates = m.counter("leaderboard_updates_total", "Leaderboard updates committed")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency", "op")

	m.queueSize = m.gauge("queue_size", "Settlements waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Configured queue capacity")
	m.queueEnqueues = m.counter("queue_enqueue_total", "Settlements enqueued")
	m.queueDequeues = m.counter("queue_dequeue_total", "Settlements dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected enqueues", "reason")

	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time to apply one settlement", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Settlements the worker failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.memoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.goroutineCount = m.gauge("system_goroutine_count", "Live goroutines")
}

// RecordRunStarted counts a started run.
func RecordRunStarted() { globalManager.runsStarted.Inc() }

// RecordRunAbandoned counts an abandoned run.
func RecordRunAbandoned() { globalManager.runsAbandoned.Inc() }

// RecordUnfinishedPenalty counts a run start that penalized a stale run.
func RecordUnfinishedPenalty() { globalManager.unfinishedRuns.Inc() }

// RecordBattleFinished counts a persisted battle.
func RecordBattleFinished() { globalManager.battles.Inc() }

// RecordSettlement counts a settlement with the given outcome label.
func RecordSettlement(outcome string) { globalManager.settlements.WithLabelValues(outcome).Inc() }

// RecordFatal counts an aborted operation.
func RecordFatal(kind string) { globalManager.fatals.WithLabelValues(kind).Inc() }

// RecordEPDelta observes a signed EP change.
func RecordEPDelta(oldEP, newEP uint16) {
	globalManager.epDelta.Observe(float64(int(newEP) - int(oldEP)))
}

// RecordDuplicateSettlement counts a dropped duplicate.
func RecordDuplicateSettlement() { globalManager.duplicateRuns.Inc() }

// UpdateLeaderboardSize sets the number of tracked entries.
func UpdateLeaderboardSize(n int) { globalManager.leaderboardSize.Set(float64(n)) }

// RecordLeaderboardUpdate counts a committed leaderboard update.
func RecordLeaderboardUpdate() { globalManager.leaderboardUpdates.Inc() }

// RecordStoreLatency observes a store operation latency in milliseconds.
func RecordStoreLatency(op string, ms float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(ms)
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(n int) { globalManager.queueSize.Set(float64(n)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue() { globalManager.queueEnqueues.Inc() }

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() { globalManager.queueDequeues.Inc() }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordWorkerProcessingLatency observes settlement processing latency.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

// RecordWorkerError counts a failed settlement.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordErrorByComponent counts an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.memoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) { globalManager.goroutineCount.Set(float64(n)) }

// GetRegistry returns the registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
