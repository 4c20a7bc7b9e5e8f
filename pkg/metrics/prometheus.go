// Package metrics provides Prometheus metrics for the rollcall attendance service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Attendance outcomes
	marks          *prometheus.CounterVec
	markLatency    prometheus.Histogram
	storeWrites    prometheus.Counter
	storeErrors    prometheus.Counter
	cacheSize      prometheus.Gauge
	rebuildRecords *prometheus.CounterVec
	rebuildLatency prometheus.Histogram

	// Detection loop
	cycles            prometheus.Counter
	cycleLatency      prometheus.Histogram
	acquisitionErrors prometheus.Counter
	recognitionErrors prometheus.Counter
	faces             *prometheus.CounterVec
	slotOccupied      prometheus.Gauge
	detectorRunning   prometheus.Gauge
	galleryEmbeddings prometheus.Gauge
	rosterSize        prometheus.Gauge

	// Frame fan-out
	viewers       prometheus.Gauge
	framesSent    prometheus.Counter
	framesDropped prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rollcall",
		subsystem:        "attendance",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(n, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(n, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(n, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(n, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() {
	m.marks = m.counterVec("marks_total", "Attendance mark requests by outcome", "outcome")
	m.markLatency = m.histogram("mark_latency_milliseconds", "Mark attendance latency in milliseconds")
	m.storeWrites = m.counter("store_writes_total", "Attendance records durably appended")
	m.storeErrors = m.counter("store_errors_total", "Attendance store write failures")
	m.cacheSize = m.gauge("cache_entries", "People with an entry in the dedup cache")
	m.rebuildRecords = m.counterVec("rebuild_records_total", "Records seen while rebuilding the cache", "result")
	m.rebuildLatency = m.histogram("rebuild_duration_milliseconds", "Cache rebuild duration in milliseconds")

	m.cycles = m.counter("detector_cycles_total", "Detection loop iterations")
	m.cycleLatency = m.histogram("detector_cycle_latency_milliseconds", "Detection cycle latency in milliseconds")
	m.acquisitionErrors = m.counter("detector_acquisition_errors_total", "Frames that could not be acquired")
	m.recognitionErrors = m.counter("detector_recognition_errors_total", "Recognizer failures")
	m.faces = m.counterVec("detector_faces_total", "Detected faces by decision", "decision")
	m.slotOccupied = m.gauge("detector_slot_occupied", "1 when the current detection slot holds a person")
	m.detectorRunning = m.gauge("detector_running", "1 while the detection loop is running")
	m.galleryEmbeddings = m.gauge("gallery_embeddings", "Embeddings indexed in the face gallery")
	m.rosterSize = m.gauge("roster_people", "People registered in the roster")

	m.viewers = m.gauge("video_viewers", "Connected video feed viewers")
	m.framesSent = m.counter("video_frames_sent_total", "Frames written to viewers")
	m.framesDropped = m.counter("video_frames_dropped_total", "Frames overwritten before a viewer read them")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
}

// RecordMark counts a mark request by outcome (success, reverified, fail).
func RecordMark(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.marks.WithLabelValues(outcome).Inc()
}

// RecordMarkLatency records mark latency in milliseconds.
func RecordMarkLatency(latencyMs float64) {
	globalManager.markLatency.Observe(latencyMs)
}

// RecordStoreWrite increments the durable append counter.
func RecordStoreWrite() {
	globalManager.storeWrites.Inc()
}

// RecordStoreError increments the store failure counter.
func RecordStoreError() {
	globalManager.storeErrors.Inc()
}

// UpdateCacheSize sets the number of cached people.
func UpdateCacheSize(n int) {
	globalManager.cacheSize.Set(float64(n))
}

// RecordRebuild records the outcome of a cache rebuild.
func RecordRebuild(loaded, skipped int, durationMs float64) {
	globalManager.rebuildRecords.WithLabelValues("loaded").Add(float64(loaded))
	globalManager.rebuildRecords.WithLabelValues("skipped").Add(float64(skipped))
	globalManager.rebuildLatency.Observe(durationMs)
}

// RecordCycle records one detection cycle.
func RecordCycle(latencyMs float64) {
	globalManager.cycles.Inc()
	globalManager.cycleLatency.Observe(latencyMs)
}

// RecordAcquisitionError increments the frame acquisition failure counter.
func RecordAcquisitionError() {
	globalManager.acquisitionErrors.Inc()
}

// RecordRecognitionError increments the recognizer failure counter.
func RecordRecognitionError() {
	globalManager.recognitionErrors.Inc()
}

// RecordFace counts a detected face as "accepted" or "rejected".
func RecordFace(decision string) {
	globalManager.faces.WithLabelValues(decision).Inc()
}

// UpdateSlotOccupied reflects whether the detection slot holds a person.
func UpdateSlotOccupied(occupied bool) {
	globalManager.slotOccupied.Set(boolToFloat(occupied))
}

// UpdateDetectorRunning reflects whether the detection loop is running.
func UpdateDetectorRunning(running bool) {
	globalManager.detectorRunning.Set(boolToFloat(running))
}

// UpdateGallerySize sets the number of indexed embeddings.
func UpdateGallerySize(n int) {
	globalManager.galleryEmbeddings.Set(float64(n))
}

// UpdateRosterSize sets the number of registered people.
func UpdateRosterSize(n int) {
	globalManager.rosterSize.Set(float64(n))
}

// UpdateViewers sets the number of connected video viewers.
func UpdateViewers(n int) {
	globalManager.viewers.Set(float64(n))
}

// RecordFrameSent increments the frames written counter.
func RecordFrameSent() {
	globalManager.framesSent.Inc()
}

// RecordFrameDropped increments the overwritten frames counter.
func RecordFrameDropped() {
	globalManager.framesDropped.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
