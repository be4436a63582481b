package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for htmlmailer
type Metrics struct {
	// Send path
	EmailsSentTotal   *prometheus.CounterVec
	EmailsFailedTotal *prometheus.CounterVec

	// Content filter
	ContentRejectedTotal *prometheus.CounterVec

	// Template library
	TemplatesImportedTotal prometheus.Counter
	UploadsRejectedTotal   prometheus.Counter
	TemplatesStored        prometheus.Gauge
	TemplatesStoredBytes   prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Rate limiting
	SendLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlmailer_emails_sent_total",
				Help: "Total number of emails accepted by the provider",
			},
			[]string{"path"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlmailer_emails_failed_total",
				Help: "Total number of send attempts that failed",
			},
			[]string{"path", "category"},
		),
		ContentRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlmailer_content_rejected_total",
				Help: "Total number of HTML documents rejected by the content filter",
			},
			[]string{"checkpoint", "rule"},
		),
		TemplatesImportedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "htmlmailer_templates_imported_total",
				Help: "Total number of templates accepted into the library",
			},
		),
		UploadsRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "htmlmailer_uploads_rejected_total",
				Help: "Total number of template uploads rejected by validation",
			},
		),
		TemplatesStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "htmlmailer_templates_stored",
				Help: "Number of templates in the library",
			},
		),
		TemplatesStoredBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "htmlmailer_templates_stored_bytes",
				Help: "Total size of templates in the library",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlmailer_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "htmlmailer_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlmailer_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),
		SendLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "htmlmailer_send_limit_exceeded_total",
				Help: "Total number of sends refused by the local rate limiter",
			},
			[]string{"level"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "htmlmailer_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "htmlmailer_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "htmlmailer_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.ContentRejectedTotal,
		m.TemplatesImportedTotal,
		m.UploadsRejectedTotal,
		m.TemplatesStored,
		m.TemplatesStoredBytes,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.SendLimitExceededTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncEmailsSent increments the sent email counter. path is "proxy" or "direct".
func IncEmailsSent(path string) {
	if m := Global(); m != nil {
		m.EmailsSentTotal.WithLabelValues(path).Inc()
	}
}

// IncEmailsFailed increments the failed send counter
func IncEmailsFailed(path, category string) {
	if m := Global(); m != nil {
		m.EmailsFailedTotal.WithLabelValues(path, category).Inc()
	}
}

// IncContentRejected counts a content filter rejection at a checkpoint
// (upload, validate, proxy).
func IncContentRejected(checkpoint, rule string) {
	if m := Global(); m != nil {
		m.ContentRejectedTotal.WithLabelValues(checkpoint, rule).Inc()
	}
}

// IncTemplatesImported increments the imported template counter
func IncTemplatesImported() {
	if m := Global(); m != nil {
		m.TemplatesImportedTotal.Inc()
	}
}

// IncUploadsRejected increments the rejected upload counter
func IncUploadsRejected() {
	if m := Global(); m != nil {
		m.UploadsRejectedTotal.Inc()
	}
}

// IncSendLimitExceeded increments the rate limit counter
func IncSendLimitExceeded(level string) {
	if m := Global(); m != nil {
		m.SendLimitExceededTotal.WithLabelValues(level).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	if m := Global(); m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
