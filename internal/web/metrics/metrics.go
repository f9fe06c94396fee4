// Package metrics exposes console activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the console
type Metrics struct {
	// Backend API
	BackendCallsTotal   *prometheus.CounterVec
	BackendCallDuration *prometheus.HistogramVec

	// Pollers
	PollsTotal  *prometheus.CounterVec
	ActiveViews prometheus.Gauge

	// Operator actions
	ResolutionsTotal *prometheus.CounterVec
	UploadsTotal     *prometheus.CounterVec
	ReprocessTotal   *prometheus.CounterVec
	JobCancelsTotal  *prometheus.CounterVec
	LoginsTotal      *prometheus.CounterVec

	// Console HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		BackendCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_backend_calls_total",
				Help: "Total number of ingestion API calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		BackendCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestdesk_backend_call_duration_seconds",
				Help:    "Ingestion API call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_polls_total",
				Help: "Total number of poll cycles by poller and outcome",
			},
			[]string{"poller", "outcome"},
		),
		ActiveViews: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingestdesk_active_views",
				Help: "Number of mounted table views",
			},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_resolutions_total",
				Help: "Total number of issue resolution submissions",
			},
			[]string{"issue_type", "outcome"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_uploads_total",
				Help: "Total number of CSV uploads",
			},
			[]string{"outcome"},
		),
		ReprocessTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_reprocess_jobs_total",
				Help: "Total number of jobs sent for reprocessing",
			},
			[]string{"outcome"},
		),
		JobCancelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_job_cancels_total",
				Help: "Total number of job cancellations",
			},
			[]string{"outcome"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"provider", "outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestdesk_http_requests_total",
				Help: "Total number of console HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestdesk_http_request_duration_seconds",
				Help:    "Console HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.BackendCallsTotal,
		m.BackendCallDuration,
		m.PollsTotal,
		m.ActiveViews,
		m.ResolutionsTotal,
		m.UploadsTotal,
		m.ReprocessTotal,
		m.JobCancelsTotal,
		m.LoginsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBackendCall implements backend.Observer.
func (m *Metrics) ObserveBackendCall(op, outcome string, d time.Duration) {
	m.BackendCallsTotal.WithLabelValues(op, outcome).Inc()
	m.BackendCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObservePoll implements poller.Observer.
func (m *Metrics) ObservePoll(name, outcome string) {
	m.PollsTotal.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) ObserveResolution(issueType, outcome string) {
	m.ResolutionsTotal.WithLabelValues(issueType, outcome).Inc()
}

func (m *Metrics) ObserveUpload(outcome string) {
	m.UploadsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReprocess(outcome string) {
	m.ReprocessTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCancel(outcome string) {
	m.JobCancelsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLogin(provider, outcome string) {
	m.LoginsTotal.WithLabelValues(provider, outcome).Inc()
}

// SetActiveViews records the number of mounted views.
func (m *Metrics) SetActiveViews(n int) {
	m.ActiveViews.Set(float64(n))
}
