package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metric instruments
type Metrics struct {
	IncidentsTotal          *prometheus.CounterVec
	IncidentDurationSeconds prometheus.Histogram
	ActiveIncidents         prometheus.Gauge
	StageFailuresTotal      *prometheus.CounterVec
	NotificationsTotal      *prometheus.CounterVec
	HTTPRequestsTotal       *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
}

// NewMetrics registers and returns all metrics
func NewMetrics() *Metrics {
	return &Metrics{
		IncidentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resolver_incidents_total",
			Help: "Total number of incidents by severity and terminal status",
		}, []string{"severity", "status"}),

		IncidentDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "resolver_incident_duration_seconds",
			Help:    "Time from detection to a terminal phase in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
		}),

		ActiveIncidents: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "resolver_active_incidents",
			Help: "Number of incidents currently in the pipeline",
		}),

		StageFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resolver_stage_failures_total",
			Help: "Total pipeline stage failures",
		}, []string{"stage"}),

		NotificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resolver_notifications_total",
			Help: "Total stakeholder notifications sent",
		}, []string{"status"}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resolver_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resolver_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		}, []string{"method", "path"}),
	}
}

// RecordIncidentStart increments the active incidents gauge
func (m *Metrics) RecordIncidentStart() {
	m.ActiveIncidents.Inc()
}

// RecordIncidentEnd records an incident reaching a terminal phase
func (m *Metrics) RecordIncidentEnd(severity, status string, duration float64) {
	m.ActiveIncidents.Dec()
	m.IncidentsTotal.WithLabelValues(severity, status).Inc()
	m.IncidentDurationSeconds.Observe(duration)
}

// RecordStageFailure records a pipeline stage failure
func (m *Metrics) RecordStageFailure(stage string) {
	m.StageFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordNotification records a notification delivery outcome
func (m *Metrics) RecordNotification(status string) {
	m.NotificationsTotal.WithLabelValues(status).Inc()
}
