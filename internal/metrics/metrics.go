package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for msghub
type Metrics struct {
	// Dispatch
	MessagesSentTotal       *prometheus.CounterVec
	MessagesFailedTotal     *prometheus.CounterVec
	FallbackTotal           *prometheus.CounterVec
	ProviderDurationSeconds *prometheus.HistogramVec
	DispatchesTotal         *prometheus.CounterVec

	// Engagement
	TrackingEventsTotal *prometheus.CounterVec

	// Event publishing
	EventsPublishFailedTotal *prometheus.CounterVec

	// API
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Gauges refreshed by the collector
	CampaignsByStatus *prometheus.GaugeVec
	UptimeSeconds     prometheus.Gauge
	Goroutines        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_messages_sent_total",
				Help: "Total number of messages accepted by a provider",
			},
			[]string{"channel", "provider"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_messages_failed_total",
				Help: "Total number of messages that could not be sent",
			},
			[]string{"channel", "provider"},
		),
		FallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_fallback_attempts_total",
				Help: "Total number of SMS fallback attempts through Twilio",
			},
			[]string{"outcome"},
		),
		ProviderDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msghub_provider_request_duration_seconds",
				Help:    "Provider send latency in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"channel", "provider"},
		),
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_dispatches_total",
				Help: "Total number of dispatch calls by path and outcome",
			},
			[]string{"path", "outcome"},
		),
		TrackingEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_tracking_events_total",
				Help: "Total number of recorded engagement and receipt events",
			},
			[]string{"event"},
		),
		EventsPublishFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_events_publish_failed_total",
				Help: "Total number of delivery events that could not be published",
			},
			[]string{"driver"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msghub_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),
		CampaignsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "msghub_campaigns",
				Help: "Number of campaigns per status",
			},
			[]string{"status"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "msghub_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "msghub_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.FallbackTotal,
		m.ProviderDurationSeconds,
		m.DispatchesTotal,
		m.TrackingEventsTotal,
		m.EventsPublishFailedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.CampaignsByStatus,
		m.UptimeSeconds,
		m.Goroutines,
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

// Global returns the global metrics instance, or nil when metrics are disabled
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// RecordSend counts one provider outcome and its latency
func RecordSend(channel, provider string, ok bool, seconds float64) {
	m := Global()
	if m == nil {
		return
	}
	if ok {
		m.MessagesSentTotal.WithLabelValues(channel, provider).Inc()
	} else {
		m.MessagesFailedTotal.WithLabelValues(channel, provider).Inc()
	}
	m.ProviderDurationSeconds.WithLabelValues(channel, provider).Observe(seconds)
}

// IncFallback counts a fallback attempt
func IncFallback(ok bool) {
	if m := Global(); m != nil {
		outcome := "failure"
		if ok {
			outcome = "success"
		}
		m.FallbackTotal.WithLabelValues(outcome).Inc()
	}
}

// IncDispatch counts a dispatch call
func IncDispatch(path, outcome string) {
	if m := Global(); m != nil {
		m.DispatchesTotal.WithLabelValues(path, outcome).Inc()
	}
}

// IncTrackingEvent counts an open, click or receipt
func IncTrackingEvent(event string) {
	if m := Global(); m != nil {
		m.TrackingEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncEventsPublishFailed counts an event that could not be published
func IncEventsPublishFailed(driver string) {
	if m := Global(); m != nil {
		m.EventsPublishFailedTotal.WithLabelValues(driver).Inc()
	}
}
