package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	BotEngineRequests *prometheus.CounterVec
	BotEngineLatency  *prometheus.HistogramVec
	NotifyRequests    *prometheus.CounterVec
	FeedEvents        *prometheus.CounterVec
	FeedSubscribers   prometheus.Gauge
	PollRuns          *prometheus.CounterVec
	EscalationUpdates *prometheus.CounterVec
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route and status class.",
			}, []string{"route", "status"}),
			HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution for HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			BotEngineRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_engine_requests_total",
				Help:      "Total bot-engine API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			BotEngineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bot_engine_request_duration_seconds",
				Help:      "Latency distribution for bot-engine API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			NotifyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_notify_requests_total",
				Help:      "Total booking notification deliveries by outcome.",
			}, []string{"status"}),
			FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_events_total",
				Help:      "Total live-feed events by outcome.",
			}, []string{"status"}),
			FeedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_subscribers",
				Help:      "Current number of live-feed subscribers.",
			}),
			PollRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_poll_runs_total",
				Help:      "Dashboard stat refresh runs by outcome.",
			}, []string{"status"}),
			EscalationUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalation_updates_total",
				Help:      "Escalation status updates by target status and mode.",
			}, []string{"status", "mode"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.HTTPRequests,
			metricsInstance.HTTPLatency,
			metricsInstance.BotEngineRequests,
			metricsInstance.BotEngineLatency,
			metricsInstance.NotifyRequests,
			metricsInstance.FeedEvents,
			metricsInstance.FeedSubscribers,
			metricsInstance.PollRuns,
			metricsInstance.EscalationUpdates,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
