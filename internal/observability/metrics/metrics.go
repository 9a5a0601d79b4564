// Package metrics holds the gateway's Prometheus collectors. Collectors are
// registered on the default registry; Handler exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch metrics track outbound sends per provider.
var (
	// DispatchTotal counts dispatch calls by provider and outcome
	// ("success" or an error kind).
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_dispatch_total",
			Help: "Total number of dispatch calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// DispatchDuration measures how long a dispatch call took end to end.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sms_dispatch_duration_seconds",
			Help:    "Dispatch call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// RecipientsDelivered counts recipients accepted by providers.
	RecipientsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_recipients_delivered_total",
			Help: "Total number of recipients accepted by a provider",
		},
		[]string{"provider"},
	)
)

// Webhook metrics track inbound provider callbacks.
var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_webhook_events_total",
			Help: "Total number of accepted webhook events by provider and status",
		},
		[]string{"provider", "status"},
	)

	WebhookRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_webhook_rejections_total",
			Help: "Total number of rejected webhook requests by provider and reason",
		},
		[]string{"provider", "reason"},
	)
)

// Job metrics track the deferred dispatch worker.
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_jobs_total",
			Help: "Total number of deferred job events by outcome",
		},
		[]string{"outcome"},
	)

	JobsScheduled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sms_jobs_scheduled",
			Help: "Number of jobs waiting in the delay queue at the last poll",
		},
	)
)

// BreakerState reports circuit state per provider: 0 closed, 1 half-open,
// 2 open.
var BreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "sms_provider_breaker_state",
		Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
	},
	[]string{"provider"},
)

// HTTP metrics track the gateway's own HTTP surface.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordDispatch records one dispatch call.
func RecordDispatch(provider, outcome string, delivered int, duration time.Duration) {
	DispatchTotal.WithLabelValues(provider, outcome).Inc()
	DispatchDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if delivered > 0 {
		RecipientsDelivered.WithLabelValues(provider).Add(float64(delivered))
	}
}

// RecordWebhookEvent records an accepted webhook. An empty status is
// reported as "unknown".
func RecordWebhookEvent(provider, status string) {
	if status == "" {
		status = "unknown"
	}
	WebhookEventsTotal.WithLabelValues(provider, status).Inc()
}

// RecordWebhookRejection records a rejected webhook request.
func RecordWebhookRejection(provider, reason string) {
	WebhookRejectionsTotal.WithLabelValues(provider, reason).Inc()
}

// RecordJob records a worker job outcome such as "sent", "retry" or "dlq".
func RecordJob(outcome string) {
	JobsTotal.WithLabelValues(outcome).Inc()
}

// SetJobsScheduled updates the delay queue depth gauge.
func SetJobsScheduled(n int64) {
	JobsScheduled.Set(float64(n))
}

// SetBreakerState updates the breaker gauge for provider.
func SetBreakerState(provider string, state int) {
	BreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
