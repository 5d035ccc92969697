package metrics

import "github.com/prometheus/client_golang/prometheus"

var HttpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "method"},
)

// WebhookEventsTotal counts normalized events by kind and ingest outcome.
var WebhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pyrus_webhook_events_total",
		Help: "Total number of Pyrus events ingested",
	},
	[]string{"kind", "outcome"},
)

var WebhookRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pyrus_webhook_rejected_total",
		Help: "Total number of webhook requests rejected before ingest",
	},
	[]string{"reason"},
)

// RemindersTotal counts worker loop outcomes per due row:
// sent, failed, expired, deferred, exhausted, skipped_disabled, dry_run.
var RemindersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reminders_total",
		Help: "Total number of reminder evaluations by outcome",
	},
	[]string{"outcome"},
)

var ReminderSendDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "reminder_send_duration_seconds",
		Help:    "Time taken to deliver a reminder to Telegram",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"channel"},
)

var PendingReminders = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "pending_reminders_due",
		Help: "Number of due rows seen by the last worker tick",
	},
)

var TickDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "worker_tick_duration_seconds",
		Help:    "Duration of one worker loop pass",
		Buckets: prometheus.DefBuckets,
	},
)

func InitAPIMetrics() {
	prometheus.MustRegister(HttpRequestsTotal)
	prometheus.MustRegister(HttpRequestDuration)
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(WebhookRejectedTotal)
}

func InitWorkerMetrics() {
	prometheus.MustRegister(RemindersTotal)
	prometheus.MustRegister(ReminderSendDuration)
	prometheus.MustRegister(PendingReminders)
	prometheus.MustRegister(TickDuration)
}
