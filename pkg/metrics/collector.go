// Package metrics exposes Prometheus collectors for the API, the notification engine and the bot.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests labeled by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification delivery attempts labeled by kind and result",
		},
		[]string{"kind", "result"},
	)
	notificationPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_pass_duration_seconds",
			Help:    "Duration of a full notification evaluation pass",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	notificationUsersChecked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_users_checked",
			Help: "Number of users evaluated by the last notification pass",
		},
	)
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of LLM provider calls labeled by provider and status",
		},
		[]string{"provider", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Duration of LLM provider calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"provider"},
	)
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per upstream: 0 closed, 1 open, 2 half-open",
		},
		[]string{"name"},
	)
	linkedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telegram_linked_users",
			Help: "Number of users with a linked Telegram chat and at least one notification enabled",
		},
	)
)

// RecordHTTPRequest increments request counters and records duration.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}

	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordNotification counts one delivery attempt for kind.
func RecordNotification(kind string, success bool) {
	result := "sent"
	if !success {
		result = "failed"
	}

	notificationsTotal.WithLabelValues(kind, result).Inc()
}

// RecordNotificationPass records the duration and size of an evaluation pass.
func RecordNotificationPass(checked int, duration time.Duration) {
	notificationUsersChecked.Set(float64(checked))
	notificationPassDuration.Observe(duration.Seconds())
}

// RecordAIRequest counts one LLM call and its latency.
func RecordAIRequest(provider, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}

	aiRequestsTotal.WithLabelValues(provider, status).Inc()
	aiRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCommand increments bot command counters.
func RecordCommand(command, status string) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// SetBreakerState publishes the state of the named circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// RecipientCounter reports how many users are currently reachable for notifications.
type RecipientCounter interface {
	CountNotifiable(ctx context.Context) (int, error)
}

// RecipientCollector periodically refreshes the linked users gauge.
type RecipientCollector struct {
	source   RecipientCounter
	interval time.Duration
}

// NewRecipientCollector builds a collector bound to source.
func NewRecipientCollector(source RecipientCounter, interval time.Duration) *RecipientCollector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RecipientCollector{source: source, interval: interval}
}

// Run polls source every interval until ctx is cancelled.
func (c *RecipientCollector) Run(ctx context.Context) {
	if c == nil || c.source == nil {
		return
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *RecipientCollector) collect(ctx context.Context) error {
	count, err := c.source.CountNotifiable(ctx)
	if err != nil {
		return err
	}

	linkedUsers.Set(float64(count))
	return nil
}
