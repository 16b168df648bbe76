package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_messages_received_total",
			Help: "Total number of raw messages received from streaming sources",
		},
		[]string{"source", "kind"}, // trade, ignored, malformed
	)

	TradesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_trades_evaluated_total",
			Help: "Total number of normalized trades evaluated against thresholds",
		},
		[]string{"source", "outcome"}, // fired, below
	)

	SnapshotsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_snapshots_evaluated_total",
			Help: "Total number of activity snapshots evaluated",
		},
		[]string{"source", "outcome"}, // fired, below, suppressed, missing
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_poll_cycles_total",
			Help: "Total number of polling cycles",
		},
		[]string{"source", "status"}, // success, http_error, error
	)

	// Connection metrics
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_reconnects_total",
			Help: "Total number of streaming reconnect attempts",
		},
		[]string{"source", "reason"}, // closed, error
	)

	ListenerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whalewatch_listener_state",
			Help: "Current listener state (0 connecting, 1 subscribing, 2 receiving, 3 backing off)",
		},
		[]string{"listener"},
	)

	// Alert metrics
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_alerts_sent_total",
			Help: "Total number of alerts handed to the notification channel",
		},
		[]string{"source", "status", "channel"}, // success/error
	)

	AlertsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_alerts_dropped_total",
			Help: "Total number of alerts dropped because a dispatch queue was full",
		},
		[]string{"queue"},
	)

	AlertDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whalewatch_alert_delivery_duration_seconds",
			Help:    "Duration of notification delivery calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_api_requests_total",
			Help: "Total number of outbound API requests",
		},
		[]string{"api", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whalewatch_api_request_duration_seconds",
			Help:    "Duration of outbound API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "endpoint"},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalewatch_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"},
	)
)

// RecordAlert records the outcome of one delivery attempt
func RecordAlert(source, channel string, duration time.Duration, err error) {
	AlertsSent.WithLabelValues(source, status(err), channel).Inc()
	AlertDeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(api, endpoint string, duration time.Duration, err error) {
	APIRequests.WithLabelValues(api, endpoint, status(err)).Inc()
	APIRequestDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	s := "healthy"
	if !healthy {
		s = "unhealthy"
	}
	HealthChecks.WithLabelValues(s).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
