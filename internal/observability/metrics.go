package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edilink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edilink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edilink",
			Subsystem: "session",
			Name:      "state",
			Help:      "Current session worker state (0 disconnected .. 5 closed).",
		},
		[]string{"node"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edilink",
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Envelopes received and dispatched.",
		},
		[]string{"node", "message_id"},
	)
	responsesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edilink",
			Subsystem: "session",
			Name:      "responses_sent_total",
			Help:      "Response envelopes sent to the peer.",
		},
		[]string{"node", "message_id"},
	)
	registrationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edilink",
			Subsystem: "session",
			Name:      "registrations_sent_total",
			Help:      "register_for_message envelopes sent.",
		},
		[]string{"node"},
	)
	framingViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edilink",
			Subsystem: "session",
			Name:      "framing_violations_total",
			Help:      "Inbound messages dropped for malformed framing.",
		},
		[]string{"node"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edilink",
			Subsystem: "session",
			Name:      "decode_errors_total",
			Help:      "Payloads that failed to decode.",
		},
		[]string{"node", "message_id"},
	)
	connectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edilink",
			Subsystem: "session",
			Name:      "connect_failures_total",
			Help:      "Worker connect attempts that failed.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			sessionState, messagesReceived, responsesSent, registrationsSent,
			framingViolations, decodeErrors, connectFailures,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func SetSessionState(node string, state int) {
	RegisterMetrics()
	sessionState.WithLabelValues(node).Set(float64(state))
}

func RecordMessageReceived(node, messageID string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(node, messageID).Inc()
}

func RecordResponseSent(node, messageID string) {
	RegisterMetrics()
	responsesSent.WithLabelValues(node, messageID).Inc()
}

func RecordRegistration(node string) {
	RegisterMetrics()
	registrationsSent.WithLabelValues(node).Inc()
}

func RecordFramingViolation(node string) {
	RegisterMetrics()
	framingViolations.WithLabelValues(node).Inc()
}

func RecordDecodeError(node, messageID string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(node, messageID).Inc()
}

func RecordConnectFailure(node string) {
	RegisterMetrics()
	connectFailures.WithLabelValues(node).Inc()
}
