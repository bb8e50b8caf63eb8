package rentaly

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects client-side telemetry for a session. A nil *Metrics is
// valid and records nothing.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	cfg := rentaly.Config{Token: token, Metrics: rentaly.NewMetrics(reg)}
type Metrics struct {
	// Connected is 1 while the realtime channel is live.
	Connected prometheus.Gauge

	// ConnectAttempts counts handshakes.
	// Labels: result (success|error)
	ConnectAttempts *prometheus.CounterVec

	// Reconnects counts scheduled reconnect attempts.
	Reconnects prometheus.Counter

	// EventsReceived counts inbound channel events.
	// Labels: event
	EventsReceived *prometheus.CounterVec

	// EventsEmitted counts outbound channel events.
	// Labels: event
	EventsEmitted *prometheus.CounterVec

	// Notifications counts notifications created.
	// Labels: kind
	Notifications *prometheus.CounterVec

	// HTTPRequestDuration measures REST latency in seconds.
	// Labels: method, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "rentaly",
			Subsystem: "realtime",
			Name:      "connected",
			Help:      "Whether the realtime channel is live",
		}),
		ConnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentaly",
			Subsystem: "realtime",
			Name:      "connect_attempts_total",
			Help:      "Realtime handshakes by result",
		}, []string{"result"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rentaly",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Scheduled reconnect attempts",
		}),
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentaly",
			Subsystem: "realtime",
			Name:      "events_received_total",
			Help:      "Inbound channel events by name",
		}, []string{"event"}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentaly",
			Subsystem: "realtime",
			Name:      "events_emitted_total",
			Help:      "Outbound channel events by name",
		}, []string{"event"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentaly",
			Name:      "notifications_total",
			Help:      "Notifications created by kind",
		}, []string{"kind"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rentaly",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "REST request latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "status_code"}),
	}
}

func (m *Metrics) setConnected(live bool) {
	if m == nil {
		return
	}
	if live {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

func (m *Metrics) connectAttempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) reconnectScheduled() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) eventReceived(name string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(name).Inc()
}

func (m *Metrics) eventEmitted(name string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(name).Inc()
}

func (m *Metrics) notificationCreated(kind NotificationKind) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) observeRequest(method string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
}
