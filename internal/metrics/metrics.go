// Package metrics exposes Prometheus collectors for the session and the
// realtime channel.  All methods are safe on a nil *Metrics so components
// can run uninstrumented.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the client's collectors.
type Metrics struct {
	LoginAttempts         *prometheus.CounterVec
	SessionTransitions    *prometheus.CounterVec
	ConnectionState       prometheus.Gauge
	Reconnects            prometheus.Counter
	Replays               prometheus.Counter
	ReplayedTopics        prometheus.Counter
	NotificationsReceived prometheus.Counter
	DecodeFailures        prometheus.Counter
	UnreadNotifications   prometheus.Gauge
}

// New creates the collectors and registers them on reg.  A nil reg leaves
// them unregistered, which tests use to read values without a registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "league_client_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "league_client_session_transitions_total",
			Help: "Session status transitions by target status.",
		}, []string{"status"}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "league_client_connection_state",
			Help: "Push channel state (0=disconnected 1=connecting 2=connected 3=reconnecting).",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "league_client_reconnects_total",
			Help: "Transitions into the reconnecting state.",
		}),
		Replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "league_client_subscription_replays_total",
			Help: "Subscription set replays after a connection came up.",
		}),
		ReplayedTopics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "league_client_replayed_topics_total",
			Help: "Topics re-sent during replays.",
		}),
		NotificationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "league_client_notifications_received_total",
			Help: "Inbound push messages decoded into notifications.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "league_client_decode_failures_total",
			Help: "Inbound push messages dropped because they could not be decoded.",
		}),
		UnreadNotifications: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "league_client_unread_notifications",
			Help: "Unread notifications currently held.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.LoginAttempts, m.SessionTransitions, m.ConnectionState, m.Reconnects,
			m.Replays, m.ReplayedTopics, m.NotificationsReceived, m.DecodeFailures,
			m.UnreadNotifications,
		)
	}
	return m
}

// LoginResult counts one login attempt.
func (m *Metrics) LoginResult(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// SessionStatus counts a transition into status.
func (m *Metrics) SessionStatus(status string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(status).Inc()
}

// SetConnectionState records the numeric channel state.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

// Reconnecting counts a transition into reconnecting.
func (m *Metrics) Reconnecting() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// Replayed counts one replay of n topics.
func (m *Metrics) Replayed(n int) {
	if m == nil {
		return
	}
	m.Replays.Inc()
	m.ReplayedTopics.Add(float64(n))
}

// Received counts one decoded notification.
func (m *Metrics) Received() {
	if m == nil {
		return
	}
	m.NotificationsReceived.Inc()
}

// DecodeFailed counts one dropped message.
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

// SetUnread records the unread counter.
func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.UnreadNotifications.Set(float64(n))
}

// Handler serves the collectors registered on g in the exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
