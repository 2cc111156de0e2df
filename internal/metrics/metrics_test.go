package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LoginResult("ok")
		m.SessionStatus("authenticated")
		m.SetConnectionState(2)
		m.Reconnecting()
		m.Replayed(3)
		m.Received()
		m.DecodeFailed()
		m.SetUnread(1)
	})
}

func TestCounters(t *testing.T) {
	m := New(nil)

	m.LoginResult("ok")
	m.LoginResult("ok")
	m.LoginResult("credential_invalid")
	m.Replayed(2)
	m.Replayed(3)
	m.SetConnectionState(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("credential_invalid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Replays))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ReplayedTopics))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectionState))
}

func TestRegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Received()
	m.LoginResult("ok")
	m.SessionStatus("authenticated")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["league_client_notifications_received_total"])
	assert.True(t, names["league_client_connection_state"])

	assert.Panics(t, func() { New(reg) }, "double registration must fail loudly")
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).SetUnread(4)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "league_client_unread_notifications 4")
}
