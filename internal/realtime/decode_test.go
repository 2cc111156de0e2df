package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/model"
)

var arrival = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func TestDecodeFull(t *testing.T) {
	body := []byte(`{"id":"ev-1","type":"score.updated","topic":"tournament-42",
		"payload":{"match":"m-7","home":2,"away":1},"timestamp":"2026-03-14T18:00:00Z"}`)

	ev, err := Decode(body, 0, arrival)
	require.NoError(t, err)

	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, model.EventScoreUpdated, ev.Type)
	assert.Equal(t, "tournament-42", ev.Topic)
	assert.Equal(t, "m-7", ev.Payload["match"])
	assert.Equal(t, 2.0, ev.Payload["home"])
	assert.Equal(t, time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), ev.Timestamp)
	assert.False(t, ev.Read)
}

func TestDecodeSynthesizesID(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"match.started","timestamp":1773511200000}`), 7, arrival)
	require.NoError(t, err)

	assert.Equal(t, "1773511200000-7", ev.ID)
	assert.Equal(t, time.UnixMilli(1773511200000).UTC(), ev.Timestamp)
}

func TestDecodeMissingTimestampUsesArrival(t *testing.T) {
	a, err := Decode([]byte(`{"type":"announcement"}`), 1, arrival)
	require.NoError(t, err)
	b, err := Decode([]byte(`{"type":"announcement"}`), 2, arrival)
	require.NoError(t, err)

	assert.Equal(t, arrival, a.Timestamp)
	assert.NotEqual(t, a.ID, b.ID, "index keeps synthesized IDs distinct")
	assert.NotNil(t, a.Payload)
}

func TestDecodeKeepsUnknownType(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"referee.assigned","data":{"ref":"r-1"}}`), 0, arrival)
	require.NoError(t, err)

	assert.Equal(t, model.EventType("referee.assigned"), ev.Type)
	assert.False(t, ev.Type.Known())
	assert.Equal(t, "r-1", ev.Payload["ref"])
}

func TestDecodeMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `{"type":`,
		"array":          `[1,2,3]`,
		"null":           `null`,
		"missing type":   `{"id":"x"}`,
		"bad timestamp":  `{"type":"announcement","timestamp":"yesterday"}`,
		"bool timestamp": `{"type":"announcement","timestamp":true}`,
		"payload string": `{"type":"announcement","payload":"hi"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body), 0, arrival)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrMalformedMessage)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	in := model.NotificationEvent{
		ID:        "ev-9",
		Type:      model.EventBracketUpdated,
		Topic:     "tournament-42",
		Payload:   map[string]any{"round": "semi"},
		Timestamp: time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC),
	}
	raw, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(raw, 0, arrival)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Encode(model.NotificationEvent{})
	assert.ErrorIs(t, err, apperr.ErrMalformedMessage)
}
