package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/model"
)

// wireEvent is the JSON shape of a push message.  Timestamp may be an
// RFC 3339 string or Unix milliseconds.
type wireEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Payload   map[string]any  `json:"payload"`
	Data      map[string]any  `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode turns one inbound message into a NotificationEvent.  index is the
// message's position in the channel's inbound sequence and now is the
// arrival time; both feed the synthesized ID when the message has none.
func Decode(body []byte, index uint64, now time.Time) (model.NotificationEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return model.NotificationEvent{}, apperr.New(apperr.KindMalformedMessage, "decode", err)
	}
	if w.Type == "" {
		return model.NotificationEvent{}, apperr.New(apperr.KindMalformedMessage, "decode", errors.New("missing type"))
	}

	ts, err := parseTimestamp(w.Timestamp, now)
	if err != nil {
		return model.NotificationEvent{}, apperr.New(apperr.KindMalformedMessage, "decode", err)
	}

	payload := w.Payload
	if payload == nil {
		payload = w.Data
	}
	if payload == nil {
		payload = map[string]any{}
	}

	id := w.ID
	if id == "" {
		id = fmt.Sprintf("%d-%d", ts.UnixMilli(), index)
	}

	return model.NotificationEvent{
		ID:        id,
		Type:      model.EventType(w.Type),
		Topic:     w.Topic,
		Payload:   payload,
		Timestamp: ts,
	}, nil
}

func parseTimestamp(raw json.RawMessage, now time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return now.UTC(), nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Encode is the inverse of Decode, used by publishers.
func Encode(ev model.NotificationEvent) ([]byte, error) {
	w := struct {
		ID        string         `json:"id,omitempty"`
		Type      string         `json:"type"`
		Topic     string         `json:"topic,omitempty"`
		Payload   map[string]any `json:"payload,omitempty"`
		Timestamp string         `json:"timestamp,omitempty"`
	}{
		ID:      ev.ID,
		Type:    string(ev.Type),
		Topic:   ev.Topic,
		Payload: ev.Payload,
	}
	if w.Type == "" {
		return nil, apperr.New(apperr.KindMalformedMessage, "encode", errors.New("missing type"))
	}
	if !ev.Timestamp.IsZero() {
		w.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}
