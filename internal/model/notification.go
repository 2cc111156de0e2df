package model

import "time"

// EventType names a kind of live domain event.  The set is open-ended: kinds
// the client does not know about are kept as-is and shown generically.
type EventType string

// Known domain event kinds pushed by the league service.
const (
	EventTournamentCreated  EventType = "tournament.created"
	EventTournamentUpdated  EventType = "tournament.updated"
	EventTournamentDeleted  EventType = "tournament.deleted"
	EventTournamentStarted  EventType = "tournament.started"
	EventTournamentFinished EventType = "tournament.finished"
	EventPlayerRegistered   EventType = "player.registered"
	EventPlayerUpdated      EventType = "player.updated"
	EventPlayerRemoved      EventType = "player.removed"
	EventTeamCreated        EventType = "team.created"
	EventTeamUpdated        EventType = "team.updated"
	EventTeamDeleted        EventType = "team.deleted"
	EventMatchScheduled     EventType = "match.scheduled"
	EventMatchStarted       EventType = "match.started"
	EventMatchFinished      EventType = "match.finished"
	EventScoreUpdated       EventType = "score.updated"
	EventBracketUpdated     EventType = "bracket.updated"
	EventStandingsUpdated   EventType = "standings.updated"
	EventRoundStarted       EventType = "round.started"
	EventRoundFinished      EventType = "round.finished"
	EventAnnouncement       EventType = "announcement"
)

var knownEventTypes = map[EventType]struct{}{
	EventTournamentCreated: {}, EventTournamentUpdated: {}, EventTournamentDeleted: {},
	EventTournamentStarted: {}, EventTournamentFinished: {},
	EventPlayerRegistered: {}, EventPlayerUpdated: {}, EventPlayerRemoved: {},
	EventTeamCreated: {}, EventTeamUpdated: {}, EventTeamDeleted: {},
	EventMatchScheduled: {}, EventMatchStarted: {}, EventMatchFinished: {},
	EventScoreUpdated: {}, EventBracketUpdated: {}, EventStandingsUpdated: {},
	EventRoundStarted: {}, EventRoundFinished: {}, EventAnnouncement: {},
}

// Known reports whether t is one of the predefined kinds.
func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// NotificationEvent is one delivered live event.  Payload is kept opaque.
// Read is client-side state and never travels over the wire.
type NotificationEvent struct {
	ID        string         `json:"id,omitempty"`
	Type      EventType      `json:"type"`
	Topic     string         `json:"topic,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Read      bool           `json:"-"`
}
