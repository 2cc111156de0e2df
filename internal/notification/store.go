// Package notification holds the bounded, most-recent-first list of live
// events delivered by the realtime channel together with an unread counter.
//
// The channel's decode step is the only writer; UI surfaces read.  The
// unread counter is maintained incrementally and must always equal a fresh
// count of unread events, including after overflow eviction.
package notification

import (
	"sync"

	"github.com/iliyamo/league-client/internal/model"
)

// DefaultCapacity is the number of events kept before the oldest is evicted.
// It is also the largest capacity a store accepts.
const DefaultCapacity = 50

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	events   []model.NotificationEvent // index 0 is the most recent
	unread   int
	capacity int
	appended uint64

	obsMu     sync.Mutex
	observers []*observer
}

type observer struct {
	fn func()
}

// New returns an empty store.  capacity <= 0 selects DefaultCapacity and
// larger values are capped at it.
func New(capacity int) *Store {
	if capacity <= 0 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &Store{
		events:   make([]model.NotificationEvent, 0, capacity),
		capacity: capacity,
	}
}

// Append prepends ev and evicts from the tail beyond capacity.
func (s *Store) Append(ev model.NotificationEvent) {
	s.mu.Lock()
	s.events = append(s.events, model.NotificationEvent{})
	copy(s.events[1:], s.events[:len(s.events)-1])
	s.events[0] = ev
	s.appended++
	if !ev.Read {
		s.unread++
	}
	for len(s.events) > s.capacity {
		evicted := s.events[len(s.events)-1]
		s.events = s.events[:len(s.events)-1]
		if !evicted.Read {
			s.unread--
		}
	}
	s.mu.Unlock()
	s.notify()
}

// MarkAllRead flags every event as read.  No-op on an empty store.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		return
	}
	for i := range s.events {
		s.events[i].Read = true
	}
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

// Clear drops every event.
func (s *Store) Clear() {
	s.mu.Lock()
	s.events = s.events[:0]
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

// Events returns a copy of the events, most recent first.
func (s *Store) Events() []model.NotificationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.NotificationEvent, len(s.events))
	copy(out, s.events)
	return out
}

// UnreadCount returns the number of events with Read == false.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Appended returns how many events have ever been appended.  It is not reset
// by Clear, so readers can tell how many arrived since they last looked.
func (s *Store) Appended() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appended
}

// Snapshot returns Events, UnreadCount and Appended read together.
func (s *Store) Snapshot() (events []model.NotificationEvent, unread int, appended uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events = make([]model.NotificationEvent, len(s.events))
	copy(events, s.events)
	return events, s.unread, s.appended
}

// Capacity returns the eviction bound.
func (s *Store) Capacity() int { return s.capacity }

// OnChange registers fn to run after every mutation.  Observers run in
// registration order.  The returned func removes the registration.
func (s *Store) OnChange(fn func()) (cancel func()) {
	o := &observer{fn: fn}
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, cur := range s.observers {
			if cur == o {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify() {
	s.obsMu.Lock()
	obs := append([]*observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, o := range obs {
		o.fn()
	}
}
