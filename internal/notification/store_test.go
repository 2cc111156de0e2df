package notification

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/league-client/internal/model"
)

func recount(s *Store) int {
	n := 0
	for _, ev := range s.Events() {
		if !ev.Read {
			n++
		}
	}
	return n
}

func assertConsistent(t *testing.T, s *Store) {
	t.Helper()
	assert.Equal(t, recount(s), s.UnreadCount(), "incremental unread counter drifted")
	assert.LessOrEqual(t, s.Len(), s.Capacity())
	assert.GreaterOrEqual(t, s.UnreadCount(), 0)
}

func event(i int) model.NotificationEvent {
	return model.NotificationEvent{
		ID:        fmt.Sprintf("ev-%d", i),
		Type:      model.EventScoreUpdated,
		Timestamp: time.Unix(int64(i), 0),
	}
}

func TestAppendPrependsAndCounts(t *testing.T) {
	s := New(0)
	require.Equal(t, DefaultCapacity, s.Capacity())

	s.Append(event(1))
	s.Append(event(2))

	got := s.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "ev-2", got[0].ID)
	assert.Equal(t, "ev-1", got[1].ID)
	assert.Equal(t, 2, s.UnreadCount())
	assertConsistent(t, s)
}

func TestFiftyOneAppendsKeepsMostRecentFifty(t *testing.T) {
	s := New(DefaultCapacity)
	for i := 1; i <= 51; i++ {
		s.Append(event(i))
		assertConsistent(t, s)
	}

	got := s.Events()
	require.Len(t, got, 50)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("ev-%d", 51-i), ev.ID)
	}
	assert.Equal(t, 50, s.UnreadCount())
}

func TestEvictingReadEventLeavesUnreadCount(t *testing.T) {
	s := New(3)
	for i := 1; i <= 3; i++ {
		s.Append(event(i))
	}
	s.MarkAllRead()
	assertConsistent(t, s)

	s.Append(event(4)) // evicts ev-1, which was read
	assert.Equal(t, 1, s.UnreadCount())
	assertConsistent(t, s)
}

func TestEvictingUnreadEventDecrements(t *testing.T) {
	s := New(2)
	s.Append(event(1))
	s.Append(event(2))
	assert.Equal(t, 2, s.UnreadCount())

	s.Append(event(3)) // evicts unread ev-1
	assert.Equal(t, 2, s.UnreadCount())
	assertConsistent(t, s)
}

func TestMarkAllReadOnEmptyStore(t *testing.T) {
	s := New(0)
	calls := 0
	s.OnChange(func() { calls++ })

	s.MarkAllRead()

	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 0, calls)
	assertConsistent(t, s)
}

func TestClear(t *testing.T) {
	s := New(0)
	s.Append(event(1))
	s.Append(event(2))

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
	assertConsistent(t, s)
}

func TestRandomOperationSequences(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for run := 0; run < 20; run++ {
		s := New(1 + rnd.Intn(60))
		for op := 0; op < 300; op++ {
			switch r := rnd.Intn(10); {
			case r < 7:
				ev := event(op)
				ev.Read = rnd.Intn(5) == 0
				s.Append(ev)
			case r < 9:
				s.MarkAllRead()
			default:
				s.Clear()
			}
			assertConsistent(t, s)
		}
	}
}

func TestOnChangeCancel(t *testing.T) {
	s := New(0)
	calls := 0
	cancel := s.OnChange(func() { calls++ })

	s.Append(event(1))
	cancel()
	s.Append(event(2))

	assert.Equal(t, 1, calls)
}

func TestEventsReturnsCopy(t *testing.T) {
	s := New(0)
	s.Append(event(1))

	got := s.Events()
	got[0].Read = true

	assert.Equal(t, 1, s.UnreadCount())
	assert.False(t, s.Events()[0].Read)
}

func TestObserversRunInRegistrationOrder(t *testing.T) {
	s := New(0)
	var order []int
	for i := 0; i < 8; i++ {
		s.OnChange(func() { order = append(order, i) })
	}
	cancel := s.OnChange(func() { order = append(order, 99) })
	cancel()

	s.Append(event(1))
	s.MarkAllRead()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestCapacityIsCapped(t *testing.T) {
	s := New(DefaultCapacity + 25)
	assert.Equal(t, DefaultCapacity, s.Capacity())

	for i := 0; i < DefaultCapacity+10; i++ {
		s.Append(event(i))
	}
	assert.Equal(t, DefaultCapacity, s.Len())
}

func TestAppendedCountsDuplicatesAndSurvivesClear(t *testing.T) {
	s := New(2)
	s.Append(event(1))
	s.Append(event(1))
	s.Append(event(1))
	assert.Equal(t, uint64(3), s.Appended())
	assert.Equal(t, 2, s.Len())

	s.Clear()
	s.MarkAllRead()
	assert.Equal(t, uint64(3), s.Appended())

	s.Append(event(2))
	events, unread, appended := s.Snapshot()
	assert.Len(t, events, 1)
	assert.Equal(t, 1, unread)
	assert.Equal(t, uint64(4), appended)
}
