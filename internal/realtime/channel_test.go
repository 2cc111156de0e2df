package realtime_test

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/metrics"
	"github.com/iliyamo/league-client/internal/notification"
	"github.com/iliyamo/league-client/internal/realtime"
	"github.com/iliyamo/league-client/internal/realtime/memtransport"
)

type fixture struct {
	mt     *memtransport.Transport
	store  *notification.Store
	met    *metrics.Metrics
	ch     *realtime.Channel
	mu     sync.Mutex
	states []realtime.ConnectionState
}

func newFixture(t *testing.T, opts ...realtime.Option) *fixture {
	t.Helper()
	f := &fixture{
		mt:    memtransport.New(),
		store: notification.New(0),
		met:   metrics.New(nil),
	}
	opts = append([]realtime.Option{realtime.WithMetrics(f.met)}, opts...)
	f.ch = realtime.New(f.mt, f.store, opts...)
	f.ch.OnStateChange(func(_, next realtime.ConnectionState) {
		f.mu.Lock()
		f.states = append(f.states, next)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) seen() []realtime.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]realtime.ConnectionState(nil), f.states...)
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.ch.Start("tok")
	require.True(t, f.mt.Up())
	require.Equal(t, realtime.Connected, f.ch.State())
}

func subs(topics ...string) []realtime.Command {
	out := make([]realtime.Command, len(topics))
	for i, tp := range topics {
		out[i] = realtime.Command{Op: realtime.OpSubscribe, Topic: tp}
	}
	return out
}

func TestStartReachesConnected(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, realtime.Disconnected, f.ch.State())

	f.ch.Start("tok")
	assert.Equal(t, realtime.Connecting, f.ch.State())

	require.True(t, f.mt.Up())
	assert.Equal(t, realtime.Connected, f.ch.State())
	assert.Equal(t, []realtime.ConnectionState{realtime.Connecting, realtime.Connected}, f.seen())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.met.ConnectionState))

	f.ch.Subscribe("tournament-42")
	assert.Equal(t, []string{"tournament-42"}, f.mt.ServerTopics())
	assert.Equal(t, []string{"tournament-42"}, f.ch.LiveTopics())
}

func TestSubscribeBeforeConnectIsDeferred(t *testing.T) {
	f := newFixture(t)
	f.ch.Subscribe("t2")
	f.ch.Subscribe("t1")
	assert.Empty(t, f.mt.Sent())

	f.ch.Start("tok")
	f.ch.Subscribe("t3")
	assert.Empty(t, f.mt.Sent(), "nothing is sent while connecting")

	f.mt.Up()
	assert.Equal(t, subs("t1", "t2", "t3"), f.mt.Sent())
	assert.Equal(t, []string{"t1", "t2", "t3"}, f.mt.ServerTopics())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.ch.Subscribe("tournament-42")
	f.ch.Subscribe("tournament-42")
	f.ch.Unsubscribe("tournament-7")

	assert.Equal(t, subs("tournament-42"), f.mt.Sent())
	assert.Equal(t, []string{"tournament-42"}, f.ch.Topics())
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	f.ch.Subscribe("t1")
	f.ch.Subscribe("t2")
	f.ch.Unsubscribe("t1")
	assert.Equal(t, []string{"t2"}, f.ch.Topics())
	assert.Empty(t, f.mt.Sent())

	f.connect(t)
	f.ch.Unsubscribe("t2")

	assert.Empty(t, f.ch.Topics())
	assert.Empty(t, f.mt.ServerTopics())
	assert.Equal(t, []realtime.Command{
		{Op: realtime.OpSubscribe, Topic: "t2"},
		{Op: realtime.OpUnsubscribe, Topic: "t2"},
	}, f.mt.Sent())
}

func TestReplayAfterReconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.ch.Subscribe("t1")
	f.ch.Subscribe("t2")

	require.True(t, f.mt.Drop(apperr.New(apperr.KindConnectionLost, "push", errors.New("eof"))))
	assert.Equal(t, realtime.Reconnecting, f.ch.State())
	assert.Empty(t, f.ch.LiveTopics())
	assert.Equal(t, []string{"t1", "t2"}, f.ch.Topics())
	assert.Empty(t, f.mt.ServerTopics(), "a new physical connection starts empty")

	f.mt.ResetSent()
	var wg sync.WaitGroup
	var once sync.Once
	f.mt.BeforeSend = func(cmd realtime.Command) {
		once.Do(func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.ch.Subscribe("t3")
			}()
			time.Sleep(10 * time.Millisecond)
		})
	}

	require.True(t, f.mt.Up())
	wg.Wait()

	assert.Equal(t, subs("t1", "t2", "t3"), f.mt.Sent(), "replay precedes new subscriptions")
	assert.Equal(t, []string{"t1", "t2", "t3"}, f.mt.ServerTopics())
	assert.Equal(t, realtime.Connected, f.ch.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.met.Reconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.met.Replays))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.met.ReplayedTopics))
}

func TestStopForgetsLiveSetKeepsDesired(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.ch.Subscribe("t1")

	f.ch.Stop()

	assert.Equal(t, realtime.Disconnected, f.ch.State())
	assert.Empty(t, f.ch.LiveTopics())
	assert.Equal(t, []string{"t1"}, f.ch.Topics())
	assert.True(t, f.mt.Closed())
	assert.False(t, f.mt.Up(), "closed link cannot reconnect")
	assert.False(t, f.mt.Push([]byte(`{"type":"announcement"}`)))

	f.ch.Stop()
	assert.Equal(t, []realtime.ConnectionState{
		realtime.Connecting, realtime.Connected, realtime.Disconnected,
	}, f.seen())

	f.mt.ResetSent()
	f.connect(t)
	assert.Equal(t, subs("t1"), f.mt.Sent())
}

func TestStopDuringReconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.mt.Drop(errors.New("reset"))

	f.ch.Stop()

	assert.Equal(t, realtime.Disconnected, f.ch.State())
	assert.False(t, f.mt.Up())
}

func TestStartIsIdempotentPerCredential(t *testing.T) {
	f := newFixture(t)
	f.ch.Start("tok-a")
	f.ch.Start("tok-a")
	assert.Len(t, f.mt.Opens(), 1)

	f.ch.Start("tok-b")
	assert.Equal(t, []string{"tok-a", "tok-b"}, credStrings(f.mt.Opens()))
	assert.Equal(t, realtime.Connecting, f.ch.State())

	f.ch.Start("")
	assert.Len(t, f.mt.Opens(), 2)
}

func TestOpenFailureReturnsToDisconnected(t *testing.T) {
	f := newFixture(t)
	f.mt.OpenErr = errors.New("bad url")

	f.ch.Start("tok")

	assert.Equal(t, realtime.Disconnected, f.ch.State())
}

func TestInboundEventsReachStore(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.ch.Subscribe("tournament-42")

	for i := 1; i <= 3; i++ {
		body := fmt.Sprintf(`{"id":"e%d","type":"score.updated","topic":"tournament-42"}`, i)
		require.True(t, f.mt.Publish("tournament-42", []byte(body)))
	}
	assert.False(t, f.mt.Publish("tournament-7", []byte(`{"type":"announcement"}`)))

	events := f.store.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "e3", events[0].ID, "most recent first")
	assert.Equal(t, "e1", events[2].ID)
	assert.Equal(t, 3, f.store.UnreadCount())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.met.NotificationsReceived))
}

func TestDecodeFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.mt.Push([]byte(`{not json`))
	f.mt.Push([]byte(`{"id":"x"}`))

	assert.Equal(t, realtime.Connected, f.ch.State())
	assert.Zero(t, f.store.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.met.DecodeFailures))

	f.mt.Push([]byte(`{"type":"match.finished"}`))
	assert.Equal(t, 1, f.store.Len())
}

func TestSynthesizedIDsAreUnique(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, realtime.WithClock(func() time.Time { return fixed }))
	f.connect(t)

	f.mt.Push([]byte(`{"type":"announcement"}`))
	f.mt.Push([]byte(`{"type":"announcement"}`))

	events := f.store.Events()
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestAuthRefusedHook(t *testing.T) {
	refused := make(chan struct{}, 1)
	f := newFixture(t, realtime.WithAuthRefused(func() { refused <- struct{}{} }))
	f.connect(t)

	f.mt.Drop(apperr.New(apperr.KindCredentialInvalid, "push", errors.New("ACCESS_REFUSED")))

	select {
	case <-refused:
	case <-time.After(time.Second):
		t.Fatal("auth refused hook not called")
	}
	assert.Equal(t, realtime.Reconnecting, f.ch.State())
}

func TestPlainDropDoesNotTriggerAuthHook(t *testing.T) {
	refused := make(chan struct{}, 1)
	f := newFixture(t, realtime.WithAuthRefused(func() { refused <- struct{}{} }))
	f.connect(t)

	f.mt.Drop(errors.New("eof"))

	select {
	case <-refused:
		t.Fatal("hook called for a plain drop")
	case <-time.After(50 * time.Millisecond):
	}
}

// Any sequence of subscribe/unsubscribe calls leaves the desired set equal
// to the set-fold of the sequence, and while connected the server-side set
// tracks it exactly.
func TestSubscriptionFoldProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	topics := []string{"t1", "t2", "t3", "t4", "t5"}

	for round := 0; round < 50; round++ {
		f := newFixture(t)
		connected := rng.Intn(2) == 0
		if connected {
			f.connect(t)
		}
		want := map[string]bool{}
		for i := 0; i < 30; i++ {
			tp := topics[rng.Intn(len(topics))]
			if rng.Intn(3) == 0 {
				f.ch.Unsubscribe(tp)
				delete(want, tp)
			} else {
				f.ch.Subscribe(tp)
				want[tp] = true
			}
			got := f.ch.Topics()
			require.Equal(t, keys(want), got, "round %d step %d", round, i)
			if connected {
				require.Equal(t, got, nilIfEmpty(f.mt.ServerTopics()))
			}
		}
		if !connected {
			f.connect(t)
			assert.Equal(t, keys(want), nilIfEmpty(f.mt.ServerTopics()))
		}
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func nilIfEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func credStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func TestObserverSubscribesOnConnected(t *testing.T) {
	f := newFixture(t)
	f.ch.Subscribe("t1")
	f.ch.OnStateChange(func(_, next realtime.ConnectionState) {
		if next == realtime.Connected {
			f.ch.Subscribe("tournament-42")
		}
	})
	f.ch.Start("tok")

	done := make(chan bool, 1)
	go func() { done <- f.mt.Up() }()
	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Up blocked on a subscribing observer")
	}

	assert.Equal(t, realtime.Connected, f.ch.State())
	assert.Equal(t, []string{"t1", "tournament-42"}, f.mt.ServerTopics())
	assert.Equal(t, subs("t1", "tournament-42"), f.mt.Sent(), "replay goes out before the observer's subscribe")

	f.ch.Unsubscribe("t1")
	assert.Equal(t, []string{"tournament-42"}, f.mt.ServerTopics())
}

func TestObserverStopsOnReconnecting(t *testing.T) {
	f := newFixture(t)
	f.ch.OnStateChange(func(_, next realtime.ConnectionState) {
		if next == realtime.Reconnecting {
			f.ch.Stop()
		}
	})
	f.connect(t)

	f.mt.Drop(errors.New("eof"))

	assert.Equal(t, realtime.Disconnected, f.ch.State())
	assert.Equal(t, []realtime.ConnectionState{
		realtime.Connecting, realtime.Connected, realtime.Reconnecting, realtime.Disconnected,
	}, f.seen(), "a transition caused by an observer is delivered after the current one")
	assert.True(t, f.mt.Closed())
}
