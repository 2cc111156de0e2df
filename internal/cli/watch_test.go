package cli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/devapi/devapitest"
)

type result struct {
	out string
	err error
}

func (f *fixture) runAsync(args ...string) <-chan result {
	ch := make(chan result, 1)
	go func() {
		out, err := f.run(args...)
		ch <- result{out, err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("command did not finish")
		return result{}
	}
}

func TestWatchStreamsEvents(t *testing.T) {
	f := newFixture(t)
	f.login(t, devapitest.UserEmail, devapitest.UserPassword)

	done := f.runAsync("watch", "-t", "tournament-42", "--count", "2")

	require.Eventually(t, func() bool { return len(f.mt.Opens()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, f.mt.Up, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		topics := f.mt.ServerTopics()
		return len(topics) == 1 && topics[0] == "tournament-42"
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, f.mt.Publish("tournament-42", []byte(`{"id":"e1","type":"match.started","topic":"tournament-42"}`)))
	require.False(t, f.mt.Publish("tournament-7", []byte(`{"id":"x","type":"match.started"}`)), "not subscribed")
	require.True(t, f.mt.Publish("tournament-42", []byte(`{"id":"e2","type":"score.updated","topic":"tournament-42","payload":{"home":1}}`)))

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "● connected")
	assert.Contains(t, r.out, "match.started")
	assert.Contains(t, r.out, `score.updated {"home":1}`)
	assert.Contains(t, r.out, "(2 unread)")
	assert.NotContains(t, r.out, "tournament-7")
}

func TestWatchCountsRepeatedEventIDs(t *testing.T) {
	f := newFixture(t)
	f.login(t, devapitest.UserEmail, devapitest.UserPassword)

	done := f.runAsync("watch", "-t", "tournament-42", "--count", "2")

	require.Eventually(t, func() bool { return len(f.mt.Opens()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, f.mt.Up, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.mt.ServerTopics()) == 1 }, 2*time.Second, 5*time.Millisecond)

	body := []byte(`{"id":"same","type":"score.updated","topic":"tournament-42"}`)
	require.True(t, f.mt.Publish("tournament-42", body))
	require.True(t, f.mt.Publish("tournament-42", body))

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, 2, strings.Count(r.out, "score.updated"))
	assert.Contains(t, r.out, "(2 unread)")
}

func TestWatchEndsWhenPushRefusesCredential(t *testing.T) {
	f := newFixture(t)
	f.login(t, devapitest.UserEmail, devapitest.UserPassword)

	done := f.runAsync("watch", "-t", "tournament-42")

	require.Eventually(t, func() bool { return len(f.mt.Opens()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, f.mt.Up, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.mt.Drop(apperr.New(apperr.KindCredentialInvalid, "push connect", errors.New("ACCESS_REFUSED")))
	}, 2*time.Second, 5*time.Millisecond)

	r := wait(t, done)
	assert.ErrorIs(t, r.err, ErrSessionEnded)
	require.Eventually(t, func() bool {
		rec, _ := f.store.Load(context.Background())
		return rec == nil
	}, 2*time.Second, 5*time.Millisecond)

	_, err := f.run("whoami")
	assert.ErrorIs(t, err, ErrNotSignedIn, "expired session is not restored")
}

func TestWatchRequiresTopic(t *testing.T) {
	f := newFixture(t)
	f.login(t, devapitest.UserEmail, devapitest.UserPassword)

	_, err := f.run("watch")
	assert.ErrorContains(t, err, "--topic")
}
