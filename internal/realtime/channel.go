// Package realtime maintains the authenticated push connection that carries
// live league events.  A Channel keeps the set of topics the user wants,
// replays it onto every new physical connection, and feeds decoded events to
// a notification.Store.
package realtime

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/metrics"
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/notification"
)

// Channel is safe for concurrent use.
type Channel struct {
	transport Transport
	store     *notification.Store
	log       *slog.Logger
	met       *metrics.Metrics
	now       func() time.Time

	onAuthRefused func()

	// wireMu orders commands on the wire: a replay runs to completion
	// before any individual subscribe or unsubscribe is sent.
	wireMu sync.Mutex

	mu     sync.Mutex
	state  ConnectionState
	topics map[string]struct{}
	live   map[string]struct{}
	sender Sender
	link   io.Closer
	cancel context.CancelFunc
	ctx    context.Context
	cred   model.Credential
	gen    uint64
	seq    uint64

	// Committed transitions wait in pending until one drainer hands them to
	// the observers in commit order, with no channel lock held.
	observers []*stateObserver
	pending   []transition
	draining  bool
}

type transition struct {
	prev, next ConnectionState
}

type stateObserver struct {
	fn func(prev, next ConnectionState)
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Channel) { c.log = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Channel) { c.met = m } }

// WithClock overrides the arrival clock used for events without a timestamp.
func WithClock(now func() time.Time) Option { return func(c *Channel) { c.now = now } }

// WithAuthRefused registers fn to run when the transport reports that the
// credential was refused.  fn runs on its own goroutine.
func WithAuthRefused(fn func()) Option { return func(c *Channel) { c.onAuthRefused = fn } }

// New creates a Disconnected channel.
func New(t Transport, store *notification.Store, opts ...Option) *Channel {
	c := &Channel{
		transport: t,
		store:     store,
		log:       logger.Discard(),
		now:       time.Now,
		topics:    make(map[string]struct{}),
		live:      make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Component(c.log, "realtime")
	return c
}

// State returns the connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Topics returns the desired subscription set, sorted.
func (c *Channel) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.topics)
}

// LiveTopics returns the topics the current physical connection has been
// told about, sorted.
func (c *Channel) LiveTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.live)
}

// OnStateChange registers fn for connection state transitions.  Observers
// run in registration order, with no channel lock held, and may call any
// Channel method.  A transition caused from inside an observer is delivered
// after the current one has reached every observer.
func (c *Channel) OnStateChange(fn func(prev, next ConnectionState)) (cancel func()) {
	o := &stateObserver{fn: fn}
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, cur := range c.observers {
			if cur == o {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// transitionLocked applies ev and notifies observers.  It must be called
// with c.mu held and releases it.
func (c *Channel) transitionLocked(ev linkEvent) {
	c.commitLocked(ev)
	c.mu.Unlock()
	c.drain()
}

// commitLocked applies ev and queues the transition for observers.
func (c *Channel) commitLocked(ev linkEvent) {
	prev := c.state
	c.state = next(prev, ev)
	cur := c.state
	if prev == cur {
		return
	}
	c.log.Debug("state", "from", prev.String(), "to", cur.String())
	c.met.SetConnectionState(int(cur))
	if cur == Reconnecting {
		c.met.Reconnecting()
	}
	c.pending = append(c.pending, transition{prev: prev, next: cur})
}

// drain delivers queued transitions.  Only one goroutine drains at a time;
// a caller that finds a drain in progress leaves its transition to it.
func (c *Channel) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 {
		t := c.pending[0]
		c.pending = c.pending[1:]
		obs := append([]*stateObserver(nil), c.observers...)
		c.mu.Unlock()
		for _, o := range obs {
			o.fn(t.prev, t.next)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// Start opens the push connection for cred.  Starting with the credential
// already in use is a no-op; a different credential replaces the connection.
func (c *Channel) Start(cred model.Credential) {
	if cred == "" {
		return
	}
	c.mu.Lock()
	if c.state != Disconnected && c.cred == cred {
		c.mu.Unlock()
		return
	}
	if c.state != Disconnected {
		c.mu.Unlock()
		c.Stop()
		c.mu.Lock()
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	c.cred = cred
	c.transitionLocked(evOpen)

	link, err := c.transport.Open(ctx, cred, &sink{c: c, gen: gen})

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if link != nil {
			link.Close()
		}
		return
	}
	if err != nil {
		c.log.Error("open push transport", "err", err)
		c.resetLocked()
		c.transitionLocked(evClose)
		return
	}
	c.link = link
	c.mu.Unlock()
}

// Stop closes the connection, cancels any pending reconnection or replay and
// forgets the server-side subscription set.  The desired set is kept.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.state == Disconnected && c.link == nil {
		c.mu.Unlock()
		return
	}
	link := c.link
	c.resetLocked()
	c.transitionLocked(evClose)

	if link != nil {
		if err := link.Close(); err != nil {
			c.log.Debug("close push transport", "err", err)
		}
	}
}

func (c *Channel) resetLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = nil
	c.ctx = nil
	c.link = nil
	c.sender = nil
	c.cred = ""
	c.live = make(map[string]struct{})
}

// Subscribe adds topic to the subscription set.  The server is told now when
// Connected, otherwise on the next connection.  Repeated calls are no-ops.
func (c *Channel) Subscribe(topic string) {
	c.command(Command{Op: OpSubscribe, Topic: topic})
}

// Unsubscribe removes topic from the subscription set.
func (c *Channel) Unsubscribe(topic string) {
	c.command(Command{Op: OpUnsubscribe, Topic: topic})
}

func (c *Channel) command(cmd Command) {
	if cmd.Topic == "" {
		return
	}
	c.wireMu.Lock()
	defer c.wireMu.Unlock()

	c.mu.Lock()
	_, isLive := c.live[cmd.Topic]
	switch cmd.Op {
	case OpSubscribe:
		c.topics[cmd.Topic] = struct{}{}
		if isLive {
			c.mu.Unlock()
			return
		}
	case OpUnsubscribe:
		delete(c.topics, cmd.Topic)
		if !isLive {
			c.mu.Unlock()
			return
		}
	}
	if c.state != Connected || c.sender == nil {
		c.mu.Unlock()
		return
	}
	s, ctx, gen := c.sender, c.ctx, c.gen
	c.mu.Unlock()

	if err := s.Send(ctx, cmd); err != nil {
		c.log.Warn("send command", "op", string(cmd.Op), "topic", cmd.Topic, "err", err)
		return
	}
	c.mu.Lock()
	if gen == c.gen && c.sender == s {
		if cmd.Op == OpSubscribe {
			c.live[cmd.Topic] = struct{}{}
		} else {
			delete(c.live, cmd.Topic)
		}
	}
	c.mu.Unlock()
}

// up replays the whole subscription set onto a fresh connection and then
// enters Connected.  Individual commands queue behind it on wireMu, which is
// released before observers hear about Connected.
func (c *Channel) up(gen uint64, s Sender) {
	c.wireMu.Lock()
	ok := c.replay(gen, s)
	c.wireMu.Unlock()
	if ok {
		c.drain()
	}
}

// replay sends every desired topic and commits Connected.  It reports
// whether the transition was committed.  Called with wireMu held.
func (c *Channel) replay(gen uint64, s Sender) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.sender = s
	c.live = make(map[string]struct{})
	ctx := c.ctx
	topics := sortedKeys(c.topics)
	c.mu.Unlock()

	for _, t := range topics {
		if err := s.Send(ctx, Command{Op: OpSubscribe, Topic: t}); err != nil {
			c.log.Warn("replay aborted", "topic", t, "err", err)
			return false
		}
		c.mu.Lock()
		if gen != c.gen || c.sender != s {
			c.mu.Unlock()
			return false
		}
		c.live[t] = struct{}{}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.sender != s {
		return false
	}
	c.commitLocked(evUp)
	c.met.Replayed(len(topics))
	if len(topics) > 0 {
		c.log.Info("subscriptions replayed", "topics", len(topics))
	}
	return true
}

func (c *Channel) down(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.sender = nil
	c.live = make(map[string]struct{})
	refused := apperr.KindOf(err) == apperr.KindCredentialInvalid
	c.log.Warn("push connection lost", "err", err, "refused", refused)
	c.transitionLocked(evDown)

	if refused && c.onAuthRefused != nil {
		go c.onAuthRefused()
	}
}

func (c *Channel) deliver(gen uint64, body []byte) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	idx := c.seq
	c.seq++
	c.mu.Unlock()

	ev, err := Decode(body, idx, c.now())
	if err != nil {
		c.met.DecodeFailed()
		c.log.Warn("dropping push message", "err", err, "bytes", len(body))
		return
	}
	c.met.Received()
	c.store.Append(ev)
}

// sink binds transport callbacks to the link generation that created them
// so events from a replaced link are ignored.
type sink struct {
	c   *Channel
	gen uint64
}

func (s *sink) Up(sender Sender)    { s.c.up(s.gen, sender) }
func (s *sink) Down(err error)      { s.c.down(s.gen, err) }
func (s *sink) Deliver(body []byte) { s.c.deliver(s.gen, body) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
