// Package memtransport is an in-process realtime.Transport.  It plays the
// server side: each Up starts a physical connection with an empty topic set,
// commands mutate that set, and Publish only reaches connections bound to the
// topic.  Tests drive connects, drops and pushes explicitly.
package memtransport

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/realtime"
)

// ErrConnClosed is returned by Send on a dropped connection.
var ErrConnClosed = errors.New("memtransport: connection closed")

// Transport implements realtime.Transport.
type Transport struct {
	// OpenErr, when set, makes Open fail.
	OpenErr error
	// BeforeSend, when set, runs before each command is applied.
	BeforeSend func(cmd realtime.Command)

	mu    sync.Mutex
	link  *link
	opens []model.Credential
	sent  []realtime.Command
}

// New returns an idle Transport.
func New() *Transport { return &Transport{} }

type link struct {
	t      *Transport
	ctx    context.Context
	sink   realtime.Sink
	conn   *conn
	closed bool
}

type conn struct {
	link   *link
	topics map[string]struct{}
	dead   bool
}

// Open implements realtime.Transport.
func (t *Transport) Open(ctx context.Context, cred model.Credential, sink realtime.Sink) (io.Closer, error) {
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	l := &link{t: t, ctx: ctx, sink: sink}
	t.mu.Lock()
	t.link = l
	t.opens = append(t.opens, cred)
	t.mu.Unlock()
	return l, nil
}

// Close implements io.Closer.
func (l *link) Close() error {
	l.t.mu.Lock()
	defer l.t.mu.Unlock()
	l.closed = true
	if l.conn != nil {
		l.conn.dead = true
	}
	return nil
}

func (t *Transport) active() *link {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == nil || t.link.closed || t.link.ctx.Err() != nil {
		return nil
	}
	return t.link
}

// Up brings a new physical connection up on the open link.  It reports
// false when no link is open.
func (t *Transport) Up() bool {
	l := t.active()
	if l == nil {
		return false
	}
	c := &conn{link: l, topics: make(map[string]struct{})}
	t.mu.Lock()
	if l.conn != nil {
		l.conn.dead = true
	}
	l.conn = c
	t.mu.Unlock()
	l.sink.Up(c)
	return true
}

// Drop kills the current physical connection and reports err to the sink.
func (t *Transport) Drop(err error) bool {
	l := t.active()
	if l == nil {
		return false
	}
	t.mu.Lock()
	if l.conn != nil {
		l.conn.dead = true
		l.conn = nil
	}
	t.mu.Unlock()
	l.sink.Down(err)
	return true
}

// Push delivers body on the current connection regardless of topic.
func (t *Transport) Push(body []byte) bool {
	l := t.active()
	if l == nil {
		return false
	}
	t.mu.Lock()
	up := l.conn != nil && !l.conn.dead
	t.mu.Unlock()
	if !up {
		return false
	}
	l.sink.Deliver(body)
	return true
}

// Publish delivers body only when the current connection is bound to topic.
func (t *Transport) Publish(topic string, body []byte) bool {
	l := t.active()
	if l == nil {
		return false
	}
	t.mu.Lock()
	ok := false
	if l.conn != nil && !l.conn.dead {
		_, ok = l.conn.topics[topic]
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	l.sink.Deliver(body)
	return true
}

// ServerTopics returns the topics bound on the current connection, sorted.
func (t *Transport) ServerTopics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == nil || t.link.conn == nil {
		return nil
	}
	out := make([]string, 0, len(t.link.conn.topics))
	for k := range t.link.conn.topics {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sent returns every command applied, across connections, in order.
func (t *Transport) Sent() []realtime.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]realtime.Command, len(t.sent))
	copy(out, t.sent)
	return out
}

// ResetSent forgets the recorded commands.
func (t *Transport) ResetSent() {
	t.mu.Lock()
	t.sent = nil
	t.mu.Unlock()
}

// Opens returns the credential of every Open call.
func (t *Transport) Opens() []model.Credential {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Credential, len(t.opens))
	copy(out, t.opens)
	return out
}

// Closed reports whether the most recent link was closed.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link == nil || t.link.closed
}

// Send implements realtime.Sender.
func (c *conn) Send(ctx context.Context, cmd realtime.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := c.link.t
	if hook := t.BeforeSend; hook != nil {
		hook(cmd)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.dead || c.link.closed {
		return ErrConnClosed
	}
	switch cmd.Op {
	case realtime.OpSubscribe:
		c.topics[cmd.Topic] = struct{}{}
	case realtime.OpUnsubscribe:
		delete(c.topics, cmd.Topic)
	}
	t.sent = append(t.sent, cmd)
	return nil
}
