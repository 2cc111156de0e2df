package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/league-client/internal/apperr"
	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/realtime"
)

// TransportConfig configures the push transport.
type TransportConfig struct {
	// URL of the broker.  Any user info is ignored; the session credential
	// is presented as the PLAIN password.
	URL string
	// Username sent with the credential.  Defaults to "token".
	Username string
	Exchange string
	// MinBackoff and MaxBackoff bound the reconnect delay, which doubles
	// after each failed attempt.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (c *TransportConfig) withDefaults() {
	if c.Username == "" {
		c.Username = "token"
	}
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = time.Second
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = 30 * time.Second
	}
}

type dialFunc func(url string, cfg amqp.Config) (*amqp.Connection, error)

// Transport implements realtime.Transport over RabbitMQ.
type Transport struct {
	cfg  TransportConfig
	log  *slog.Logger
	dial dialFunc
}

// NewTransport returns a Transport.  No connection is made until Open.
func NewTransport(cfg TransportConfig, log *slog.Logger) *Transport {
	cfg.withDefaults()
	if log == nil {
		log = logger.Discard()
	}
	return &Transport{cfg: cfg, log: logger.Component(log, "push-transport"), dial: amqp.DialConfig}
}

// Open starts the connect loop for cred and returns immediately.
func (t *Transport) Open(ctx context.Context, cred model.Credential, sink realtime.Sink) (io.Closer, error) {
	if _, err := amqp.ParseURI(t.cfg.URL); err != nil {
		return nil, fmt.Errorf("push transport: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &link{
		t:      t,
		url:    t.cfg.URL,
		amqp:   dialConfig(t.cfg.Username, cred),
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

func dialConfig(user string, cred model.Credential) amqp.Config {
	return amqp.Config{
		SASL:      []amqp.Authentication{&amqp.PlainAuth{Username: user, Password: cred.Reveal()}},
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "league-client",
		},
	}
}

// nextBackoff doubles d up to max.
func nextBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

type link struct {
	t      *Transport
	url    string
	amqp   amqp.Config
	sink   realtime.Sink
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *amqp.Connection
}

// Close stops the connect loop and closes the current connection.
func (l *link) Close() error {
	l.cancel()
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn != nil && !conn.IsClosed() {
		return conn.Close()
	}
	return nil
}

func (l *link) run() {
	defer close(l.done)
	log := l.t.log
	backoff := l.t.cfg.MinBackoff
	reported := false

	for {
		if l.ctx.Err() != nil {
			return
		}
		conn, err := l.t.dial(l.url, l.amqp)
		if err != nil {
			if errors.Is(err, amqp.ErrCredentials) {
				log.Warn("broker refused credential")
				l.sink.Down(apperr.New(apperr.KindCredentialInvalid, "push connect", err))
				return
			}
			if !reported {
				l.sink.Down(apperr.New(apperr.KindConnectionLost, "push connect", err))
				reported = true
			}
			log.Info("dial broker failed", "err", err, "retry_in", backoff)
			if !l.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, l.t.cfg.MaxBackoff)
			continue
		}
		backoff = l.t.cfg.MinBackoff // reset after successful connect
		reported = false

		l.mu.Lock()
		if l.ctx.Err() != nil {
			l.mu.Unlock()
			_ = conn.Close()
			return
		}
		l.conn = conn
		l.mu.Unlock()

		err = l.consume(conn)
		_ = conn.Close()
		if l.ctx.Err() != nil {
			return
		}
		log.Warn("push connection ended", "err", err)
		l.sink.Down(apperr.New(apperr.KindConnectionLost, "push", err))
		reported = true
		if !l.sleep(backoff) {
			return
		}
	}
}

func (l *link) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-l.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// consume runs one physical connection: an exclusive auto-delete queue that
// lives exactly as long as the connection, consumed until it closes.
func (l *link) consume(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		l.t.log.Debug("set QoS failed", "err", err)
	}
	if err := DeclareExchange(ch, l.t.cfg.Exchange); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	l.sink.Up(&sender{ch: ch, queue: q.Name, exchange: l.t.cfg.Exchange})

	for {
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case e, ok := <-closed:
			if ok && e != nil {
				return e
			}
			return errors.New("connection closed")
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			l.sink.Deliver(d.Body)
		}
	}
}

// sender binds and unbinds the connection's queue.
type sender struct {
	ch       *amqp.Channel
	queue    string
	exchange string
}

// Send implements realtime.Sender.
func (s *sender) Send(ctx context.Context, cmd realtime.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := RoutingKey(cmd.Topic)
	switch cmd.Op {
	case realtime.OpSubscribe:
		return s.ch.QueueBind(s.queue, key, s.exchange, false, nil)
	case realtime.OpUnsubscribe:
		return s.ch.QueueUnbind(s.queue, key, s.exchange, nil)
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
}
