// Package service publishes league events to RabbitMQ.  Errors are logged
// and returned so callers can report them without interrupting the request
// flow.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/queue"
)

// Publisher sends events to the league topic exchange.  The connection is
// opened lazily and reopened after it drops.
type Publisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url, exchange string, log *slog.Logger) *Publisher {
	if exchange == "" {
		exchange = queue.DefaultExchange
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{url: url, exchange: exchange, log: logger.Component(log, "publisher")}
}

// Publish routes ev by its topic.  Events are transient: a client that is not
// connected when an event is published does not receive it later.
func (p *Publisher) Publish(ctx context.Context, ev model.NotificationEvent) error {
	if ev.Topic == "" {
		return fmt.Errorf("publish: event has no topic")
	}
	pub, err := queue.NewPublishing(ev)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		p.log.Error("broker unavailable", "err", err)
		return err
	}
	if err := ch.PublishWithContext(ctx,
		p.exchange,                 // exchange
		queue.RoutingKey(ev.Topic), // routing key = topic
		false,                      // mandatory
		false,                      // immediate
		pub,
	); err != nil {
		p.log.Error("publish failed", "topic", ev.Topic, "type", string(ev.Type), "err", err)
		p.resetLocked()
		return err
	}
	p.log.Debug("published", "topic", ev.Topic, "type", string(ev.Type), "id", ev.ID)
	return nil
}

func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := queue.DeclareExchange(ch, p.exchange); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
