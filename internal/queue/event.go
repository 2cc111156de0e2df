// Package queue carries league events over RabbitMQ.  Events are published
// to a topic exchange with the subscription topic as routing key; each
// client connection consumes from its own exclusive queue and binds it to
// the topics it wants.
package queue

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/league-client/internal/model"
	"github.com/iliyamo/league-client/internal/realtime"
)

// DefaultExchange is the topic exchange league events are published to.
const DefaultExchange = "league.events"

// ExchangeKind is the AMQP exchange type used for league events.
const ExchangeKind = amqp.ExchangeTopic

// RoutingKey returns the routing key for events on topic.  Topics map
// one-to-one onto routing keys so a queue binding is a subscription.
func RoutingKey(topic string) string { return topic }

// NewPublishing encodes ev as an AMQP message.
func NewPublishing(ev model.NotificationEvent) (amqp.Publishing, error) {
	body, err := realtime.Encode(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    ts,
		Body:         body,
	}, nil
}

// DeclareExchange makes sure the league exchange exists.  It is idempotent.
func DeclareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,         // name
		ExchangeKind, // kind
		true,         // durable
		false,        // autoDelete
		false,        // internal
		false,        // noWait
		nil,          // args
	)
}
