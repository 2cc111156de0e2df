package realtime

import (
	"context"
	"io"

	"github.com/iliyamo/league-client/internal/model"
)

// Op is a subscription command verb.
type Op string

const (
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
)

// Command asks the server to add or remove a topic on the current physical
// connection.
type Command struct {
	Op    Op
	Topic string
}

// Sender issues commands on one physical connection.  It is only valid
// between the Sink.Up that delivered it and the next Sink.Down.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// Sink receives link events from a Transport.  A Transport calls Up, Down
// and Deliver from a single goroutine per logical link.
type Sink interface {
	// Up reports a new physical connection.  Server-side subscriptions
	// start empty on every connection.
	Up(s Sender)
	// Down reports the loss of the current physical connection.  An error
	// of kind CredentialInvalid means the server refused the credential
	// and the transport has stopped retrying.
	Down(err error)
	// Deliver hands over one inbound message.
	Deliver(body []byte)
}

// Transport opens a logical link that keeps a physical connection alive,
// reconnecting with increasing backoff until the returned Closer is closed
// or ctx is done.  Open fails only when the link cannot be set up at all.
type Transport interface {
	Open(ctx context.Context, cred model.Credential, sink Sink) (io.Closer, error)
}
