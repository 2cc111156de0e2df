package realtime

// ConnectionState is the channel's view of the push connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type linkEvent int

const (
	evOpen linkEvent = iota
	evUp
	evDown
	evClose
)

// next is the connection state machine.  Events that do not apply to the
// current state leave it unchanged.
func next(s ConnectionState, ev linkEvent) ConnectionState {
	switch ev {
	case evOpen:
		if s == Disconnected {
			return Connecting
		}
	case evUp:
		if s == Connecting || s == Reconnecting {
			return Connected
		}
	case evDown:
		if s == Connecting || s == Connected {
			return Reconnecting
		}
	case evClose:
		return Disconnected
	}
	return s
}
