package transport

// EventType identifies a connection lifecycle event.
type EventType int

const (
	EventOpened EventType = iota
	EventMessage
	EventErrored
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventErrored:
		return "errored"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is published to the single subscriber of a connection, in the
// order the transport produced it.
type Event struct {
	Type EventType
	Data []byte // EventMessage only
	Err  error  // EventErrored only
}
