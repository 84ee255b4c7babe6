package router

import (
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// EventKind identifies what an Event reports
type EventKind int

const (
	EventMessage    EventKind = iota // a message was forwarded
	EventSendFailed                  // one output rejected a message
	EventInputLost                   // session ended on its own
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventSendFailed:
		return "send-failed"
	case EventInputLost:
		return "input-lost"
	default:
		return "unknown"
	}
}

// Event is delivered to the observer from the relay goroutine.
type Event struct {
	Kind    EventKind
	Message gomidi.Message
	Err     error // *PortSendError or *InputLostError
	Time    time.Time
	Session uint64 // set by Session; zero when using a bare Forwarder
}

// Terminal reports whether the session ended with this event.
func (e Event) Terminal() bool {
	return e.Kind == EventInputLost
}

// Observer receives relay events. It runs on the relay goroutine and must
// not block.
type Observer func(Event)
