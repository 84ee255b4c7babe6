package midi

import (
	"errors"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Driver errors
var (
	ErrPortNotFound = errors.New("midi port not found")
	ErrInputLost    = errors.New("midi input lost")
	ErrEnumTimeout  = errors.New("midi port enumeration timed out")
)

// In is an open input port. Pending never blocks: it returns whatever
// arrived since the previous call, in arrival order.
type In interface {
	Name() string
	Pending() ([]gomidi.Message, error)
	Close() error
}

// Out is an open output port.
type Out interface {
	Name() string
	Send(msg gomidi.Message) error
	Close() error
}

// Notifier is implemented by inputs that can signal new data, so readers
// can wake up instead of waiting for the next poll tick.
type Notifier interface {
	Ready() <-chan struct{}
}

// Lister enumerates port names.
type Lister interface {
	Ins() ([]string, error)
	Outs() ([]string, error)
}

// Driver is the MIDI transport: enumeration plus opening ports by name.
type Driver interface {
	Lister
	OpenIn(name string) (In, error)
	OpenOut(name string) (Out, error)
	Close() error
}
