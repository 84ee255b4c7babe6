package router

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

var (
	// ErrBusy is returned by Forwarder.Start when a session is still active.
	ErrBusy = errors.New("forwarder is not idle")
	// ErrStopTimeout is returned when the relay loop did not exit in time.
	// Cleanup still happens once the loop exits.
	ErrStopTimeout = errors.New("timed out waiting for relay loop to exit")
)

// Direction of a port
type Direction string

const (
	DirInput  Direction = "input"
	DirOutput Direction = "output"
)

// PortOpenError means a port could not be opened at start.
type PortOpenError struct {
	Port string
	Dir  Direction
	Err  error
}

func (e *PortOpenError) Error() string {
	return fmt.Sprintf("open %s %q: %v", e.Dir, e.Port, e.Err)
}

func (e *PortOpenError) Unwrap() error {
	return e.Err
}

// PortSendError means one output failed to take one message.
type PortSendError struct {
	Port    string
	Message gomidi.Message
	Err     error
}

func (e *PortSendError) Error() string {
	return fmt.Sprintf("send %s to %q: %v", e.Message, e.Port, e.Err)
}

func (e *PortSendError) Unwrap() error {
	return e.Err
}

// InputLostError ends a session: the input went away or the relay loop
// failed.
type InputLostError struct {
	Port string
	Err  error
}

func (e *InputLostError) Error() string {
	return fmt.Sprintf("input %q lost: %v", e.Port, e.Err)
}

func (e *InputLostError) Unwrap() error {
	return e.Err
}
