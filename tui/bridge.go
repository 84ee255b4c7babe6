package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"midi-router/midi"
	"midi-router/router"
)

// EventMsg carries a relay event into Update.
type EventMsg router.Event

// DevicesMsg carries a port snapshot into Update.
type DevicesMsg midi.Snapshot

// watchMsg is a hot-plug snapshot; handling it re-arms the listener.
type watchMsg midi.Snapshot

// terminalBuffer holds session-ending events apart from messages so a
// flood of messages cannot push them out.
const terminalBuffer = 4

// Bridge hands relay events from the relay goroutine to the UI. Sends
// never block; under UI lag message events are dropped and counted.
type Bridge struct {
	messages chan router.Event
	terminal chan router.Event
	dropped  atomic.Uint64
}

func NewBridge(size int) *Bridge {
	return &Bridge{
		messages: make(chan router.Event, size),
		terminal: make(chan router.Event, terminalBuffer),
	}
}

// Observe is a router.Observer.
func (b *Bridge) Observe(ev router.Event) {
	ch := b.messages
	if ev.Terminal() {
		ch = b.terminal
	}
	select {
	case ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// ListenForEvents waits for the next relay event, terminal ones first.
func ListenForEvents(b *Bridge) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-b.terminal:
			return EventMsg(ev)
		default:
		}
		select {
		case ev := <-b.terminal:
			return EventMsg(ev)
		case ev := <-b.messages:
			return EventMsg(ev)
		}
	}
}

// ListenForDevices waits for the next hot-plug snapshot. A closed channel
// ends listening.
func ListenForDevices(ch <-chan midi.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return watchMsg(s)
	}
}
