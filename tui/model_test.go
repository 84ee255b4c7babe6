package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap/zaptest"

	"midi-router/midi"
	"midi-router/midi/miditest"
	"midi-router/router"
	"midi-router/theme"
)

func newTestModel(t *testing.T, drv *miditest.Driver) Model {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := midi.NewRegistry(drv, log, time.Second)
	fwd := router.NewForwarder(drv, router.WithLogger(log), router.WithPollInterval(time.Millisecond))
	session := router.NewSession(fwd, log)
	t.Cleanup(func() { session.Stop() })
	return NewModel(reg, session, NewBridge(16), nil, theme.New(nil), log)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send runs msg through Update and then any command it returns, one level
// deep, the way the program loop would.
func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	if out := cmd(); out != nil {
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestRefreshListsPorts(t *testing.T) {
	drv := miditest.New()
	drv.AddIn("Keys", "Pads")
	drv.AddOut("Synth")
	m := newTestModel(t, drv)

	if m.StartEnabled() {
		t.Error("start enabled before any inputs are known")
	}
	m = send(t, m, key("r"))
	if len(m.inputs) != 2 || len(m.outputs) != 2 || m.outputs[0] != NoOutput {
		t.Fatalf("inputs = %v, outputs = %v", m.inputs, m.outputs)
	}
	if !m.StartEnabled() || m.StopEnabled() {
		t.Errorf("start = %v, stop = %v", m.StartEnabled(), m.StopEnabled())
	}
}

func TestRefreshKeepsSelectionByName(t *testing.T) {
	drv := miditest.New()
	drv.AddIn("Keys", "Pads")
	drv.AddOut("Synth", "Drums")
	m := newTestModel(t, drv)
	m = send(t, m, key("r"))

	m = update(m, key("down")) // input: Pads
	m = update(m, key("tab"))
	m = update(m, key("down"))
	m = update(m, key("down")) // output 1: Drums

	drv.RemoveIn("Keys")
	m = send(t, m, key("r"))

	got := m.Selection()
	if got.Input != "Pads" || len(got.Outputs) != 1 || got.Outputs[0] != "Drums" {
		t.Errorf("Selection() = %+v", got)
	}
}

func TestStartForwardsAndShowsMessage(t *testing.T) {
	drv := miditest.New()
	drv.AddIn("Keys")
	drv.AddOut("Synth")
	m := newTestModel(t, drv)
	m = send(t, m, key("r"))
	m = update(m, key("tab"))
	m = update(m, key("down"))

	m = send(t, m, key("s"))
	if !m.Running() || !m.StopEnabled() || m.StartEnabled() {
		t.Fatalf("after start: running = %v, status = %q", m.Running(), m.Status())
	}
	if !strings.Contains(m.View(), "MIDI Message: None") {
		t.Error("label should read None before any message")
	}

	note := gomidi.NoteOn(0, 60, 100)
	drv.Inject("Keys", note)
	m = update(m, ListenForEvents(m.bridge)())

	if m.Message() != note.String() {
		t.Errorf("Message() = %q, want %q", m.Message(), note.String())
	}
	if !strings.Contains(m.View(), "MIDI Message: "+note.String()) {
		t.Errorf("view missing message label:\n%s", m.View())
	}
	if sent := drv.Sent("Synth"); len(sent) != 1 {
		t.Errorf("Synth got %d messages", len(sent))
	}

	m = send(t, m, key("x"))
	if m.Running() || m.Status() != "stopped" {
		t.Errorf("after stop: running = %v, status = %q", m.Running(), m.Status())
	}
	if n := drv.TotalOpen(); n != 0 {
		t.Errorf("%d handles left open", n)
	}
}

func TestStartFailureShowsError(t *testing.T) {
	drv := miditest.New()
	drv.AddIn("Keys")
	drv.AddOut("Synth")
	drv.FailOpen("Synth", errors.New("permission denied"))
	m := newTestModel(t, drv)
	m = send(t, m, key("r"))
	m = update(m, key("tab"))
	m = update(m, key("down"))

	m = send(t, m, key("enter"))
	if m.Running() {
		t.Error("running after failed start")
	}
	if !strings.Contains(m.Status(), "Synth") {
		t.Errorf("status = %q", m.Status())
	}
	if !m.StartEnabled() {
		t.Error("start should be available again")
	}
}

func TestStaleEventsIgnored(t *testing.T) {
	m := newTestModel(t, miditest.New())
	m.session = 2

	m = update(m, EventMsg(router.Event{Kind: router.EventMessage, Message: gomidi.NoteOn(0, 1, 1), Session: 1}))
	if m.Message() != "" {
		t.Errorf("stale message shown: %q", m.Message())
	}

	note := gomidi.NoteOff(0, 1)
	m = update(m, EventMsg(router.Event{Kind: router.EventMessage, Message: note, Session: 2}))
	if m.Message() != note.String() {
		t.Errorf("Message() = %q", m.Message())
	}
}

func TestInputLostStopsRunning(t *testing.T) {
	m := newTestModel(t, miditest.New())
	m.running = true
	m.session = 1

	lost := &router.InputLostError{Port: "Keys", Err: midi.ErrInputLost}
	m = update(m, EventMsg(router.Event{Kind: router.EventInputLost, Err: lost, Session: 1}))
	if m.Running() {
		t.Error("still running after input loss")
	}
	if m.kind != statusError || !strings.Contains(m.Status(), "Keys") {
		t.Errorf("status = %q", m.Status())
	}
}

func TestSendFailureWarns(t *testing.T) {
	m := newTestModel(t, miditest.New())
	m.running = true
	m.session = 1

	fail := &router.PortSendError{Port: "Synth", Err: errors.New("broken pipe")}
	m = update(m, EventMsg(router.Event{Kind: router.EventSendFailed, Err: fail, Session: 1}))
	if !m.Running() || m.kind != statusWarn {
		t.Errorf("running = %v, kind = %v", m.Running(), m.kind)
	}
}

func TestQuitStopsSession(t *testing.T) {
	drv := miditest.New()
	drv.AddIn("Keys")
	m := newTestModel(t, drv)
	m = send(t, m, key("r"))
	m = send(t, m, key("s"))
	if !m.Session.Running() {
		t.Fatal("session not running")
	}

	next, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit did not return tea.Quit")
	}
	if next.(Model).Session.Running() || drv.TotalOpen() != 0 {
		t.Error("session still open after quit")
	}
}

func TestBridgeDropsUnderLag(t *testing.T) {
	b := NewBridge(1)
	b.Observe(router.Event{Kind: router.EventMessage})
	b.Observe(router.Event{Kind: router.EventMessage})
	b.Observe(router.Event{Kind: router.EventInputLost})

	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d", b.Dropped())
	}
	if ev := ListenForEvents(b)().(EventMsg); ev.Kind != router.EventInputLost {
		t.Errorf("first event = %v, want input lost", ev.Kind)
	}
}

func TestListenForDevicesEnds(t *testing.T) {
	if ListenForDevices(nil) != nil {
		t.Error("nil channel should give nil command")
	}
	ch := make(chan midi.Snapshot, 1)
	ch <- midi.Snapshot{Inputs: []string{"Keys"}}
	close(ch)
	cmd := ListenForDevices(ch)
	if s, ok := cmd().(watchMsg); !ok || s.Inputs[0] != "Keys" {
		t.Errorf("first = %v", s)
	}
	if msg := cmd(); msg != nil {
		t.Errorf("after close = %v", msg)
	}
}

func TestStopAfterInputLostKeepsError(t *testing.T) {
	m := newTestModel(t, miditest.New())
	m.running = true
	m.pending = true
	m.session = 1

	lost := &router.InputLostError{Port: "Keys", Err: midi.ErrInputLost}
	m = update(m, EventMsg(router.Event{Kind: router.EventInputLost, Err: lost, Session: 1}))
	m = update(m, stoppedMsg{})

	if m.kind != statusError || !strings.Contains(m.Status(), "Keys") {
		t.Errorf("status = %q, want the input-lost error", m.Status())
	}
	if m.Running() || m.pending {
		t.Errorf("running = %v, pending = %v", m.Running(), m.pending)
	}
}

func TestWatchScanErrorWarns(t *testing.T) {
	m := newTestModel(t, miditest.New())
	ch := make(chan midi.Snapshot, 1)
	m.devices = ch

	next, cmd := m.Update(watchMsg(midi.Snapshot{Inputs: []string{}, Outputs: []string{}, Err: midi.ErrEnumTimeout}))
	m = next.(Model)
	if m.kind != statusWarn || !strings.Contains(m.Status(), "device scan failed") {
		t.Errorf("status = %q", m.Status())
	}
	if cmd == nil {
		t.Error("watch listener not re-armed")
	}
}
