package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"midi-router/midi"
	"midi-router/router"
	"midi-router/theme"
	"midi-router/widgets"
)

// NoOutput is the output choice that leaves a slot unused.
const NoOutput = "(none)"

// focus identifies which selector the arrow keys move
type focus int

const (
	focusInput focus = iota
	focusOut1
	focusOut2
	numFocus
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusWarn
	statusError
)

type startedMsg struct {
	session uint64
	route   router.Route
	err     error
}

type stoppedMsg struct {
	err error
}

type Model struct {
	Registry *midi.Registry
	Session  *router.Session
	Theme    *theme.Theme
	Log      *zap.Logger

	bridge  *Bridge
	devices <-chan midi.Snapshot

	inputs  []string
	outputs []string // choices for the output selectors, NoOutput first
	cursor  [numFocus]int
	focus   focus

	running  bool
	pending  bool // start or stop in flight
	session  uint64
	route    router.Route
	message  string
	count    uint64
	status   string
	kind     statusKind
	quitting bool
}

// NewModel builds the UI. devices may be nil when hot-plug watching is off.
func NewModel(reg *midi.Registry, session *router.Session, bridge *Bridge, devices <-chan midi.Snapshot, th *theme.Theme, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}
	return Model{
		Registry: reg,
		Session:  session,
		Theme:    th,
		Log:      log,
		bridge:   bridge,
		devices:  devices,
		outputs:  []string{NoOutput},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		refresh(m.Registry),
		ListenForEvents(m.bridge),
		ListenForDevices(m.devices),
	)
}

func refresh(reg *midi.Registry) tea.Cmd {
	return func() tea.Msg {
		return DevicesMsg(reg.Snapshot())
	}
}

func startSession(s *router.Session, route router.Route, observer router.Observer) tea.Cmd {
	return func() tea.Msg {
		id, err := s.Start(route, observer)
		return startedMsg{session: id, route: route, err: err}
	}
}

func stopSession(s *router.Session) tea.Cmd {
	return func() tea.Msg {
		return stoppedMsg{err: s.Stop()}
	}
}

// StartEnabled reports whether the Start action is available.
func (m Model) StartEnabled() bool {
	return !m.running && !m.pending && len(m.inputs) > 0
}

// StopEnabled reports whether the Stop action is available.
func (m Model) StopEnabled() bool {
	return m.running && !m.pending
}

// Running reports whether the UI believes a session is relaying.
func (m Model) Running() bool {
	return m.running
}

// Message returns the text of the last forwarded message.
func (m Model) Message() string {
	return m.message
}

// Status returns the status line text.
func (m Model) Status() string {
	return m.status
}

// Selection returns the route described by the selectors.
func (m Model) Selection() router.Route {
	var r router.Route
	if len(m.inputs) > 0 {
		r.Input = m.inputs[m.cursor[focusInput]]
	}
	for _, f := range []focus{focusOut1, focusOut2} {
		if name := m.outputs[m.cursor[f]]; name != NoOutput {
			r.Outputs = append(r.Outputs, name)
		}
	}
	return r
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case DevicesMsg:
		m.setPorts(midi.Snapshot(msg))
		if msg.Err != nil {
			m.setStatus(statusWarn, fmt.Sprintf("device scan failed: %v", msg.Err))
		}
		return m, nil

	case watchMsg:
		m.setPorts(midi.Snapshot(msg))
		if msg.Err != nil {
			m.setStatus(statusWarn, fmt.Sprintf("device scan failed: %v", msg.Err))
		}
		return m, ListenForDevices(m.devices)

	case EventMsg:
		m.handleEvent(router.Event(msg))
		return m, ListenForEvents(m.bridge)

	case startedMsg:
		m.pending = false
		if msg.err != nil {
			m.running = false
			m.setStatus(statusError, msg.err.Error())
			return m, nil
		}
		m.running = true
		m.session = msg.session
		m.route = msg.route.Normalize()
		m.setStatus(statusInfo, "forwarding "+describe(m.route))
		return m, nil

	case stoppedMsg:
		m.pending = false
		if msg.err != nil {
			m.setStatus(statusError, msg.err.Error())
			if errors.Is(msg.err, router.ErrStopTimeout) {
				return m, nil
			}
		} else if m.running {
			// a session that already ended keeps its error on screen
			m.setStatus(statusInfo, "stopped")
		}
		m.running = false
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if err := m.Session.Stop(); err != nil {
			m.Log.Error("stop on quit", zap.Error(err))
		}
		return m, tea.Quit

	case "tab", "right", "l":
		m.focus = (m.focus + 1) % numFocus

	case "shift+tab", "left", "h":
		m.focus = (m.focus + numFocus - 1) % numFocus

	case "up", "k":
		if m.cursor[m.focus] > 0 {
			m.cursor[m.focus]--
		}

	case "down", "j":
		if m.cursor[m.focus] < m.listLen(m.focus)-1 {
			m.cursor[m.focus]++
		}

	case "s", "enter":
		if !m.StartEnabled() {
			return m, nil
		}
		route := m.Selection()
		m.Log.Info("start requested", zap.String("input", route.Input), zap.Strings("outputs", route.Outputs))
		m.pending = true
		m.setStatus(statusInfo, "starting...")
		return m, startSession(m.Session, route, m.bridge.Observe)

	case "x":
		if !m.StopEnabled() {
			return m, nil
		}
		m.pending = true
		m.setStatus(statusInfo, "stopping...")
		return m, stopSession(m.Session)

	case "r":
		return m, refresh(m.Registry)
	}

	return m, nil
}

func (m *Model) handleEvent(ev router.Event) {
	if ev.Session < m.session {
		// late event from a session that was replaced
		return
	}
	m.session = ev.Session
	switch ev.Kind {
	case router.EventMessage:
		m.message = ev.Message.String()
		m.count++
	case router.EventSendFailed:
		m.setStatus(statusWarn, ev.Err.Error())
	case router.EventInputLost:
		m.running = false
		m.setStatus(statusError, ev.Err.Error())
	}
}

func (m Model) listLen(f focus) int {
	if f == focusInput {
		return len(m.inputs)
	}
	return len(m.outputs)
}

// setPorts replaces the port lists, keeping the chosen names when they
// still exist.
func (m *Model) setPorts(s midi.Snapshot) {
	prevIn := ""
	if len(m.inputs) > 0 {
		prevIn = m.inputs[m.cursor[focusInput]]
	}
	prevOut := [2]string{m.outputs[m.cursor[focusOut1]], m.outputs[m.cursor[focusOut2]]}

	m.inputs = s.Inputs
	m.outputs = append([]string{NoOutput}, s.Outputs...)

	m.cursor[focusInput] = indexOf(m.inputs, prevIn)
	m.cursor[focusOut1] = indexOf(m.outputs, prevOut[0])
	m.cursor[focusOut2] = indexOf(m.outputs, prevOut[1])
}

func indexOf(list []string, name string) int {
	for i, n := range list {
		if n == name {
			return i
		}
	}
	return 0
}

func (m *Model) setStatus(k statusKind, text string) {
	m.kind = k
	m.status = text
}

func describe(r router.Route) string {
	if len(r.Outputs) == 0 {
		return r.Input + " (no outputs)"
	}
	return r.Input + " → " + strings.Join(r.Outputs, ", ")
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(th.FG())
	column := lipgloss.NewStyle().Width(28).MarginRight(2)

	list := widgets.ListStyle{
		Title:    dimStyle,
		Focused:  headerStyle,
		Item:     fgStyle,
		Cursor:   lipgloss.NewStyle().Foreground(th.Accent()),
		Empty:    dimStyle.Italic(true),
		Mark:     th.Symbols.Cursor,
		Selected: th.Symbols.Selected,
	}

	state := fmt.Sprintf("%c idle", th.Symbols.Stopped)
	if m.running {
		state = lipgloss.NewStyle().Foreground(th.Success()).Render(fmt.Sprintf("%c %s", th.Symbols.Running, describe(m.route)))
	}
	header := headerStyle.Render("MIDI Router") + "  " + state

	lists := lipgloss.JoinHorizontal(lipgloss.Top,
		column.Render(widgets.RenderList("Input", m.inputs, m.cursor[focusInput], m.cursor[focusInput], m.focus == focusInput, "no input ports", list)),
		column.Render(widgets.RenderList("Output 1", m.outputs, m.cursor[focusOut1], m.cursor[focusOut1], m.focus == focusOut1, "no output ports", list)),
		column.Render(widgets.RenderList("Output 2", m.outputs, m.cursor[focusOut2], m.cursor[focusOut2], m.focus == focusOut2, "no output ports", list)),
	)

	on := lipgloss.NewStyle().Foreground(th.FG()).Bold(true)
	off := dimStyle
	buttons := strings.Join([]string{
		widgets.RenderButton("Start", m.StartEnabled(), on, off),
		widgets.RenderButton("Stop", m.StopEnabled(), on, off),
		widgets.RenderButton("Refresh Devices", true, on, off),
	}, "  ")

	message := "None"
	if m.message != "" {
		message = m.message
	}
	label := fgStyle.Render("MIDI Message: " + message)
	if m.count > 0 {
		label += dimStyle.Render(fmt.Sprintf("  (%d forwarded", m.count))
		if d := m.bridge.Dropped(); d > 0 {
			label += dimStyle.Render(fmt.Sprintf(", %d not shown", d))
		}
		label += dimStyle.Render(")")
	}

	var statusLine string
	switch m.kind {
	case statusWarn:
		statusLine = lipgloss.NewStyle().Foreground(th.Warning()).Render(m.status)
	case statusError:
		statusLine = lipgloss.NewStyle().Foreground(th.Error()).Render(m.status)
	default:
		statusLine = dimStyle.Render(m.status)
	}

	help := dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{{
		Keys: []widgets.KeyBinding{
			{Key: "tab/←→", Desc: "switch list"},
			{Key: "↑↓ / jk", Desc: "choose port"},
			{Key: "s/enter", Desc: "start"},
			{Key: "x", Desc: "stop"},
			{Key: "r", Desc: "refresh devices"},
			{Key: "q", Desc: "quit"},
		},
	}}))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(lists)
	out.WriteString("\n\n")
	out.WriteString(buttons)
	out.WriteString("\n\n")
	out.WriteString(label)
	out.WriteString("\n")
	out.WriteString(statusLine)
	out.WriteString("\n\n")
	out.WriteString(help)
	out.WriteString("\n")

	return out.String()
}
