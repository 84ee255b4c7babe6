// Package miditest provides an in-memory midi.Driver for tests.
package miditest

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"midi-router/midi"
)

// Driver is a thread-safe fake MIDI backend. Ports are created with AddIn
// and AddOut; messages are injected with Inject and recorded per output.
type Driver struct {
	mu sync.Mutex

	ins  []string
	outs []string

	queues  map[string][]gomidi.Message
	ready   map[string]chan struct{}
	lost    map[string]error
	sent    map[string][]gomidi.Message
	openErr map[string]error
	sendErr map[string]error
	enumErr error
	open    map[string]int
	opens   map[string]int
	closed  bool
	onSend  func(port string, msg gomidi.Message)
}

// New returns an empty driver.
func New() *Driver {
	return &Driver{
		queues:  make(map[string][]gomidi.Message),
		ready:   make(map[string]chan struct{}),
		lost:    make(map[string]error),
		sent:    make(map[string][]gomidi.Message),
		openErr: make(map[string]error),
		sendErr: make(map[string]error),
		open:    make(map[string]int),
		opens:   make(map[string]int),
	}
}

// AddIn lists a new input port.
func (d *Driver) AddIn(names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ins = append(d.ins, names...)
}

// AddOut lists a new output port.
func (d *Driver) AddOut(names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outs = append(d.outs, names...)
}

// RemoveIn unlists an input without affecting open handles.
func (d *Driver) RemoveIn(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ins = remove(d.ins, name)
}

// Unplug unlists the input and makes open handles report midi.ErrInputLost.
func (d *Driver) Unplug(name string) {
	d.mu.Lock()
	d.ins = remove(d.ins, name)
	d.lost[name] = fmt.Errorf("%w: %s unplugged", midi.ErrInputLost, name)
	ch := d.ready[name]
	d.mu.Unlock()
	signal(ch)
}

// Inject queues messages on an input, as if the device had sent them.
func (d *Driver) Inject(name string, msgs ...gomidi.Message) {
	d.mu.Lock()
	d.queues[name] = append(d.queues[name], msgs...)
	ch := d.ready[name]
	d.mu.Unlock()
	signal(ch)
}

// FailOpen makes the next opens of name fail with err (nil clears).
func (d *Driver) FailOpen(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.openErr, name)
		return
	}
	d.openErr[name] = err
}

// FailSend makes sends to the output fail with err (nil clears).
func (d *Driver) FailSend(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.sendErr, name)
		return
	}
	d.sendErr[name] = err
}

// FailEnum makes enumeration fail with err (nil clears).
func (d *Driver) FailEnum(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumErr = err
}

// OnSend registers a hook called for every successful send, in send order.
func (d *Driver) OnSend(fn func(port string, msg gomidi.Message)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSend = fn
}

// Sent returns what was sent to an output.
func (d *Driver) Sent(name string) []gomidi.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gomidi.Message(nil), d.sent[name]...)
}

// OpenHandles returns the number of currently open handles on a port.
func (d *Driver) OpenHandles(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open[name]
}

// TotalOpen returns the number of open handles over all ports.
func (d *Driver) TotalOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.open {
		n += c
	}
	return n
}

// Opens returns how many times a port was opened.
func (d *Driver) Opens(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[name]
}

func (d *Driver) Ins() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enumErr != nil {
		return nil, d.enumErr
	}
	return append([]string{}, d.ins...), nil
}

func (d *Driver) Outs() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enumErr != nil {
		return nil, d.enumErr
	}
	return append([]string{}, d.outs...), nil
}

func (d *Driver) OpenIn(name string) (midi.In, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.openErr[name]; err != nil {
		return nil, err
	}
	if !contains(d.ins, name) {
		return nil, fmt.Errorf("%w: input %q", midi.ErrPortNotFound, name)
	}
	if d.open[name] > 0 {
		return nil, fmt.Errorf("input %q is busy", name)
	}
	ch := make(chan struct{}, 1)
	d.ready[name] = ch
	delete(d.lost, name)
	d.open[name]++
	d.opens[name]++
	return &input{name: name, d: d, ready: ch}, nil
}

func (d *Driver) OpenOut(name string) (midi.Out, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.openErr[name]; err != nil {
		return nil, err
	}
	if !contains(d.outs, name) {
		return nil, fmt.Errorf("%w: output %q", midi.ErrPortNotFound, name)
	}
	d.open[name]++
	d.opens[name]++
	return &output{name: name, d: d}, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) release(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open[name] == 0 {
		return fmt.Errorf("port %q closed twice", name)
	}
	d.open[name]--
	return nil
}

type input struct {
	name   string
	d      *Driver
	ready  chan struct{}
	mu     sync.Mutex
	closed bool
}

func (in *input) Name() string {
	return in.name
}

func (in *input) Ready() <-chan struct{} {
	return in.ready
}

func (in *input) Pending() ([]gomidi.Message, error) {
	in.d.mu.Lock()
	defer in.d.mu.Unlock()
	msgs := in.d.queues[in.name]
	delete(in.d.queues, in.name)
	return msgs, in.d.lost[in.name]
}

func (in *input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return fmt.Errorf("input %q already closed", in.name)
	}
	in.closed = true
	return in.d.release(in.name)
}

type output struct {
	name   string
	d      *Driver
	mu     sync.Mutex
	closed bool
}

func (o *output) Name() string {
	return o.name
}

func (o *output) Send(msg gomidi.Message) error {
	o.d.mu.Lock()
	if err := o.d.sendErr[o.name]; err != nil {
		o.d.mu.Unlock()
		return err
	}
	o.d.sent[o.name] = append(o.d.sent[o.name], msg)
	hook := o.d.onSend
	o.d.mu.Unlock()

	if hook != nil {
		hook(o.name, msg)
	}
	return nil
}

func (o *output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("output %q already closed", o.name)
	}
	o.closed = true
	return o.d.release(o.name)
}

func signal(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func remove(list []string, name string) []string {
	out := list[:0]
	for _, n := range list {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
