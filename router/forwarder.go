package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"

	"midi-router/midi"
)

// Route names one input and the outputs it feeds, in send order.
type Route struct {
	Input   string
	Outputs []string
}

// Normalize drops empty and repeated output names, keeping first
// occurrences in order, so every port is opened once.
func (r Route) Normalize() Route {
	seen := make(map[string]bool, len(r.Outputs))
	outs := make([]string, 0, len(r.Outputs))
	for _, name := range r.Outputs {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		outs = append(outs, name)
	}
	return Route{Input: r.Input, Outputs: outs}
}

// Forwarder relays every message from one input to a fixed list of
// outputs on a dedicated goroutine.
type Forwarder struct {
	driver       midi.Driver
	log          *zap.Logger
	pollInterval time.Duration
	stopTimeout  time.Duration

	lifecycle sync.Mutex // serialises Start and Stop

	mu     sync.Mutex
	state  State
	route  Route
	cancel context.CancelFunc
	done   chan struct{}
}

// ForwarderOption configures a Forwarder
type ForwarderOption func(*Forwarder)

func WithLogger(l *zap.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.log = l
	}
}

// WithPollInterval sets the wait between drains when the input has no
// ready signal.
func WithPollInterval(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.pollInterval = d
	}
}

// WithStopTimeout bounds how long Stop waits for the relay loop. Zero
// waits forever.
func WithStopTimeout(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.stopTimeout = d
	}
}

// NewForwarder creates an idle forwarder over driver.
func NewForwarder(driver midi.Driver, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		driver:       driver,
		log:          zap.NewNop(),
		pollInterval: 5 * time.Millisecond,
		stopTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current lifecycle state.
func (f *Forwarder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Route returns the route of the current or last session.
func (f *Forwarder) Route() Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route
}

func (f *Forwarder) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Start opens the route's ports and begins relaying. If any port fails to
// open, the ports already opened are closed and a *PortOpenError returned.
// Start on a forwarder that is not Idle returns ErrBusy.
func (f *Forwarder) Start(route Route, observer Observer) error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	f.mu.Lock()
	if f.state != Idle {
		f.mu.Unlock()
		return ErrBusy
	}
	f.state = Starting
	f.mu.Unlock()

	route = route.Normalize()
	in, outs, err := f.open(route)
	if err != nil {
		f.setState(Idle)
		f.log.Warn("could not start forwarding", zap.Error(err))
		return err
	}

	if observer == nil {
		observer = func(Event) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	f.mu.Lock()
	f.state = Running
	f.route = route
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	go f.run(ctx, done, in, outs, observer)

	f.log.Info("forwarding started",
		zap.String("input", route.Input),
		zap.Strings("outputs", route.Outputs))
	return nil
}

func (f *Forwarder) open(route Route) (midi.In, []midi.Out, error) {
	in, err := f.driver.OpenIn(route.Input)
	if err != nil {
		return nil, nil, &PortOpenError{Port: route.Input, Dir: DirInput, Err: err}
	}

	outs := make([]midi.Out, 0, len(route.Outputs))
	for _, name := range route.Outputs {
		out, err := f.driver.OpenOut(name)
		if err != nil {
			f.closeAll(in, outs)
			return nil, nil, &PortOpenError{Port: name, Dir: DirOutput, Err: err}
		}
		outs = append(outs, out)
	}
	return in, outs, nil
}

// Stop ends the session and waits for the relay loop to close its ports.
// Stop on an idle forwarder does nothing.
func (f *Forwarder) Stop() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	f.mu.Lock()
	cancel, done := f.cancel, f.done
	if f.state == Running {
		f.state = Stopping
	}
	f.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	var timeout <-chan time.Time
	if f.stopTimeout > 0 {
		timer := time.NewTimer(f.stopTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
	case <-timeout:
		f.log.Error("relay loop did not exit", zap.Duration("timeout", f.stopTimeout))
		return ErrStopTimeout
	}

	f.mu.Lock()
	f.cancel = nil
	f.done = nil
	f.mu.Unlock()

	f.log.Info("forwarding stopped")
	return nil
}

func (f *Forwarder) run(ctx context.Context, done chan struct{}, in midi.In, outs []midi.Out, observer Observer) {
	var lost error

	defer func() {
		f.setState(Stopping)
		f.closeAll(in, outs)
		f.setState(Idle)
		if lost != nil {
			notify(observer, Event{Kind: EventInputLost, Err: lost, Time: time.Now()})
		}
		close(done)
	}()

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	var ready <-chan struct{}
	if n, ok := in.(midi.Notifier); ok {
		ready = n.Ready()
	}

	for {
		if err := f.drain(in, outs, observer); err != nil {
			lost = &InputLostError{Port: in.Name(), Err: err}
			f.log.Error("input lost", zap.String("port", in.Name()), zap.Error(err))
			return
		}

		select {
		case <-ctx.Done():
			// deliver whatever arrived before Stop
			if err := f.drain(in, outs, observer); err != nil {
				f.log.Warn("input error while stopping", zap.String("port", in.Name()), zap.Error(err))
			}
			return
		case <-ticker.C:
		case <-ready:
		}
	}
}

// drain forwards everything pending on in. A panic anywhere in the relay
// path is returned as an error so the session ends cleanly.
func (f *Forwarder) drain(in midi.In, outs []midi.Out, observer Observer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("relay panic: %v", r)
		}
	}()

	msgs, err := in.Pending()
	for _, msg := range msgs {
		f.forward(msg, outs, observer)
	}
	return err
}

// forward sends msg to every output in order, then notifies. A failing
// output does not stop delivery to the others, and failures are reported
// only once every output has been tried.
func (f *Forwarder) forward(msg gomidi.Message, outs []midi.Out, observer Observer) {
	var failed []error
	for _, out := range outs {
		if err := out.Send(msg); err != nil {
			f.log.Warn("send failed",
				zap.String("port", out.Name()),
				zap.Stringer("message", msg),
				zap.Error(err))
			failed = append(failed, &PortSendError{Port: out.Name(), Message: msg, Err: err})
		}
	}
	for _, err := range failed {
		observer(Event{Kind: EventSendFailed, Message: msg, Err: err, Time: time.Now()})
	}
	observer(Event{Kind: EventMessage, Message: msg, Time: time.Now()})
}

func (f *Forwarder) closeAll(in midi.In, outs []midi.Out) {
	for _, out := range outs {
		if err := out.Close(); err != nil {
			f.log.Warn("close output", zap.String("port", out.Name()), zap.Error(err))
		}
	}
	if err := in.Close(); err != nil {
		f.log.Warn("close input", zap.String("port", in.Name()), zap.Error(err))
	}
}

func notify(observer Observer, ev Event) {
	defer func() {
		recover()
	}()
	observer(ev)
}
