package midi

import (
	"fmt"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
)

// RtmidiDriver adapts a gomidi driver (rtmidi by default) to Driver.
type RtmidiDriver struct {
	drv              drivers.Driver
	log              *zap.Logger
	presenceInterval time.Duration
	enumTimeout      time.Duration
}

// Option configures an RtmidiDriver
type Option func(*RtmidiDriver)

// WithLogger sets the logger used for driver diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(d *RtmidiDriver) {
		d.log = l
	}
}

// WithPresenceInterval sets how often an open input checks that its port
// is still listed. Zero disables the check.
func WithPresenceInterval(interval time.Duration) Option {
	return func(d *RtmidiDriver) {
		d.presenceInterval = interval
	}
}

// WithEnumTimeout bounds port enumeration (CoreMIDI can hang).
func WithEnumTimeout(timeout time.Duration) Option {
	return func(d *RtmidiDriver) {
		d.enumTimeout = timeout
	}
}

// NewRtmidiDriver opens the rtmidi backend.
func NewRtmidiDriver(opts ...Option) (*RtmidiDriver, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("create rtmidi driver: %w", err)
	}
	return NewDriver(drv, opts...), nil
}

// NewDriver wraps any gomidi driver.
func NewDriver(drv drivers.Driver, opts ...Option) *RtmidiDriver {
	d := &RtmidiDriver{
		drv:              drv,
		log:              zap.NewNop(),
		presenceInterval: time.Second,
		enumTimeout:      3 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *RtmidiDriver) Ins() ([]string, error) {
	ports, err := d.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("get midi inputs: %w", err)
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	return names, nil
}

func (d *RtmidiDriver) Outs() ([]string, error) {
	ports, err := d.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("get midi outputs: %w", err)
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	return names, nil
}

func (d *RtmidiDriver) findIn(name string) (drivers.In, error) {
	ports, err := d.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("get midi inputs: %w", err)
	}
	for _, p := range ports {
		if p.String() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: input %q", ErrPortNotFound, name)
}

func (d *RtmidiDriver) findOut(name string) (drivers.Out, error) {
	ports, err := d.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("get midi outputs: %w", err)
	}
	for _, p := range ports {
		if p.String() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: output %q", ErrPortNotFound, name)
}

// OpenIn opens the named input and starts queueing its messages.
func (d *RtmidiDriver) OpenIn(name string) (In, error) {
	port, err := d.findIn(name)
	if err != nil {
		return nil, err
	}

	in := &rtIn{
		name:   name,
		port:   port,
		driver: d,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	stop, err := gomidi.ListenTo(port, in.receive, gomidi.UseSysEx(), gomidi.HandleError(in.fail))
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("listen on %q: %w", name, err)
	}
	in.stop = stop
	if d.presenceInterval > 0 {
		go in.watchPresence()
	}

	d.log.Debug("input opened", zap.String("port", name))
	return in, nil
}

// OpenOut opens the named output.
func (d *RtmidiDriver) OpenOut(name string) (Out, error) {
	port, err := d.findOut(name)
	if err != nil {
		return nil, err
	}

	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", name, err)
	}

	d.log.Debug("output opened", zap.String("port", name))
	return &rtOut{name: name, port: port, send: send, log: d.log}, nil
}

// Close shuts the backend down, closing any port still open.
func (d *RtmidiDriver) Close() error {
	return d.drv.Close()
}

// rtIn buffers messages delivered by the driver callback until Pending
// collects them. Presence is checked on its own goroutine so a hung
// enumeration never stalls Pending.
type rtIn struct {
	name   string
	port   drivers.In
	driver *RtmidiDriver
	stop   func()

	mu    sync.Mutex
	queue []gomidi.Message
	err   error
	ready chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func (in *rtIn) Name() string {
	return in.name
}

func (in *rtIn) Ready() <-chan struct{} {
	return in.ready
}

func (in *rtIn) receive(msg gomidi.Message, timestampms int32) {
	// the driver may reuse its buffer
	cp := make(gomidi.Message, len(msg))
	copy(cp, msg)

	in.mu.Lock()
	in.queue = append(in.queue, cp)
	in.mu.Unlock()

	select {
	case in.ready <- struct{}{}:
	default:
	}
}

func (in *rtIn) fail(err error) {
	in.driver.log.Warn("input error", zap.String("port", in.name), zap.Error(err))
	in.lose(fmt.Errorf("%w: %s: %v", ErrInputLost, in.name, err))
}

// lose records the first loss and wakes the reader.
func (in *rtIn) lose(err error) {
	in.mu.Lock()
	if in.err == nil {
		in.err = err
	}
	in.mu.Unlock()

	select {
	case in.ready <- struct{}{}:
	default:
	}
}

func (in *rtIn) Pending() ([]gomidi.Message, error) {
	in.mu.Lock()
	msgs := in.queue
	in.queue = nil
	err := in.err
	in.mu.Unlock()
	return msgs, err
}

// watchPresence re-lists the inputs every presenceInterval until Close.
func (in *rtIn) watchPresence() {
	ticker := time.NewTicker(in.driver.presenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-in.done:
			return
		case <-ticker.C:
		}
		if err := in.checkPresent(); err != nil {
			in.lose(err)
			return
		}
	}
}

// checkPresent reports ErrInputLost once the port is no longer listed.
// A hung or failing enumeration is not treated as loss.
func (in *rtIn) checkPresent() error {
	names, err := Enumerate(in.driver.Ins, in.driver.enumTimeout)
	if err != nil {
		in.driver.log.Debug("presence check skipped", zap.String("port", in.name), zap.Error(err))
		return nil
	}
	for _, n := range names {
		if n == in.name {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is no longer listed", ErrInputLost, in.name)
}

func (in *rtIn) Close() error {
	var err error
	in.closeOnce.Do(func() {
		close(in.done)
		if in.stop != nil {
			in.stop()
		}
		err = in.port.Close()
		in.driver.log.Debug("input closed", zap.String("port", in.name))
	})
	return err
}

type rtOut struct {
	name      string
	port      drivers.Out
	send      func(gomidi.Message) error
	log       *zap.Logger
	closeOnce sync.Once
}

func (o *rtOut) Name() string {
	return o.name
}

func (o *rtOut) Send(msg gomidi.Message) error {
	return o.send(msg)
}

func (o *rtOut) Close() error {
	var err error
	o.closeOnce.Do(func() {
		err = o.port.Close()
		o.log.Debug("output closed", zap.String("port", o.name))
	})
	return err
}
