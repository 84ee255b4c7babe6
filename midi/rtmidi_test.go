package midi

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/testdrv"
	"go.uber.org/zap/zaptest"
)

// hidingDriver can pretend its inputs were unplugged, or that listing
// them hangs the way a stuck CoreMIDI does.
type hidingDriver struct {
	drivers.Driver
	hidden  atomic.Bool
	hang    atomic.Bool
	release chan struct{}
}

func (h *hidingDriver) Ins() ([]drivers.In, error) {
	if h.hang.Load() {
		<-h.release
	}
	if h.hidden.Load() {
		return nil, nil
	}
	return h.Driver.Ins()
}

func newTestDriver(t *testing.T, opts ...Option) (*RtmidiDriver, *hidingDriver) {
	t.Helper()
	hd := &hidingDriver{Driver: testdrv.New("router-test"), release: make(chan struct{})}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	d := NewDriver(hd, opts...)
	t.Cleanup(func() { d.Close() })
	t.Cleanup(func() { close(hd.release) })
	return d, hd
}

func TestDriverEnumerates(t *testing.T) {
	d, _ := newTestDriver(t)

	ins, err := d.Ins()
	if err != nil {
		t.Fatalf("Ins: %v", err)
	}
	outs, err := d.Outs()
	if err != nil {
		t.Fatalf("Outs: %v", err)
	}
	if len(ins) == 0 || len(outs) == 0 {
		t.Fatalf("expected ports, got ins=%v outs=%v", ins, outs)
	}
}

func TestDriverOpenUnknownPort(t *testing.T) {
	d, _ := newTestDriver(t)

	if _, err := d.OpenIn("no such input"); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("OpenIn error = %v, want ErrPortNotFound", err)
	}
	if _, err := d.OpenOut("no such output"); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("OpenOut error = %v, want ErrPortNotFound", err)
	}
}

func TestDriverOpenClose(t *testing.T) {
	d, _ := newTestDriver(t)
	ins, _ := d.Ins()
	outs, _ := d.Outs()

	in, err := d.OpenIn(ins[0])
	if err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	if in.Name() != ins[0] {
		t.Errorf("Name() = %q, want %q", in.Name(), ins[0])
	}
	if _, ok := in.(Notifier); !ok {
		t.Error("rtmidi input should implement Notifier")
	}

	out, err := d.OpenOut(outs[0])
	if err != nil {
		t.Fatalf("OpenOut: %v", err)
	}

	if msgs, err := in.Pending(); err != nil || len(msgs) != 0 {
		t.Errorf("Pending() = %v, %v; want nothing", msgs, err)
	}

	if err := out.Close(); err != nil {
		t.Errorf("out.Close: %v", err)
	}
	if err := in.Close(); err != nil {
		t.Errorf("in.Close: %v", err)
	}
	// closing twice is harmless
	if err := in.Close(); err != nil {
		t.Errorf("second in.Close: %v", err)
	}
}

func TestDriverDetectsUnplug(t *testing.T) {
	d, hd := newTestDriver(t, WithPresenceInterval(time.Millisecond))
	ins, _ := d.Ins()

	in, err := d.OpenIn(ins[0])
	if err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	defer in.Close()

	hd.hidden.Store(true)

	deadline := time.After(2 * time.Second)
	for {
		if _, err := in.Pending(); errors.Is(err, ErrInputLost) {
			return
		}
		select {
		case <-in.(Notifier).Ready():
		case <-deadline:
			t.Fatal("unplug not reported")
		}
	}
}

func TestPendingDoesNotWaitForHungEnumeration(t *testing.T) {
	d, hd := newTestDriver(t, WithPresenceInterval(time.Millisecond), WithEnumTimeout(3*time.Second))
	ins, _ := d.Ins()

	in, err := d.OpenIn(ins[0])
	if err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	defer in.Close()

	hd.hang.Store(true)
	time.Sleep(10 * time.Millisecond) // let a presence check start and block

	start := time.Now()
	for i := 0; i < 10; i++ {
		if _, err := in.Pending(); err != nil {
			t.Fatalf("Pending: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Pending took %s while enumeration hung", elapsed)
	}
}

func TestEnumerateTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	_, err := Enumerate(func() ([]string, error) {
		<-block
		return nil, nil
	}, 10*time.Millisecond)
	if !errors.Is(err, ErrEnumTimeout) {
		t.Errorf("Enumerate error = %v, want ErrEnumTimeout", err)
	}

	names, err := Enumerate(func() ([]string, error) { return nil, nil }, 0)
	if err != nil || names == nil {
		t.Errorf("Enumerate = %#v, %v; want empty slice", names, err)
	}
}
