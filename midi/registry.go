package midi

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Snapshot is one enumeration of the MIDI subsystem.
type Snapshot struct {
	Inputs  []string
	Outputs []string
	Err     error // first enumeration failure, if any
}

// Equal reports whether both snapshots list the same ports.
func (s Snapshot) Equal(o Snapshot) bool {
	return slices.Equal(s.Inputs, o.Inputs) && slices.Equal(s.Outputs, o.Outputs)
}

// Registry answers "which ports exist right now". Nothing is cached.
type Registry struct {
	lister  Lister
	log     *zap.Logger
	timeout time.Duration
}

// NewRegistry creates a registry over lister. A zero timeout disables the
// enumeration deadline.
func NewRegistry(lister Lister, log *zap.Logger, timeout time.Duration) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{lister: lister, log: log, timeout: timeout}
}

// Inputs returns current input names; empty on failure.
func (r *Registry) Inputs() []string {
	names, _ := r.inputs()
	return names
}

// Outputs returns current output names; empty on failure.
func (r *Registry) Outputs() []string {
	names, _ := r.outputs()
	return names
}

// Snapshot enumerates inputs and outputs.
func (r *Registry) Snapshot() Snapshot {
	var s Snapshot
	var inErr, outErr error
	s.Inputs, inErr = r.inputs()
	s.Outputs, outErr = r.outputs()
	if inErr != nil {
		s.Err = inErr
	} else {
		s.Err = outErr
	}
	return s
}

func (r *Registry) inputs() ([]string, error) {
	names, err := Enumerate(r.lister.Ins, r.timeout)
	if err != nil {
		r.log.Warn("could not enumerate midi inputs", zap.Error(err))
		return []string{}, err
	}
	return names, nil
}

func (r *Registry) outputs() ([]string, error) {
	names, err := Enumerate(r.lister.Outs, r.timeout)
	if err != nil {
		r.log.Warn("could not enumerate midi outputs", zap.Error(err))
		return []string{}, err
	}
	return names, nil
}

// Watch polls the registry and emits a snapshot whenever the set of ports
// changes. The first scan is always emitted. The channel is closed when ctx
// is done.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) <-chan Snapshot {
	events := make(chan Snapshot, 1)

	go func() {
		defer close(events)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last Snapshot
		first := true
		for {
			s := r.Snapshot()
			if first || !s.Equal(last) {
				first = false
				last = s
				select {
				case events <- s:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return events
}

// Enumerate runs fn with a deadline. A driver that hangs is abandoned and
// ErrEnumTimeout returned.
func Enumerate(fn func() ([]string, error), timeout time.Duration) ([]string, error) {
	if timeout <= 0 {
		names, err := fn()
		if names == nil && err == nil {
			names = []string{}
		}
		return names, err
	}

	type result struct {
		names []string
		err   error
	}

	ch := make(chan result, 1)
	go func() {
		names, err := fn()
		ch <- result{names: names, err: err}
	}()

	select {
	case res := <-ch:
		if res.names == nil && res.err == nil {
			res.names = []string{}
		}
		return res.names, res.err
	case <-time.After(timeout):
		return nil, ErrEnumTimeout
	}
}
