package router

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Session is the handle the controlling layer owns. It keeps at most one
// forwarding session alive: Start always tears down the previous one
// first. Events are tagged with a session number so late events from an
// earlier session can be told apart.
type Session struct {
	fwd *Forwarder
	log *zap.Logger

	mu  sync.Mutex
	seq uint64
}

// NewSession wraps fwd.
func NewSession(fwd *Forwarder, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{fwd: fwd, log: log}
}

// Start stops any running session, then starts route. It returns the new
// session number.
func (s *Session) Start(route Route, observer Observer) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fwd.Stop(); err != nil {
		return 0, fmt.Errorf("stop previous session: %w", err)
	}

	s.seq++
	id := s.seq
	tagged := func(ev Event) {
		ev.Session = id
		if observer != nil {
			observer(ev)
		}
	}

	if err := s.fwd.Start(route, tagged); err != nil {
		return 0, err
	}
	s.log.Debug("session started", zap.Uint64("session", id))
	return id, nil
}

// Stop ends the current session, if any.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fwd.Stop()
}

// Current returns the number of the last started session.
func (s *Session) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Session) State() State {
	return s.fwd.State()
}

// Running reports whether a session is relaying.
func (s *Session) Running() bool {
	return s.fwd.State() == Running
}

func (s *Session) Route() Route {
	return s.fwd.Route()
}
