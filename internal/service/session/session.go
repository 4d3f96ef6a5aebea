package session

import (
	"errors"
	"sync"
	"time"
)

// State is the lifecycle stage of a session.
type State int

const (
	StatePending State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Downstream is the client side of a session.
type Downstream interface {
	ReadMessage() (messageType int, p []byte, err error)
	Emit(event string, payload any) error
	Close() error
}

// Upstream is the transcription provider side of a session.
type Upstream interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session pairs one client connection with at most one provider connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	downstream Downstream

	mu       sync.Mutex
	upstream Upstream
	state    State

	closeOnce sync.Once
	closeErr  error
}

func newSession(id string, downstream Downstream) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		downstream: downstream,
		state:      StatePending,
	}
}

// Downstream returns the client handle.
func (s *Session) Downstream() Downstream {
	return s.downstream
}

// Upstream returns the provider handle, nil until attached.
func (s *Session) Upstream() Upstream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session's observable fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:          s.ID,
		State:       s.state.String(),
		HasUpstream: s.upstream != nil,
		CreatedAt:   s.CreatedAt,
	}
}

func (s *Session) attach(upstream Upstream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateClosed:
		return ErrSessionClosed
	case s.upstream != nil:
		return ErrUpstreamAttached
	}

	s.upstream = upstream
	s.state = StateActive
	return nil
}

// Close marks the session closed and closes both connections. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		upstream := s.upstream
		s.mu.Unlock()

		var errs []error
		if upstream != nil {
			errs = append(errs, upstream.Close())
		}
		if s.downstream != nil {
			errs = append(errs, s.downstream.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	HasUpstream bool      `json:"hasUpstream"`
	CreatedAt   time.Time `json:"createdAt"`
}
