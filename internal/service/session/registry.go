package session

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrEmptySessionID   = errors.New("session id is required")
	ErrDuplicateSession = errors.New("session already registered")
	ErrUnknownSession   = errors.New("session not found")
	ErrUpstreamAttached = errors.New("upstream already attached")
	ErrSessionClosed    = errors.New("session closed")
	ErrRegistryFull     = errors.New("session registry is full")
)

// ErrSessionNotFound is the name the HTTP layer reports for ErrUnknownSession.
var ErrSessionNotFound = ErrUnknownSession

// Registry tracks active sessions by identifier.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	maxSessions int
}

// NewRegistry creates an empty registry. maxSessions <= 0 means unbounded.
func NewRegistry(maxSessions int) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
	}
}

// Register creates a pending session for id. An existing session with the same id is left untouched.
func (r *Registry) Register(id string, downstream Downstream) (*Session, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, ErrDuplicateSession
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, ErrRegistryFull
	}

	s := newSession(id, downstream)
	r.sessions[id] = s
	return s, nil
}

// AttachUpstream binds the provider connection to the session and marks it active.
func (r *Registry) AttachUpstream(id string, upstream Upstream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	return s.attach(upstream)
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops the session from the registry. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns snapshots of all sessions ordered by creation time.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snapshots = append(snapshots, s.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].ID < snapshots[j].ID
		}
		return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
	})
	return snapshots
}

// CloseAll closes and removes every session. Connections are closed outside the lock.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
