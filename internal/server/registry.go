package server

import (
	"fmt"
	"sync"
	"time"

	"RoiLedger/internal/roi"
	"RoiLedger/internal/session"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for lookups of unknown or deleted sessions.
var ErrSessionNotFound = fmt.Errorf("session not found")

// Entry is one registered session. State is single-threaded; the entry mutex
// serializes all access from concurrent API requests.
type Entry struct {
	mu        sync.Mutex
	state     *session.State
	createdAt time.Time
}

// With runs fn while holding the entry lock.
func (e *Entry) With(fn func(s *session.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.state)
}

// Registry holds all live sessions keyed by UUID. Sessions are ephemeral:
// nothing survives a process restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Entry),
	}
}

// Create registers a fresh session and returns its ID.
func (r *Registry) Create(policy roi.Policy) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &Entry{
		state:     session.New(policy),
		createdAt: time.Now(),
	}
	return id
}

// Get returns the entry for id.
func (r *Registry) Get(id uuid.UUID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// Delete removes a session.
func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

// SessionInfo is the list-view representation of a session.
type SessionInfo struct {
	ID        uuid.UUID `json:"session_id"`
	Policy    string    `json:"policy"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns info for every live session.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for id, e := range r.sessions {
		e.mu.Lock()
		out = append(out, SessionInfo{
			ID:        id,
			Policy:    e.state.Policy().String(),
			CreatedAt: e.createdAt,
		})
		e.mu.Unlock()
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
