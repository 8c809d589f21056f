package memory

import (
	"sync"

	"examprep-attempt-service/internal/engine"
)

// AttemptRegistry is an in-memory implementation of engine.AttemptRegistry.
type AttemptRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*engine.Session
}

func NewAttemptRegistry() *AttemptRegistry {
	return &AttemptRegistry{
		sessions: make(map[string]*engine.Session),
	}
}

func (r *AttemptRegistry) Add(session *engine.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Attempt().ID] = session
}

func (r *AttemptRegistry) Get(attemptID string) (*engine.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[attemptID]
	return session, ok
}

func (r *AttemptRegistry) Delete(attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, attemptID)
}
