package redis

import (
	"context"
	"sync"
	"time"

	"examprep-attempt-service/internal/engine"
	"github.com/redis/go-redis/v9"
)

// AttemptRegistry is a Redis-aware implementation of engine.AttemptRegistry.
// Notes:
//   - Sessions themselves stay in a local map; timers and the submission latch
//     are process-local by design (in-progress attempts do not survive restarts).
//   - Redis marks attempt liveness so operators can see active attempts across
//     instances (and could route reconnects in a multi-instance setup).
type AttemptRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*engine.Session
}

func NewAttemptRegistry(client *redis.Client, ttl time.Duration) *AttemptRegistry {
	return &AttemptRegistry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*engine.Session),
	}
}

func (r *AttemptRegistry) Add(session *engine.Session) {
	attemptID := session.Attempt().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[attemptID] = session
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(attemptID), "1", r.ttl).Err()
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
	_ = r.client.Del(context.Background(), r.key(attemptID)).Err()
}

func (r *AttemptRegistry) key(attemptID string) string {
	return "attempt:live:" + attemptID
}
