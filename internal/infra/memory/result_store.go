package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"examprep-attempt-service/internal/domain"
)

// ResultStore caches reconstructed summaries with TTL so re-opened result
// screens do not hammer the backend.
type ResultStore struct {
	ttl   time.Duration
	clock func() time.Time
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedResult
}

type cachedResult struct {
	summary   domain.ResultSummary
	expiresAt time.Time
}

func NewResultStore(ttl time.Duration) *ResultStore {
	return &ResultStore{
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedResult),
	}
}

func (s *ResultStore) Save(_ context.Context, summary domain.ResultSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[summary.AttemptID] = cachedResult{
		summary:   summary,
		expiresAt: s.clock().Add(s.ttlWithJitter()),
	}
	return nil
}

func (s *ResultStore) Get(_ context.Context, attemptID string) (domain.ResultSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[attemptID]
	if !ok || !entry.expiresAt.After(s.clock()) {
		return domain.ResultSummary{}, false, nil
	}
	return entry.summary, true, nil
}

func (s *ResultStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
