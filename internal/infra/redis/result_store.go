package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"examprep-attempt-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResultStore keeps reconstructed summaries as JSON values with TTL:
// SET attempt:{attemptID}:result {summary json}
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
	rnd    *rand.Rand
}

func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *ResultStore) Save(ctx context.Context, summary domain.ResultSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.client.Set(ctx, s.key(summary.AttemptID), data, s.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *ResultStore) Get(ctx context.Context, attemptID string) (domain.ResultSummary, bool, error) {
	data, err := s.client.Get(ctx, s.key(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ResultSummary{}, false, nil
	}
	if err != nil {
		return domain.ResultSummary{}, false, fmt.Errorf("get result: %w", err)
	}
	var summary domain.ResultSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.ResultSummary{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return summary, true, nil
}

func (s *ResultStore) key(attemptID string) string {
	return "attempt:" + attemptID + ":result"
}

func (s *ResultStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
