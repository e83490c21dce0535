package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubmittedStore remembers recently accepted visit ids so replayed
// submissions short-circuit before touching postgres.
type SubmittedStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSubmittedStore returns redis-backed store.
func NewSubmittedStore(client *redis.Client, ttl time.Duration) *SubmittedStore {
	return &SubmittedStore{client: client, ttl: ttl}
}

func (s *SubmittedStore) key(visitID string) string {
	return fmt.Sprintf("visits:submitted:%s", visitID)
}

// Mark records the visit together with its stored station count.
func (s *SubmittedStore) Mark(ctx context.Context, visitID string, stationCount int) error {
	return s.client.Set(ctx, s.key(visitID), stationCount, s.ttl).Err()
}

// Lookup returns the station count of an already accepted visit.
func (s *SubmittedStore) Lookup(ctx context.Context, visitID string) (int, bool, error) {
	result, err := s.client.Get(ctx, s.key(visitID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.Atoi(result)
	if err != nil {
		return 0, false, fmt.Errorf("redis: corrupt marker for visit %s: %w", visitID, err)
	}
	return count, true, nil
}
