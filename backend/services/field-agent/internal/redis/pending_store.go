package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldservice/backend/services/field-agent/internal/session"
)

// PendingStore keeps the device's unsubmitted visit in redis.
type PendingStore struct {
	client *redis.Client
	device string
	ttl    time.Duration
}

// NewPendingStore returns redis-backed store. A ttl of zero keeps the entry
// until it is deleted.
func NewPendingStore(client *redis.Client, deviceID string, ttl time.Duration) *PendingStore {
	return &PendingStore{client: client, device: deviceID, ttl: ttl}
}

func (s *PendingStore) key() string {
	return fmt.Sprintf("fieldagent:%s:pending-visit", s.device)
}

// Save stores the visit, replacing any previous one.
func (s *PendingStore) Save(ctx context.Context, visit session.PendingVisit) error {
	data, err := json.Marshal(visit)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(), data, s.ttl).Err()
}

// Load returns the stored visit, if any.
func (s *PendingStore) Load(ctx context.Context) (session.PendingVisit, bool, error) {
	result, err := s.client.Get(ctx, s.key()).Result()
	if errors.Is(err, redis.Nil) {
		return session.PendingVisit{}, false, nil
	}
	if err != nil {
		return session.PendingVisit{}, false, err
	}
	var visit session.PendingVisit
	if err := json.Unmarshal([]byte(result), &visit); err != nil {
		return session.PendingVisit{}, false, fmt.Errorf("redis: decode pending visit: %w", err)
	}
	return visit, true, nil
}

// Delete removes the stored visit if it is the one with visitID. The key is
// watched so a Save landing between the read and the delete aborts it.
func (s *PendingStore) Delete(ctx context.Context, visitID string) error {
	key := s.key()
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var stored session.PendingVisit
		if err := json.Unmarshal(raw, &stored); err == nil && stored.Summary.VisitID != visitID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// the key changed underneath us, so it now holds a newer visit
		return nil
	}
	return err
}
