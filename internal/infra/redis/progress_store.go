package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"studyquiz/internal/domain"
)

// ProgressStore keeps progress snapshots as JSON strings under
// progress:{userId}_{quizId}. Keys expire after ttl, which should match the
// staleness window so abandoned attempts clean themselves up.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) PutProgress(ctx context.Context, key string, snapshot domain.ProgressSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.client.Set(ctx, progressKey(key), data, s.ttl).Err()
}

func (s *ProgressStore) GetProgress(ctx context.Context, key string) (domain.ProgressSnapshot, error) {
	data, err := s.client.Get(ctx, progressKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ProgressSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ProgressSnapshot{}, err
	}
	var snapshot domain.ProgressSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.ProgressSnapshot{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	return snapshot, nil
}

func progressKey(key string) string {
	return "progress:" + key
}
