package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"proctor-session-service/internal/timer"
)

// TimerStore persists countdown entries in Redis so deadlines survive
// reloads and process restarts.
type TimerStore struct {
	client *redis.Client
}

func NewTimerStore(client *redis.Client) *TimerStore {
	return &TimerStore{client: client}
}

func (s *TimerStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", timer.ErrNotFound
	}
	return v, err
}

func (s *TimerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *TimerStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
