package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"proctor-session-service/internal/app"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Controllers live in process; Redis marks attempt liveness so other
// instances and operators can see which attempts are attached here.
type AttemptStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Get(userID, assessmentID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[app.Key(userID, assessmentID)]
	return a, ok
}

func (s *AttemptStore) Add(a *app.Attempt) (*app.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.attempts[a.Key()]; ok {
		return existing, false
	}
	s.attempts[a.Key()] = a
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(a), a.ID, s.ttl).Err()
	return a, true
}

func (s *AttemptStore) Remove(a *app.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts[a.Key()] != a {
		return
	}
	delete(s.attempts, a.Key())
	_ = s.client.Del(context.Background(), s.key(a)).Err()
}

// Touch rewrites the liveness key with a fresh TTL while a is registered.
func (s *AttemptStore) Touch(a *app.Attempt) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.attempts[a.Key()] != a {
		return
	}
	_ = s.client.Set(context.Background(), s.key(a), a.ID, s.ttl).Err()
}

func (s *AttemptStore) All() []*app.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		out = append(out, a)
	}
	return out
}

func (s *AttemptStore) key(a *app.Attempt) string {
	return "proctor:attempt:" + a.UserID + ":" + a.AssessmentID
}
