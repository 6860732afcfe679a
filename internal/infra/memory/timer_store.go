package memory

import (
	"context"
	"sync"
	"time"

	"proctor-session-service/internal/timer"
)

// TimerStore is an in-process timer.Store. Entries survive page reloads but
// not process restarts.
type TimerStore struct {
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]timerEntry
}

type timerEntry struct {
	value     string
	expiresAt time.Time
}

func NewTimerStore() *TimerStore {
	return &TimerStore{
		clock:   time.Now,
		entries: make(map[string]timerEntry),
	}
}

func (s *TimerStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return "", timer.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock()) {
		delete(s.entries, key)
		return "", timer.ErrNotFound
	}
	return entry.value, nil
}

func (s *TimerStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := timerEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *TimerStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}
