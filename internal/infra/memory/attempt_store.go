package memory

import (
	"sync"

	"proctor-session-service/internal/app"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
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
	return a, true
}

func (s *AttemptStore) Remove(a *app.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts[a.Key()] == a {
		delete(s.attempts, a.Key())
	}
}

// Touch is a no-op; in-memory attempts have no external marker.
func (s *AttemptStore) Touch(*app.Attempt) {}

func (s *AttemptStore) All() []*app.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		out = append(out, a)
	}
	return out
}
