package memory

import (
	"context"
	"sync"
	"time"

	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/events"
)

// StoredResult is one saved submission.
type StoredResult struct {
	UserID       string
	AssessmentID string
	Submission   domain.Submission
	SavedAt      time.Time
}

// ResultStore keeps submitted results in memory, for demos and tests.
type ResultStore struct {
	mu      sync.RWMutex
	results []StoredResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) SaveResult(_ context.Context, userID, assessmentID string, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, StoredResult{
		UserID:       userID,
		AssessmentID: assessmentID,
		Submission:   sub,
		SavedAt:      time.Now(),
	})
	return nil
}

// Results returns the results saved for a user, oldest first.
func (s *ResultStore) Results(userID string) []StoredResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredResult
	for _, r := range s.results {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// AuditLog records lifecycle events consumed from the event bus.
type AuditLog struct {
	mu     sync.RWMutex
	events []events.Lifecycle
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) RecordEvent(_ context.Context, ev events.Lifecycle) error {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (l *AuditLog) Events() []events.Lifecycle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]events.Lifecycle(nil), l.events...)
}
