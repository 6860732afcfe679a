// Package timer persists attempt deadlines so a countdown survives reloads
// and process restarts.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by a Store when a key holds no value.
var ErrNotFound = errors.New("timer entry not found")

// Store is a durable key/value store for countdown state.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Keys scopes timer entries to one user's attempt at one assessment.
type Keys struct {
	UserID       string
	AssessmentID string
}

// EndTime returns the key holding the absolute deadline in ms since epoch.
func (k Keys) EndTime() string {
	return fmt.Sprintf("assessment:%s:%s:end_time", k.UserID, k.AssessmentID)
}

// Reason returns the key holding the last disqualification reason.
func (k Keys) Reason() string {
	return fmt.Sprintf("assessment:%s:%s:disqualification_reason", k.UserID, k.AssessmentID)
}

// Risk returns the key holding the environment risk accepted at launch.
func (k Keys) Risk() string {
	return fmt.Sprintf("assessment:%s:%s:risk", k.UserID, k.AssessmentID)
}
