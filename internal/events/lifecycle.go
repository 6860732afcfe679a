// Package events publishes attempt lifecycle events through Watermill and
// consumes them into an audit trail.
package events

import (
	"time"

	"github.com/google/uuid"

	"proctor-session-service/internal/session"
)

// Type names a lifecycle event.
type Type string

const (
	TypeEnvironmentCheck Type = "attempt.environment_check"
	TypeStarted          Type = "attempt.started"
	TypeCompleted        Type = "attempt.completed"
	TypeDisqualified     Type = "attempt.disqualified"
	TypeReset            Type = "attempt.reset"

	DefaultTopic = "proctor.attempts"

	source  = "proctor-session-service"
	version = "1"
)

// Lifecycle is the wire payload of every attempt event.
type Lifecycle struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	AssessmentID string    `json:"assessmentId"`
	UserID       string    `json:"userId"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Reason       string    `json:"reason,omitempty"`
	Risk         string    `json:"risk,omitempty"`
	Score        *int      `json:"score,omitempty"`
	MaxScore     *int      `json:"maxScore,omitempty"`
	Percentage   *int      `json:"percentage,omitempty"`
	IsPassing    *bool     `json:"isPassing,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	Version      string    `json:"version"`
}

// FromTransition maps a phase change onto a lifecycle event.
func FromTransition(t session.Transition) Lifecycle {
	ev := Lifecycle{
		ID:           uuid.NewString(),
		Type:         typeFor(t),
		AssessmentID: t.AssessmentID,
		UserID:       t.UserID,
		From:         string(t.From),
		To:           string(t.To),
		Reason:       t.Reason,
		Risk:         string(t.Risk),
		Timestamp:    t.At.UTC(),
		Source:       source,
		Version:      version,
	}
	if t.To != session.PhaseDisqualified {
		ev.Reason = ""
	}
	if t.Result != nil {
		r := *t.Result
		ev.Score = &r.Score
		ev.MaxScore = &r.MaxScore
		ev.Percentage = &r.Percentage
		ev.IsPassing = &r.IsPassing
	}
	return ev
}

func typeFor(t session.Transition) Type {
	switch t.To {
	case session.PhaseEnvironmentCheck:
		return TypeEnvironmentCheck
	case session.PhaseInProgress:
		return TypeStarted
	case session.PhaseResults:
		return TypeCompleted
	case session.PhaseDisqualified:
		return TypeDisqualified
	default:
		return TypeReset
	}
}
