package session

import (
	"time"

	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/recommend"
	"proctor-session-service/internal/risk"
)

// Event is an input to Reduce.
type Event interface {
	eventName() string
}

// Loaded delivers resolved assessment content.
type Loaded struct{ Content domain.Content }

// LoadFailed reports that content could not be retrieved.
type LoadFailed struct{ Err error }

// Begin starts the environment check.
type Begin struct{}

// Verdict carries the outcome of an environment evaluation.
type Verdict struct {
	Generation uint64
	Verdict    risk.Verdict
	Err        error
}

type RetryEnvironment struct{}

// ProceedWithRisk accepts a high-risk environment.
type ProceedWithRisk struct{}

// CancelEnvironment abandons the check and returns to intro.
type CancelEnvironment struct{}

// Consent answers the webcam consent prompt.
type Consent struct{ Accepted bool }

// Resume restores an in-progress attempt from a persisted deadline.
type Resume struct {
	EndTime time.Time
	Risk    risk.Level
}

// RestoreDisqualified restores a persisted disqualification.
type RestoreDisqualified struct{ Reason string }

// Answer upserts the answer for one question.
type Answer struct{ Answer domain.UserAnswer }

// Navigate moves Delta questions forward or back.
type Navigate struct{ Delta int }

// Tick is one countdown heartbeat. EndTime is the persisted deadline, zero
// when the store had no entry.
type Tick struct {
	Generation uint64
	EndTime    time.Time
}

type Submit struct{}

// Disqualify ends the attempt for an integrity violation.
type Disqualify struct {
	Generation uint64
	Reason     string
	Source     string
}

// Recommendations delivers study topics, or the local fallback.
type Recommendations struct {
	Generation uint64
	Topics     []recommend.Topic
	FocusAreas []string
}

// Reset starts a new attempt after results.
type Reset struct{}

func (Loaded) eventName() string              { return "loaded" }
func (LoadFailed) eventName() string          { return "load_failed" }
func (Begin) eventName() string               { return "begin" }
func (Verdict) eventName() string             { return "verdict" }
func (RetryEnvironment) eventName() string    { return "retry_environment" }
func (ProceedWithRisk) eventName() string     { return "proceed_with_risk" }
func (CancelEnvironment) eventName() string   { return "cancel_environment" }
func (Consent) eventName() string             { return "consent" }
func (Resume) eventName() string              { return "resume" }
func (RestoreDisqualified) eventName() string { return "restore_disqualified" }
func (Answer) eventName() string              { return "answer" }
func (Navigate) eventName() string            { return "navigate" }
func (Tick) eventName() string                { return "tick" }
func (Submit) eventName() string              { return "submit" }
func (Disqualify) eventName() string          { return "disqualify" }
func (Recommendations) eventName() string     { return "recommendations" }
func (Reset) eventName() string               { return "reset" }

// Effect is a side effect requested by Reduce and executed by the Controller.
type Effect interface {
	effectName() string
}

// DetectEnvironment runs the environment evaluator once.
type DetectEnvironment struct{ Generation uint64 }

// StartAttempt arms the countdown and detectors for one in-progress entry.
type StartAttempt struct {
	Generation uint64
	EndTime    time.Time
	Risk       risk.Level
	// Persist is false when resuming against an already stored deadline.
	Persist bool
}

// StopAttempt cancels everything armed by StartAttempt.
type StopAttempt struct{}

// ClearTimer deletes the persisted deadline.
type ClearTimer struct{}

// PersistDisqualification deletes the deadline and stores the reason.
type PersistDisqualification struct{ Reason string }

// ClearDisqualification forgets the stored reason before a new attempt.
type ClearDisqualification struct{}

// SubmitResults hands the graded attempt to the results reporter.
type SubmitResults struct{ Submission domain.Submission }

// RequestRecommendations asks for study topics. Prompts of incorrectly
// answered questions feed the local fallback.
type RequestRecommendations struct {
	Generation uint64
	Request    recommend.Request
	Prompts    []string
}

func (DetectEnvironment) effectName() string       { return "detect_environment" }
func (StartAttempt) effectName() string            { return "start_attempt" }
func (StopAttempt) effectName() string             { return "stop_attempt" }
func (ClearTimer) effectName() string              { return "clear_timer" }
func (PersistDisqualification) effectName() string { return "persist_disqualification" }
func (ClearDisqualification) effectName() string   { return "clear_disqualification" }
func (SubmitResults) effectName() string           { return "submit_results" }
func (RequestRecommendations) effectName() string  { return "request_recommendations" }
