package domain

import "errors"

var (
	// ErrAssessmentNotFound indicates the assessment content could not be loaded.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrNoQuestions is returned when an assessment resolves to zero questions.
	ErrNoQuestions = errors.New("no questions found for this assessment")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidAnswer is returned when an answer does not fit its question type.
	ErrInvalidAnswer = errors.New("answer does not match question type")
	// ErrNotInProgress is returned for answer or navigation input outside an active attempt.
	ErrNotInProgress = errors.New("assessment is not in progress")
	// ErrIllegalTransition is returned when an event does not apply to the current phase.
	ErrIllegalTransition = errors.New("event not allowed in current phase")
	// ErrAttemptClosed is returned when talking to a controller that has stopped.
	ErrAttemptClosed = errors.New("attempt closed")
	// ErrEnvironmentUnavailable indicates the environment evaluator produced no verdict.
	ErrEnvironmentUnavailable = errors.New("environment check unavailable")
)
