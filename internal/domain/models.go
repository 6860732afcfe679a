package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionText           QuestionType = "text"
	QuestionCoding         QuestionType = "coding"
)

// AnswerType distinguishes single and multiple selection for multiple-choice questions.
type AnswerType string

const (
	AnswerSingle   AnswerType = "single"
	AnswerMultiple AnswerType = "multiple"
)

// Assessment is the immutable metadata of a timed assessment.
type Assessment struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Category       string   `json:"category"`
	Duration       int      `json:"duration"` // minutes
	PassPercentage int      `json:"passPercentage"`
	QuestionIDs    []string `json:"-"`
}

// Option represents a possible answer for a choice question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is immutable for the lifetime of a session.
type Question struct {
	ID           string       `json:"id"`
	AssessmentID string       `json:"assessmentId,omitempty"`
	Prompt       string       `json:"question"`
	Type         QuestionType `json:"type"`
	AnswerType   AnswerType   `json:"answerType,omitempty"`
	Options      []Option     `json:"options,omitempty"`
	Points       int          `json:"points"` // defaults to 1 if zero
	Order        int          `json:"order,omitempty"`
}

// PointValue returns the points awarded for a correct answer.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// SingleSelection reports whether the question accepts exactly one option.
func (q Question) SingleSelection() bool {
	return q.Type == QuestionTrueFalse || (q.Type == QuestionMultipleChoice && q.AnswerType == AnswerSingle)
}

// IsChoice reports whether the question is answered by selecting options.
func (q Question) IsChoice() bool {
	return q.Type == QuestionMultipleChoice || q.Type == QuestionTrueFalse
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// QuestionRef is one entry of an assessment's question list. Documents carry
// either inline question objects or bare question IDs.
type QuestionRef struct {
	ID       string
	Question *Question
}

func (r *QuestionRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		r.Question = nil
		return nil
	}
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		return fmt.Errorf("question ref: %w", err)
	}
	if q.ID == "" {
		return fmt.Errorf("question ref: object without id")
	}
	r.ID = q.ID
	r.Question = &q
	return nil
}

func (r QuestionRef) MarshalJSON() ([]byte, error) {
	if r.Question != nil {
		return json.Marshal(r.Question)
	}
	return json.Marshal(r.ID)
}

// AssessmentDocument is the stored shape of an assessment.
type AssessmentDocument struct {
	Assessment
	Questions []QuestionRef `json:"questions"`
}

// Content is an assessment together with its resolved questions.
type Content struct {
	Assessment Assessment `json:"assessment"`
	Questions  []Question `json:"questions"`
}

// UserAnswer is the captured answer for one question.
type UserAnswer struct {
	QuestionID      string   `json:"questionId"`
	SelectedOptions []string `json:"selectedOptions"`
	Text            string   `json:"text,omitempty"`
}

// Normalized returns a copy whose selected options are de-duplicated and sorted.
func (a UserAnswer) Normalized() UserAnswer {
	seen := make(map[string]struct{}, len(a.SelectedOptions))
	opts := make([]string, 0, len(a.SelectedOptions))
	for _, id := range a.SelectedOptions {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		opts = append(opts, id)
	}
	sort.Strings(opts)
	return UserAnswer{QuestionID: a.QuestionID, SelectedOptions: opts, Text: a.Text}
}

// QuestionAttempt is the graded record of one question.
type QuestionAttempt struct {
	QuestionID       string   `json:"questionId"`
	IsCorrect        bool     `json:"isCorrect"`
	Points           int      `json:"points"`
	SelectedOptions  []string `json:"selectedOptions"`
	TimeSpentSeconds int      `json:"timeSpentInSeconds"`
}

// Submission is the payload handed to the results reporter.
type Submission struct {
	Score            int               `json:"score"`
	MaxScore         int               `json:"maxScore"`
	Percentage       int               `json:"percentage"`
	IsPassing        bool              `json:"isPassing"`
	TimeSpentSeconds int               `json:"timeSpentInSeconds"`
	QuestionAttempts []QuestionAttempt `json:"questionAttempts"`
}
