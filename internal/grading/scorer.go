// Package grading computes deterministic scores for captured answers.
package grading

import (
	"math"

	"proctor-session-service/internal/domain"
)

// DefaultPassPercentage applies when an assessment does not set one.
const DefaultPassPercentage = 70

// Result is the outcome of grading one attempt.
type Result struct {
	Score      int                      `json:"score"`
	MaxScore   int                      `json:"maxScore"`
	Percentage int                      `json:"percentage"`
	IsPassing  bool                     `json:"isPassing"`
	Attempts   []domain.QuestionAttempt `json:"questionAttempts"`
}

// Submission converts the result into the reporter payload.
func (r Result) Submission() domain.Submission {
	total := 0
	for _, a := range r.Attempts {
		total += a.TimeSpentSeconds
	}
	return domain.Submission{
		Score:            r.Score,
		MaxScore:         r.MaxScore,
		Percentage:       r.Percentage,
		IsPassing:        r.IsPassing,
		TimeSpentSeconds: total,
		QuestionAttempts: r.Attempts,
	}
}

// Incorrect returns the IDs of questions that were not answered correctly.
func (r Result) Incorrect() []string {
	var ids []string
	for _, a := range r.Attempts {
		if !a.IsCorrect {
			ids = append(ids, a.QuestionID)
		}
	}
	return ids
}

// Score grades answers against questions. Points are all-or-nothing and
// text/coding questions are never auto-graded.
func Score(assessment domain.Assessment, questions []domain.Question, answers map[string]domain.UserAnswer, timings map[string]int) Result {
	var earned, total int
	attempts := make([]domain.QuestionAttempt, 0, len(questions))

	for _, q := range questions {
		points := q.PointValue()
		total += points

		answer, answered := answers[q.ID]
		correct := answered && IsCorrect(q, answer)

		awarded := 0
		if correct {
			awarded = points
			earned += points
		}

		selected := []string{}
		if answered {
			selected = append(selected, answer.SelectedOptions...)
		}
		attempts = append(attempts, domain.QuestionAttempt{
			QuestionID:       q.ID,
			IsCorrect:        correct,
			Points:           awarded,
			SelectedOptions:  selected,
			TimeSpentSeconds: timings[q.ID],
		})
	}

	percentage := 0
	if total > 0 {
		percentage = int(math.Round(float64(earned) / float64(total) * 100))
	}
	pass := assessment.PassPercentage
	if pass <= 0 {
		pass = DefaultPassPercentage
	}

	return Result{
		Score:      earned,
		MaxScore:   total,
		Percentage: percentage,
		IsPassing:  percentage >= pass,
		Attempts:   attempts,
	}
}

// IsCorrect reports whether answer fully matches the question's correct options.
func IsCorrect(q domain.Question, answer domain.UserAnswer) bool {
	switch q.Type {
	case domain.QuestionTrueFalse:
		return singleMatch(q, answer)
	case domain.QuestionMultipleChoice:
		if q.AnswerType == domain.AnswerSingle {
			return singleMatch(q, answer)
		}
		return setMatch(q, answer)
	default:
		// text and coding answers need a separate grader.
		return false
	}
}

func singleMatch(q domain.Question, answer domain.UserAnswer) bool {
	if len(answer.SelectedOptions) != 1 {
		return false
	}
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return answer.SelectedOptions[0] == opt.ID
		}
	}
	return false
}

func setMatch(q domain.Question, answer domain.UserAnswer) bool {
	correct := make(map[string]struct{})
	for _, opt := range q.Options {
		if opt.IsCorrect {
			correct[opt.ID] = struct{}{}
		}
	}
	selected := make(map[string]struct{}, len(answer.SelectedOptions))
	for _, id := range answer.SelectedOptions {
		if _, ok := correct[id]; !ok {
			return false
		}
		selected[id] = struct{}{}
	}
	return len(selected) == len(correct)
}
