package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor-session-service/internal/domain"
)

func singleChoice() domain.Question {
	return domain.Question{
		ID:         "q1",
		Prompt:     "Pick B",
		Type:       domain.QuestionMultipleChoice,
		AnswerType: domain.AnswerSingle,
		Options: []domain.Option{
			{ID: "A", Text: "A"},
			{ID: "B", Text: "B", IsCorrect: true},
			{ID: "C", Text: "C"},
		},
		Points: 1,
	}
}

func multiChoice() domain.Question {
	return domain.Question{
		ID:         "q2",
		Prompt:     "Pick A and C",
		Type:       domain.QuestionMultipleChoice,
		AnswerType: domain.AnswerMultiple,
		Options: []domain.Option{
			{ID: "A", IsCorrect: true},
			{ID: "B"},
			{ID: "C", IsCorrect: true},
		},
		Points: 2,
	}
}

func answer(qid string, opts ...string) map[string]domain.UserAnswer {
	return map[string]domain.UserAnswer{qid: {QuestionID: qid, SelectedOptions: opts}}
}

func TestScoreSingleChoiceCorrect(t *testing.T) {
	res := Score(domain.Assessment{ID: "a1", Duration: 1}, []domain.Question{singleChoice()}, answer("q1", "B"), nil)

	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 1, res.MaxScore)
	assert.Equal(t, 100, res.Percentage)
	assert.True(t, res.IsPassing)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].IsCorrect)
	assert.Equal(t, 1, res.Attempts[0].Points)
}

func TestScoreUnansweredFails(t *testing.T) {
	res := Score(domain.Assessment{ID: "a1"}, []domain.Question{singleChoice()}, nil, nil)

	assert.Equal(t, 0, res.Percentage)
	assert.False(t, res.IsPassing)
	assert.Equal(t, []string{"q1"}, res.Incorrect())
	assert.Empty(t, res.Attempts[0].SelectedOptions)
}

func TestSingleChoiceRejectsExtraSelections(t *testing.T) {
	assert.False(t, IsCorrect(singleChoice(), domain.UserAnswer{QuestionID: "q1", SelectedOptions: []string{"B", "A"}}))
	assert.False(t, IsCorrect(singleChoice(), domain.UserAnswer{QuestionID: "q1"}))
}

func TestMultiChoiceRequiresExactSet(t *testing.T) {
	q := multiChoice()

	assert.True(t, IsCorrect(q, domain.UserAnswer{SelectedOptions: []string{"A", "C"}}))
	assert.False(t, IsCorrect(q, domain.UserAnswer{SelectedOptions: []string{"A", "B", "C"}}), "extra incorrect option")
	assert.False(t, IsCorrect(q, domain.UserAnswer{SelectedOptions: []string{"A"}}), "missing correct option")
}

func TestMultiChoiceIgnoresSelectionOrder(t *testing.T) {
	q := multiChoice()
	orders := [][]string{{"A", "C"}, {"C", "A"}, {"A", "B", "C"}, {"C", "B", "A"}}
	for _, opts := range orders {
		reversed := make([]string, len(opts))
		for i := range opts {
			reversed[len(opts)-1-i] = opts[i]
		}
		assert.Equal(t,
			IsCorrect(q, domain.UserAnswer{SelectedOptions: opts}),
			IsCorrect(q, domain.UserAnswer{SelectedOptions: reversed}),
			"order %v", opts)
	}
}

func TestTrueFalse(t *testing.T) {
	q := domain.Question{
		ID:   "tf",
		Type: domain.QuestionTrueFalse,
		Options: []domain.Option{
			{ID: "true", IsCorrect: true},
			{ID: "false"},
		},
	}
	assert.True(t, IsCorrect(q, domain.UserAnswer{SelectedOptions: []string{"true"}}))
	assert.False(t, IsCorrect(q, domain.UserAnswer{SelectedOptions: []string{"false"}}))
}

func TestTextAndCodingNeverAutoGraded(t *testing.T) {
	questions := []domain.Question{
		{ID: "t", Type: domain.QuestionText, Points: 3},
		{ID: "c", Type: domain.QuestionCoding, Points: 5},
	}
	answers := map[string]domain.UserAnswer{
		"t": {QuestionID: "t", Text: "a thoughtful essay"},
		"c": {QuestionID: "c", Text: "func main() {}"},
	}
	res := Score(domain.Assessment{}, questions, answers, nil)

	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 8, res.MaxScore)
	assert.Equal(t, 0, res.Percentage)
}

func TestScoreIsDeterministic(t *testing.T) {
	questions := []domain.Question{singleChoice(), multiChoice()}
	answers := map[string]domain.UserAnswer{
		"q1": {QuestionID: "q1", SelectedOptions: []string{"B"}},
		"q2": {QuestionID: "q2", SelectedOptions: []string{"A", "B"}},
	}
	timings := map[string]int{"q1": 4, "q2": 9}

	first := Score(domain.Assessment{PassPercentage: 30}, questions, answers, timings)
	second := Score(domain.Assessment{PassPercentage: 30}, questions, answers, timings)

	assert.Equal(t, first, second)
	assert.Equal(t, 33, first.Percentage)
	assert.True(t, first.IsPassing)
	assert.Equal(t, 13, first.Submission().TimeSpentSeconds)
}

func TestZeroPointsDefaultToOne(t *testing.T) {
	q := singleChoice()
	q.Points = 0
	res := Score(domain.Assessment{}, []domain.Question{q}, answer("q1", "B"), nil)
	assert.Equal(t, 1, res.MaxScore)
	assert.Equal(t, 100, res.Percentage)
}

func TestEmptyAssessmentScoresZero(t *testing.T) {
	res := Score(domain.Assessment{}, nil, nil, nil)
	assert.Equal(t, 0, res.Percentage)
	assert.False(t, res.IsPassing)
}
