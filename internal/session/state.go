// Package session implements the proctored attempt state machine: a pure
// reducer over State plus a Controller that owns one attempt at runtime.
package session

import (
	"time"

	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/grading"
	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/recommend"
	"proctor-session-service/internal/risk"
)

type Phase string

const (
	PhaseIntro            Phase = "intro"
	PhaseEnvironmentCheck Phase = "environment-check"
	PhaseInProgress       Phase = "in-progress"
	PhaseResults          Phase = "results"
	PhaseDisqualified     Phase = "disqualified"
)

// Terminal reports whether no further attempt mutation is possible.
func (p Phase) Terminal() bool {
	return p == PhaseResults || p == PhaseDisqualified
}

// Prompt is the decision the user is currently asked to make.
type Prompt string

const (
	PromptNone         Prompt = ""
	PromptRiskDecision Prompt = "risk-decision"
	PromptConsent      Prompt = "consent"
	PromptRetry        Prompt = "environment-retry"
)

const (
	CatalogPath   = "/skill-assessment"
	RedirectDelay = 3 * time.Second

	msgNoQuestions    = "No questions found for this assessment"
	msgLoadFailed     = "Failed to load assessment"
	msgEnvUnavailable = "Unable to verify your environment. Please retry the security check."
	msgConsentDenied  = "Webcam access is required to take this assessment"
)

// State is the single mutable aggregate of an attempt. Reduce never mutates a
// State in place; maps are copied before they change.
type State struct {
	AssessmentID string
	UserID       string
	Phase        Phase
	Content      domain.Content
	Loaded       bool

	Index     int
	Answers   map[string]domain.UserAnswer
	Timings   map[string]int
	EnteredAt time.Time
	EndTime   time.Time
	Remaining int

	Risk    risk.Level
	Verdict *risk.Verdict
	Prompt  Prompt
	Reason  string

	// Generation changes on every phase entry. Asynchronous results carry the
	// generation they were started under and are dropped when it moved on.
	Generation uint64

	Error    string
	Redirect string

	Result          *grading.Result
	Recommendations []recommend.Topic
	FocusAreas      []string
	Recommending    bool
}

// NewState returns the intro state of an attempt.
func NewState(userID, assessmentID string) State {
	return State{
		AssessmentID: assessmentID,
		UserID:       userID,
		Phase:        PhaseIntro,
	}
}

func (s State) questionCount() int {
	return len(s.Content.Questions)
}

func (s State) current() (domain.Question, bool) {
	if s.Index < 0 || s.Index >= s.questionCount() {
		return domain.Question{}, false
	}
	return s.Content.Questions[s.Index], true
}

func (s State) question(id string) (domain.Question, int, bool) {
	for i, q := range s.Content.Questions {
		if q.ID == id {
			return q, i, true
		}
	}
	return domain.Question{}, -1, false
}

// Snapshot is the client-facing view of a State. Correct options are never
// exposed before results.
type Snapshot struct {
	AssessmentID    string                       `json:"assessmentId"`
	Phase           Phase                        `json:"phase"`
	Assessment      *AssessmentView              `json:"assessment,omitempty"`
	Question        *QuestionView                `json:"question,omitempty"`
	Index           int                          `json:"index"`
	Total           int                          `json:"total"`
	Answers         map[string]domain.UserAnswer `json:"answers,omitempty"`
	Remaining       int                          `json:"remainingSeconds"`
	Risk            risk.Level                   `json:"risk,omitempty"`
	Verdict         *risk.Verdict                `json:"verdict,omitempty"`
	Prompt          Prompt                       `json:"prompt,omitempty"`
	Reason          string                       `json:"reason,omitempty"`
	Explanation     string                       `json:"explanation,omitempty"`
	Error           string                       `json:"error,omitempty"`
	Redirect        string                       `json:"redirect,omitempty"`
	RedirectAfterMs int64                        `json:"redirectAfterMs,omitempty"`
	Result          *domain.Submission           `json:"result,omitempty"`
	Recommendations []recommend.Topic            `json:"recommendations,omitempty"`
	FocusAreas      []string                     `json:"focusAreas,omitempty"`
	Recommending    bool                         `json:"recommending,omitempty"`
}

type AssessmentView struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	Duration       int    `json:"duration"`
	PassPercentage int    `json:"passPercentage"`
}

type QuestionView struct {
	ID         string              `json:"id"`
	Prompt     string              `json:"question"`
	Type       domain.QuestionType `json:"type"`
	AnswerType domain.AnswerType   `json:"answerType,omitempty"`
	Options    []OptionView        `json:"options,omitempty"`
	Points     int                 `json:"points"`
}

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Snapshot renders the state for clients.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		AssessmentID: s.AssessmentID,
		Phase:        s.Phase,
		Index:        s.Index,
		Total:        s.questionCount(),
		Remaining:    s.Remaining,
		Risk:         s.Risk,
		Verdict:      s.Verdict,
		Prompt:       s.Prompt,
		Reason:       s.Reason,
		Error:        s.Error,
		Redirect:     s.Redirect,
		FocusAreas:   s.FocusAreas,
		Recommending: s.Recommending,
	}
	if s.Redirect != "" {
		snap.RedirectAfterMs = RedirectDelay.Milliseconds()
	}
	if s.Loaded {
		a := s.Content.Assessment
		snap.Assessment = &AssessmentView{
			ID:             a.ID,
			Title:          a.Title,
			Category:       a.Category,
			Duration:       a.Duration,
			PassPercentage: a.PassPercentage,
		}
	}
	if len(s.Answers) > 0 {
		snap.Answers = make(map[string]domain.UserAnswer, len(s.Answers))
		for k, v := range s.Answers {
			snap.Answers[k] = v
		}
	}
	if s.Phase == PhaseInProgress {
		if q, ok := s.current(); ok {
			snap.Question = newQuestionView(q)
		}
	}
	if s.Phase == PhaseDisqualified {
		snap.Explanation = integrity.Explain(s.Reason)
	}
	if s.Result != nil {
		sub := s.Result.Submission()
		snap.Result = &sub
		snap.Recommendations = s.Recommendations
	}
	return snap
}

func newQuestionView(q domain.Question) *QuestionView {
	view := &QuestionView{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Type:       q.Type,
		AnswerType: q.AnswerType,
		Points:     q.PointValue(),
	}
	for _, opt := range q.Options {
		view.Options = append(view.Options, OptionView{ID: opt.ID, Text: opt.Text})
	}
	return view
}
