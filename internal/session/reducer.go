package session

import (
	"errors"
	"fmt"
	"time"

	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/grading"
	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/recommend"
	"proctor-session-service/internal/risk"
	"proctor-session-service/internal/timer"
)

// Reduce applies one event to the state. It is pure: the returned effects
// describe the IO the caller must perform. On error the input state is
// returned unchanged.
func Reduce(s State, ev Event, now time.Time) (State, []Effect, error) {
	switch e := ev.(type) {
	case Loaded:
		return onLoaded(s, e)
	case LoadFailed:
		return onLoadFailed(s, e)
	case Begin:
		return onBegin(s)
	case Verdict:
		return onVerdict(s, e)
	case RetryEnvironment:
		if s.Phase != PhaseEnvironmentCheck || s.Prompt != PromptRetry {
			return s, nil, illegal(s, ev)
		}
		s.Generation++
		s.Prompt = PromptNone
		s.Error = ""
		return s, []Effect{DetectEnvironment{Generation: s.Generation}}, nil
	case ProceedWithRisk:
		if s.Phase != PhaseEnvironmentCheck || s.Prompt != PromptRiskDecision {
			return s, nil, illegal(s, ev)
		}
		s.Prompt = PromptConsent
		return s, nil, nil
	case CancelEnvironment:
		if s.Phase != PhaseEnvironmentCheck {
			return s, nil, illegal(s, ev)
		}
		return backToIntro(s), nil, nil
	case Consent:
		return onConsent(s, e, now)
	case Resume:
		return onResume(s, e, now)
	case RestoreDisqualified:
		if s.Phase != PhaseIntro {
			return s, nil, illegal(s, ev)
		}
		s.Phase = PhaseDisqualified
		s.Reason = e.Reason
		s.Generation++
		return s, nil, nil
	case Answer:
		return onAnswer(s, e, now)
	case Navigate:
		if s.Phase != PhaseInProgress {
			return s, nil, domain.ErrNotInProgress
		}
		target := s.Index + e.Delta
		if e.Delta == 0 || target < 0 || target >= s.questionCount() {
			return s, nil, nil
		}
		return moveTo(s, target, now), nil, nil
	case Tick:
		if s.Phase != PhaseInProgress || e.Generation != s.Generation {
			return s, nil, nil
		}
		if !e.EndTime.IsZero() {
			s.EndTime = e.EndTime
		}
		s.Remaining = timer.Remaining(s.EndTime, now)
		if s.Remaining == 0 {
			return finish(s, now)
		}
		return s, nil, nil
	case Submit:
		if s.Phase != PhaseInProgress {
			return s, nil, domain.ErrNotInProgress
		}
		return finish(s, now)
	case Disqualify:
		return onDisqualify(s, e)
	case Recommendations:
		if s.Phase != PhaseResults || e.Generation != s.Generation {
			return s, nil, nil
		}
		s.Recommendations = e.Topics
		s.FocusAreas = e.FocusAreas
		s.Recommending = false
		return s, nil, nil
	case Reset:
		if s.Phase != PhaseResults && s.Phase != PhaseDisqualified {
			return s, nil, illegal(s, ev)
		}
		next := NewState(s.UserID, s.AssessmentID)
		next.Content = s.Content
		next.Loaded = s.Loaded
		next.Generation = s.Generation + 1
		if s.Phase == PhaseDisqualified {
			// the old attempt stays disqualified in results and audit; only the stored reason goes
			return next, []Effect{ClearDisqualification{}}, nil
		}
		return next, nil, nil
	}
	return s, nil, fmt.Errorf("%w: unknown event %T", domain.ErrIllegalTransition, ev)
}

func illegal(s State, ev Event) error {
	return fmt.Errorf("%w: %s during %s", domain.ErrIllegalTransition, ev.eventName(), s.Phase)
}

func onLoaded(s State, e Loaded) (State, []Effect, error) {
	if s.Phase != PhaseIntro {
		return s, nil, illegal(s, e)
	}
	s.Content = e.Content
	s.Loaded = true
	s.Error = ""
	s.Redirect = ""
	return s, nil, nil
}

func onLoadFailed(s State, e LoadFailed) (State, []Effect, error) {
	if s.Phase != PhaseIntro {
		return s, nil, illegal(s, e)
	}
	s.Loaded = false
	s.Error = msgLoadFailed
	if errors.Is(e.Err, domain.ErrNoQuestions) {
		s.Error = msgNoQuestions
	}
	s.Redirect = CatalogPath
	return s, nil, nil
}

func onBegin(s State) (State, []Effect, error) {
	if s.Phase != PhaseIntro {
		return s, nil, illegal(s, Begin{})
	}
	if !s.Loaded {
		return s, nil, fmt.Errorf("%w: assessment content unavailable", domain.ErrIllegalTransition)
	}
	if s.questionCount() == 0 {
		s.Error = msgNoQuestions
		s.Redirect = CatalogPath
		return s, nil, nil
	}
	s.Phase = PhaseEnvironmentCheck
	s.Generation++
	s.Risk = ""
	s.Verdict = nil
	s.Prompt = PromptNone
	s.Error = ""
	s.Redirect = ""
	return s, []Effect{DetectEnvironment{Generation: s.Generation}}, nil
}

func onVerdict(s State, e Verdict) (State, []Effect, error) {
	if s.Phase != PhaseEnvironmentCheck || e.Generation != s.Generation || s.Prompt != PromptNone {
		return s, nil, nil
	}
	if e.Err != nil {
		s.Prompt = PromptRetry
		s.Error = msgEnvUnavailable
		return s, nil, nil
	}
	v := e.Verdict
	s.Verdict = &v
	s.Risk = v.Level()
	if v.Risky() {
		s.Prompt = PromptRiskDecision
	} else {
		s.Prompt = PromptConsent
	}
	return s, nil, nil
}

func backToIntro(s State) State {
	s.Phase = PhaseIntro
	s.Generation++
	s.Risk = ""
	s.Verdict = nil
	s.Prompt = PromptNone
	s.Error = ""
	return s
}

func onConsent(s State, e Consent, now time.Time) (State, []Effect, error) {
	if s.Phase != PhaseEnvironmentCheck || s.Prompt != PromptConsent {
		return s, nil, illegal(s, e)
	}
	if !e.Accepted {
		s = backToIntro(s)
		s.Error = msgConsentDenied
		return s, nil, nil
	}
	end := now.Add(time.Duration(s.Content.Assessment.Duration) * time.Minute)
	return start(s, now, end, true)
}

func onResume(s State, e Resume, now time.Time) (State, []Effect, error) {
	if s.Phase != PhaseIntro || !s.Loaded || s.questionCount() == 0 {
		return s, nil, illegal(s, e)
	}
	s.Risk = e.Risk
	if s.Risk == "" {
		s.Risk = risk.LevelLow
	}
	s, effects, err := start(s, now, e.EndTime, false)
	if err != nil {
		return s, nil, err
	}
	if s.Remaining == 0 {
		return finish(s, now)
	}
	return s, effects, nil
}

func start(s State, now, end time.Time, persist bool) (State, []Effect, error) {
	s.Phase = PhaseInProgress
	s.Generation++
	s.Index = 0
	s.Answers = map[string]domain.UserAnswer{}
	s.Timings = map[string]int{}
	s.EnteredAt = now
	s.EndTime = end
	s.Remaining = timer.Remaining(end, now)
	s.Prompt = PromptNone
	s.Error = ""
	s.Redirect = ""
	s.Result = nil
	return s, []Effect{StartAttempt{
		Generation: s.Generation,
		EndTime:    end,
		Risk:       s.Risk,
		Persist:    persist,
	}}, nil
}

func onAnswer(s State, e Answer, now time.Time) (State, []Effect, error) {
	if s.Phase != PhaseInProgress {
		return s, nil, domain.ErrNotInProgress
	}
	q, idx, ok := s.question(e.Answer.QuestionID)
	if !ok {
		return s, nil, domain.ErrQuestionNotFound
	}
	answer := e.Answer.Normalized()
	if q.IsChoice() {
		for _, id := range answer.SelectedOptions {
			if !q.HasOption(id) {
				return s, nil, fmt.Errorf("%w: %s", domain.ErrOptionNotFound, id)
			}
		}
		if q.SingleSelection() && len(answer.SelectedOptions) > 1 {
			return s, nil, domain.ErrInvalidAnswer
		}
	} else if len(answer.SelectedOptions) > 0 {
		return s, nil, domain.ErrInvalidAnswer
	}

	answers := make(map[string]domain.UserAnswer, len(s.Answers)+1)
	for k, v := range s.Answers {
		answers[k] = v
	}
	answers[q.ID] = answer
	s.Answers = answers

	if q.SingleSelection() && len(answer.SelectedOptions) == 1 && idx == s.Index && idx < s.questionCount()-1 {
		s = moveTo(s, idx+1, now)
	}
	return s, nil, nil
}

func moveTo(s State, target int, now time.Time) State {
	s = flushTiming(s, now)
	s.Index = target
	s.EnteredAt = now
	return s
}

// flushTiming adds the time spent on the current question since it was entered.
func flushTiming(s State, now time.Time) State {
	q, ok := s.current()
	if !ok {
		return s
	}
	elapsed := int(now.Sub(s.EnteredAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	timings := make(map[string]int, len(s.Timings)+1)
	for k, v := range s.Timings {
		timings[k] = v
	}
	timings[q.ID] += elapsed
	s.Timings = timings
	s.EnteredAt = now
	return s
}

func finish(s State, now time.Time) (State, []Effect, error) {
	s = flushTiming(s, now)
	s.Phase = PhaseResults
	s.Generation++
	s.Remaining = timer.Remaining(s.EndTime, now)

	result := grading.Score(s.Content.Assessment, s.Content.Questions, s.Answers, s.Timings)
	s.Result = &result
	s.Recommending = true

	incorrect := make(map[string]struct{})
	for _, id := range result.Incorrect() {
		incorrect[id] = struct{}{}
	}
	var prompts []string
	for _, q := range s.Content.Questions {
		if _, ok := incorrect[q.ID]; ok {
			prompts = append(prompts, q.Prompt)
		}
	}

	return s, []Effect{
		StopAttempt{},
		ClearTimer{},
		SubmitResults{Submission: result.Submission()},
		RequestRecommendations{
			Generation: s.Generation,
			Request: recommend.Request{
				AssessmentTitle:    s.Content.Assessment.Title,
				AssessmentCategory: s.Content.Assessment.Category,
				Questions:          s.Content.Questions,
				UserAttempts:       result.Attempts,
			},
			Prompts: prompts,
		},
	}, nil
}

// onDisqualify is idempotent: anything but an in-progress attempt of the
// same generation is ignored. Generation zero targets the current entry.
func onDisqualify(s State, e Disqualify) (State, []Effect, error) {
	if s.Phase != PhaseInProgress {
		return s, nil, nil
	}
	if e.Generation != 0 && e.Generation != s.Generation {
		return s, nil, nil
	}
	reason := e.Reason
	if reason == "" {
		reason = integrity.ReasonDefault
	}
	s.Phase = PhaseDisqualified
	s.Reason = reason
	s.Generation++
	return s, []Effect{StopAttempt{}, PersistDisqualification{Reason: reason}}, nil
}
