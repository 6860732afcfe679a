// Package catalog resolves assessment content from documents that carry
// questions either inline or by reference.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"proctor-session-service/internal/domain"
)

// maxConcurrentFetches bounds per-question lookups for one assessment.
const maxConcurrentFetches = 8

// Loader fetches raw assessment documents and individual questions from a
// backing store.
type Loader interface {
	LoadAssessment(ctx context.Context, assessmentID string) (domain.AssessmentDocument, error)
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// Repository returns fully resolved assessment content.
type Repository interface {
	GetContent(ctx context.Context, assessmentID string) (domain.Content, error)
}

// Resolve loads the assessment and its questions. Inline questions are used
// as-is; referenced ones are fetched concurrently and skipped when they cannot
// be resolved. Zero resolved questions yields domain.ErrNoQuestions.
func Resolve(ctx context.Context, loader Loader, assessmentID string) (domain.Content, error) {
	doc, err := loader.LoadAssessment(ctx, assessmentID)
	if err != nil {
		return domain.Content{}, fmt.Errorf("load assessment %s: %w", assessmentID, err)
	}

	refs := doc.Questions
	if len(refs) == 0 {
		for _, id := range doc.QuestionIDs {
			refs = append(refs, domain.QuestionRef{ID: id})
		}
	}

	resolved := make([]*domain.Question, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, ref := range refs {
		if ref.Question != nil {
			q := *ref.Question
			resolved[i] = &q
			continue
		}
		if ref.ID == "" {
			continue
		}
		i, id := i, ref.ID
		g.Go(func() error {
			q, err := loader.LoadQuestion(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Warn().Err(err).Str("assessment_id", assessmentID).Str("question_id", id).Msg("skipping unresolvable question")
				return nil
			}
			resolved[i] = &q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Content{}, fmt.Errorf("resolve questions: %w", err)
	}

	content := domain.Content{Assessment: doc.Assessment}
	for _, q := range resolved {
		if q == nil {
			continue
		}
		if q.AssessmentID == "" {
			q.AssessmentID = doc.ID
		}
		content.Questions = append(content.Questions, *q)
	}
	if len(content.Questions) == 0 {
		return domain.Content{}, domain.ErrNoQuestions
	}
	if content.Assessment.ID == "" {
		content.Assessment.ID = assessmentID
	}
	sortByOrder(content.Questions)
	content.Assessment.QuestionIDs = make([]string, len(content.Questions))
	for i, q := range content.Questions {
		content.Assessment.QuestionIDs[i] = q.ID
	}
	return content, nil
}

// sortByOrder applies explicit question order when every question carries one.
func sortByOrder(qs []domain.Question) {
	for _, q := range qs {
		if q.Order == 0 {
			return
		}
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
}

// StaticLoader serves documents from memory. Useful for tests and demos.
type StaticLoader struct {
	assessments map[string]domain.AssessmentDocument
	questions   map[string]domain.Question
}

func NewStaticLoader(assessments map[string]domain.AssessmentDocument, questions map[string]domain.Question) *StaticLoader {
	if assessments == nil {
		assessments = map[string]domain.AssessmentDocument{}
	}
	if questions == nil {
		questions = map[string]domain.Question{}
	}
	return &StaticLoader{assessments: assessments, questions: questions}
}

func (l *StaticLoader) LoadAssessment(_ context.Context, assessmentID string) (domain.AssessmentDocument, error) {
	if doc, ok := l.assessments[assessmentID]; ok {
		return doc, nil
	}
	return domain.AssessmentDocument{}, domain.ErrAssessmentNotFound
}

func (l *StaticLoader) LoadQuestion(_ context.Context, questionID string) (domain.Question, error) {
	if q, ok := l.questions[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// Uncached resolves on every call.
type Uncached struct {
	Loader Loader
}

func (u Uncached) GetContent(ctx context.Context, assessmentID string) (domain.Content, error) {
	return Resolve(ctx, u.Loader, assessmentID)
}
