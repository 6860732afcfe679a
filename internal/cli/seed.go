package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/config"
	"proctor-session-service/internal/domain"
	pgstore "proctor-session-service/internal/infra/postgres"
	"proctor-session-service/internal/logger"
)

// NewSeedCmd loads the demo assessments into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed demo assessments into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	loader := pgstore.NewLoader(pool)
	for _, q := range sampleQuestions() {
		if err := loader.SaveQuestion(ctx, q); err != nil {
			return err
		}
	}
	for id, doc := range sampleAssessments() {
		if err := loader.SaveAssessment(ctx, doc); err != nil {
			return err
		}
		log.Info().Str("assessment_id", id).Msg("seeded assessment")
	}
	return nil
}

func sampleLoader() *catalog.StaticLoader {
	questions := make(map[string]domain.Question)
	for _, q := range sampleQuestions() {
		questions[q.ID] = q
	}
	return catalog.NewStaticLoader(sampleAssessments(), questions)
}

// sampleAssessments provides demo content used when no database is
// configured. go-concurrency references standalone questions by id.
func sampleAssessments() map[string]domain.AssessmentDocument {
	basics := []domain.Question{
		{
			ID:         "go-basics-1",
			Prompt:     "Which keyword starts a goroutine?",
			Type:       domain.QuestionMultipleChoice,
			AnswerType: domain.AnswerSingle,
			Options: []domain.Option{
				{ID: "a", Text: "defer"},
				{ID: "b", Text: "go", IsCorrect: true},
				{ID: "c", Text: "async"},
			},
			Points: 1,
			Order:  1,
		},
		{
			ID:         "go-basics-2",
			Prompt:     "Which types are reference-like in Go?",
			Type:       domain.QuestionMultipleChoice,
			AnswerType: domain.AnswerMultiple,
			Options: []domain.Option{
				{ID: "a", Text: "map", IsCorrect: true},
				{ID: "b", Text: "slice", IsCorrect: true},
				{ID: "c", Text: "array"},
				{ID: "d", Text: "struct"},
			},
			Points: 2,
			Order:  2,
		},
		{
			ID:     "go-basics-3",
			Prompt: "A nil map can be read from without panicking.",
			Type:   domain.QuestionTrueFalse,
			Options: []domain.Option{
				{ID: "true", Text: "True", IsCorrect: true},
				{ID: "false", Text: "False"},
			},
			Points: 1,
			Order:  3,
		},
		{
			ID:     "go-basics-4",
			Prompt: "Explain when you would choose a buffered channel.",
			Type:   domain.QuestionText,
			Points: 1,
			Order:  4,
		},
	}
	refs := make([]domain.QuestionRef, len(basics))
	for i := range basics {
		refs[i] = domain.QuestionRef{ID: basics[i].ID, Question: &basics[i]}
	}

	var concurrency []domain.QuestionRef
	for _, q := range sampleQuestions() {
		concurrency = append(concurrency, domain.QuestionRef{ID: q.ID})
	}

	return map[string]domain.AssessmentDocument{
		"go-basics": {
			Assessment: domain.Assessment{ID: "go-basics", Title: "Go Basics", Category: "Programming", Duration: 10, PassPercentage: 70},
			Questions:  refs,
		},
		"go-concurrency": {
			Assessment: domain.Assessment{ID: "go-concurrency", Title: "Go Concurrency", Category: "Programming", Duration: 15, PassPercentage: 60},
			Questions:  concurrency,
		},
	}
}

// sampleQuestions are stored standalone and referenced by id.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:         "go-conc-1",
			Prompt:     "What happens when sending on a closed channel?",
			Type:       domain.QuestionMultipleChoice,
			AnswerType: domain.AnswerSingle,
			Options: []domain.Option{
				{ID: "a", Text: "The send blocks forever"},
				{ID: "b", Text: "The program panics", IsCorrect: true},
				{ID: "c", Text: "The value is dropped"},
			},
		},
		{
			ID:     "go-conc-2",
			Prompt: "sync.WaitGroup can be copied after first use.",
			Type:   domain.QuestionTrueFalse,
			Options: []domain.Option{
				{ID: "true", Text: "True"},
				{ID: "false", Text: "False", IsCorrect: true},
			},
		},
	}
}
