package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"proctor-session-service/internal/domain"
)

// Loader loads assessment and question JSONB documents from Postgres.
type Loader struct {
	pool *pgxpool.Pool
}

func NewLoader(pool *pgxpool.Pool) *Loader {
	return &Loader{pool: pool}
}

func (l *Loader) LoadAssessment(ctx context.Context, assessmentID string) (domain.AssessmentDocument, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM assessments WHERE id=$1`, assessmentID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssessmentDocument{}, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return domain.AssessmentDocument{}, fmt.Errorf("load assessment: %w", err)
	}
	var doc domain.AssessmentDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.AssessmentDocument{}, fmt.Errorf("unmarshal assessment: %w", err)
	}
	if doc.ID == "" {
		doc.ID = assessmentID
	}
	return doc, nil
}

func (l *Loader) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM questions WHERE id=$1`, questionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal question: %w", err)
	}
	if q.ID == "" {
		q.ID = questionID
	}
	return q, nil
}

// SaveAssessment upserts an assessment document, for seeding.
func (l *Loader) SaveAssessment(ctx context.Context, doc domain.AssessmentDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO assessments (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, doc.ID, raw)
	if err != nil {
		return fmt.Errorf("save assessment: %w", err)
	}
	return nil
}

// SaveQuestion upserts a standalone question document, for seeding.
func (l *Loader) SaveQuestion(ctx context.Context, q domain.Question) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO questions (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, q.ID, raw)
	if err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	return nil
}
