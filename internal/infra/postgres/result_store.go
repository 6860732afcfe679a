package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/events"
)

// ResultStore writes graded attempts to assessment_results and
// question_attempts in one transaction.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, userID, assessmentID string, sub domain.Submission) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var resultID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO assessment_results
			   (user_id, assessment_id, score, max_score, percentage, is_passing, time_spent_seconds)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			userID, assessmentID, sub.Score, sub.MaxScore, sub.Percentage, sub.IsPassing, sub.TimeSpentSeconds,
		).Scan(&resultID)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}

		batch := &pgx.Batch{}
		for _, qa := range sub.QuestionAttempts {
			batch.Queue(
				`INSERT INTO question_attempts
				   (result_id, question_id, is_correct, points, selected_options, time_spent_seconds)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				resultID, qa.QuestionID, qa.IsCorrect, qa.Points, qa.SelectedOptions, qa.TimeSpentSeconds,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert question attempt: %w", err)
			}
		}
		return br.Close()
	})
}

// AuditStore appends consumed lifecycle events to attempt_events.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) RecordEvent(ctx context.Context, ev events.Lifecycle) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempt_events
		   (id, type, user_id, assessment_id, from_phase, to_phase, reason, risk, percentage, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.Type), ev.UserID, ev.AssessmentID, ev.From, ev.To, ev.Reason, ev.Risk, ev.Percentage, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}
