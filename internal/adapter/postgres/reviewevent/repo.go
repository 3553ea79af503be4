// Package reviewevent implements the append-only review_events log against
// PostgreSQL: every submitted grade is written once, in event order, inside
// the same batch round trip.
package reviewevent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/avolkov/srscore/internal/adapter/postgres"
	"github.com/avolkov/srscore/internal/domain"
)

// Repo provides review_events persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a review_events repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// AppendEvents writes every event in one pgx.Batch round trip. Callers that
// need card_state and review_events to commit atomically run this inside
// the same transaction as BatchSaveCards (see session.Assembler.Flush).
func (r *Repo) AppendEvents(ctx context.Context, events []domain.ReviewEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		var beforeStability, beforeDifficulty, beforeEffDiff, beforeR *float64
		if e.Before != nil {
			beforeStability, beforeDifficulty = &e.Before.Stability, &e.Before.Difficulty
			beforeEffDiff, beforeR = &e.Before.EffectiveDifficulty, &e.Before.Retrievability
		}
		var afterStability, afterDifficulty, afterEffDiff, afterR *float64
		if e.After != nil {
			afterStability, afterDifficulty = &e.After.Stability, &e.After.Difficulty
			afterEffDiff, afterR = &e.After.EffectiveDifficulty, &e.After.Retrievability
		}

		batch.Queue(insertEventSQL,
			e.ID, e.UserID, e.WordID, string(e.ExerciseType),
			e.ReviewedAt, string(e.Grade), e.LatencyMs,
			beforeStability, beforeDifficulty, beforeEffDiff, beforeR,
			afterStability, afterDifficulty, afterEffDiff, afterR,
			string(e.Kind), e.SessionID, e.PositionInSession, e.PresentationMode,
		)
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

const insertEventSQL = `
INSERT INTO review_events (
	id, user_id, word_id, exercise_type,
	reviewed_at, grade, latency_ms,
	before_stability, before_difficulty, before_effective_difficulty, before_retrievability,
	after_stability, after_difficulty, after_effective_difficulty, after_retrievability,
	kind, session_id, position_in_session, presentation_mode
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

// mapErr mirrors the root postgres package's error mapping — duplicated
// locally rather than exported, matching how each adapter package here
// owns its own mapError.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("append review event: %w", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("append review event: %w", domain.ErrAlreadyExists)
		case "23503":
			return fmt.Errorf("append review event: %w", domain.ErrNotFound)
		case "23514":
			return fmt.Errorf("append review event: %w", domain.ErrValidation)
		}
	}
	return fmt.Errorf("append review event: %w", err)
}
