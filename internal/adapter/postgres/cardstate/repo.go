// Package cardstate implements the card_state persistence contract against
// PostgreSQL: single-row loads use plain queries, batch writes use
// pgx.Batch, and the per-activity snapshot/recent-failures reads power the
// pool builder.
package cardstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/avolkov/srscore/internal/adapter/postgres"
	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/memory"
)

// Repo provides card_state persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a card_state repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const cardColumns = `user_id, word_id, exercise_type, stability, difficulty, effective_difficulty,
       review_count, last_review_at, last_ltm_at, ltm_review_date, stm_success_count_today,
       created_at, updated_at`

// LoadCard returns the stored state for one card's identity triple.
// domain.ErrNotFound signals no row exists yet — a brand-new card.
func (r *Repo) LoadCard(ctx context.Context, key domain.CardKey) (domain.CardState, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM card_state WHERE user_id = $1 AND word_id = $2 AND exercise_type = $3`,
		key.UserID, key.WordID, string(key.ExerciseType),
	)

	card, err := scanCard(row)
	if err != nil {
		return domain.CardState{}, mapErr(err, "card", key.WordID)
	}
	return card, nil
}

// BatchSaveCards upserts every card in one round trip via pgx.Batch. Caller
// is expected to wrap this in a transaction alongside AppendEvents when both
// must commit together (see session.Assembler.Flush).
func (r *Repo) BatchSaveCards(ctx context.Context, cards []domain.CardState) error {
	if len(cards) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(
			`INSERT INTO card_state (user_id, word_id, exercise_type, stability, difficulty,
			   effective_difficulty, review_count, last_review_at, last_ltm_at, ltm_review_date,
			   stm_success_count_today, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (user_id, word_id, exercise_type) DO UPDATE SET
			   stability = EXCLUDED.stability,
			   difficulty = EXCLUDED.difficulty,
			   effective_difficulty = EXCLUDED.effective_difficulty,
			   review_count = EXCLUDED.review_count,
			   last_review_at = EXCLUDED.last_review_at,
			   last_ltm_at = EXCLUDED.last_ltm_at,
			   ltm_review_date = EXCLUDED.ltm_review_date,
			   stm_success_count_today = EXCLUDED.stm_success_count_today,
			   updated_at = EXCLUDED.updated_at`,
			c.Key.UserID, c.Key.WordID, string(c.Key.ExerciseType),
			c.Stability, c.Difficulty, c.EffectiveDifficulty,
			c.ReviewCount, c.LastReviewAt, c.LastLTMAt, c.LTMReviewDate,
			c.STMSuccessCountToday, now, now,
		)
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for range cards {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch save card_state: %w", err)
		}
	}
	return nil
}

// SnapshotCards returns every stored card for one user/activity with R
// computed as of now. Used once per activity launch by the pool builder.
func (r *Repo) SnapshotCards(ctx context.Context, userID uuid.UUID, exerciseType domain.ExerciseType) ([]domain.CardSnapshot, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx,
		`SELECT word_id, stability, last_ltm_at, last_review_at
		 FROM card_state WHERE user_id = $1 AND exercise_type = $2`,
		userID, string(exerciseType),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot card_state: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []domain.CardSnapshot
	for rows.Next() {
		var s domain.CardSnapshot
		var stability float64
		if err := rows.Scan(&s.WordID, &stability, &s.LastLTMAt, &s.LastReviewAt); err != nil {
			return nil, fmt.Errorf("scan card_state snapshot: %w", err)
		}
		s.Retrievability = memory.Retrievability(stability, s.LastLTMAt, now)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card_state snapshot: %w", err)
	}
	return out, nil
}

// RecentAgainEvents returns, for every word_id with at least one AGAIN event
// since the given timestamp, that word's most recent feedback grade — the
// pool builder excludes words whose latest grade turned out to be EASY.
func (r *Repo) RecentAgainEvents(ctx context.Context, userID uuid.UUID, exerciseType domain.ExerciseType, since time.Time) ([]domain.AgainEvent, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, recentAgainEventsSQL, userID, string(exerciseType), since)
	if err != nil {
		return nil, fmt.Errorf("recent again events: %w", err)
	}
	defer rows.Close()

	var out []domain.AgainEvent
	for rows.Next() {
		var e domain.AgainEvent
		var grade string
		if err := rows.Scan(&e.WordID, &grade, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan again event: %w", err)
		}
		e.LatestGrade = domain.Grade(grade)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate again events: %w", err)
	}
	return out, nil
}

// recentAgainEventsSQL finds words that failed at least once since the
// window start, then reports each one's single most recent feedback grade —
// the pool builder's STM membership test needs the latter, not the failure
// itself.
const recentAgainEventsSQL = `
WITH failures AS (
	SELECT DISTINCT word_id FROM review_events
	WHERE user_id = $1 AND exercise_type = $2 AND grade = 'AGAIN' AND reviewed_at >= $3
)
SELECT DISTINCT ON (re.word_id) re.word_id, re.grade, re.reviewed_at
FROM review_events re
JOIN failures f ON f.word_id = re.word_id
WHERE re.user_id = $1 AND re.exercise_type = $2
ORDER BY re.word_id, re.reviewed_at DESC`

func scanCard(row pgx.Row) (domain.CardState, error) {
	var (
		c             domain.CardState
		userID        uuid.UUID
		wordID        uuid.UUID
		exerciseType  string
		lastReviewAt  time.Time
		lastLTMAt     *time.Time
		ltmReviewDate *time.Time
		createdAt     time.Time
		updatedAt     time.Time
	)

	if err := row.Scan(
		&userID, &wordID, &exerciseType,
		&c.Stability, &c.Difficulty, &c.EffectiveDifficulty,
		&c.ReviewCount, &lastReviewAt, &lastLTMAt, &ltmReviewDate,
		&c.STMSuccessCountToday, &createdAt, &updatedAt,
	); err != nil {
		return domain.CardState{}, err
	}

	c.Key = domain.CardKey{UserID: userID, WordID: wordID, ExerciseType: domain.ExerciseType(exerciseType)}
	c.LastReviewAt = lastReviewAt
	c.LastLTMAt = lastLTMAt
	c.LTMReviewDate = ltmReviewDate
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c, nil
}

// mapErr mirrors the root postgres package's error mapping — duplicated
// locally rather than exported, matching how each adapter package here
// owns its own mapError.
func mapErr(err error, entity string, id uuid.UUID) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrAlreadyExists)
		case "23503":
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
		case "23514":
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrValidation)
		}
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}
