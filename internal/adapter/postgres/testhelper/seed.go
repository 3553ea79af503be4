package testhelper

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avolkov/srscore/internal/domain"
)

// SeedCardState inserts one card_state row and returns the CardState it
// represents. Callers override individual fields on the returned value and
// re-save through the repo under test where a scenario needs it.
func SeedCardState(t *testing.T, pool *pgxpool.Pool, userID, wordID uuid.UUID, exerciseType domain.ExerciseType) domain.CardState {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := domain.CardState{
		Key:                  domain.CardKey{UserID: userID, WordID: wordID, ExerciseType: exerciseType},
		Stability:            2.0,
		Difficulty:           5.0,
		EffectiveDifficulty:  5.0,
		ReviewCount:          1,
		LastReviewAt:         now,
		STMSuccessCountToday: 0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	_, err := pool.Exec(context.Background(), `
		INSERT INTO card_state (user_id, word_id, exercise_type, stability, difficulty,
			effective_difficulty, review_count, last_review_at, last_ltm_at, ltm_review_date,
			stm_success_count_today, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.Key.UserID, c.Key.WordID, string(c.Key.ExerciseType),
		c.Stability, c.Difficulty, c.EffectiveDifficulty,
		c.ReviewCount, c.LastReviewAt, c.LastLTMAt, c.LTMReviewDate,
		c.STMSuccessCountToday, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: seed card_state: %v", err)
	}
	return c
}

// SeedCardStateWithRetrievability seeds a card whose stored stability and
// last_ltm_at combine (under the default memory-model decay) to land close
// to the given retrievability as of seedAt. Tests that need a specific pool
// placement (LTM vs KNOWN) use this instead of hand-picking stability.
func SeedCardStateWithRetrievability(t *testing.T, pool *pgxpool.Pool, userID, wordID uuid.UUID, exerciseType domain.ExerciseType, retrievability float64, seedAt time.Time) domain.CardState {
	t.Helper()

	c := SeedCardState(t, pool, userID, wordID, exerciseType)
	lastLTM := seedAt.Add(-24 * time.Hour)
	c.LastLTMAt = &lastLTM

	clamped := retrievability
	if clamped <= 0 {
		clamped = 0.0001
	}
	if clamped >= 1 {
		clamped = 0.9999
	}
	// S chosen so that exp(-1/S) == retrievability for a one-day elapsed gap.
	c.Stability = -1.0 / math.Log(clamped)

	_, err := pool.Exec(context.Background(), `
		UPDATE card_state SET stability = $1, last_ltm_at = $2, updated_at = $3
		WHERE user_id = $4 AND word_id = $5 AND exercise_type = $6`,
		c.Stability, c.LastLTMAt, time.Now().UTC(),
		c.Key.UserID, c.Key.WordID, string(c.Key.ExerciseType),
	)
	if err != nil {
		t.Fatalf("testhelper: seed card_state with retrievability: %v", err)
	}
	return c
}

// SeedReviewEvent inserts one review_events row for the given word with the
// given grade and timestamp — the shape recent_again_events scans over.
func SeedReviewEvent(t *testing.T, pool *pgxpool.Pool, userID, wordID uuid.UUID, exerciseType domain.ExerciseType, grade domain.Grade, reviewedAt time.Time) domain.ReviewEvent {
	t.Helper()

	e := domain.ReviewEvent{
		ID:         uuid.New(),
		CardKey:    domain.CardKey{UserID: userID, WordID: wordID, ExerciseType: exerciseType},
		ReviewedAt: reviewedAt,
		Grade:      grade,
		Kind:       domain.EventKindLTM,
	}

	_, err := pool.Exec(context.Background(), `
		INSERT INTO review_events (id, user_id, word_id, exercise_type, reviewed_at, grade, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.WordID, string(e.ExerciseType), e.ReviewedAt, string(e.Grade), string(e.Kind),
	)
	if err != nil {
		t.Fatalf("testhelper: seed review_events: %v", err)
	}
	return e
}
