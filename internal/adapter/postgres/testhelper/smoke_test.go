package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/domain"
)

func TestSetupTestDB_Smoke(t *testing.T) {
	pool := SetupTestDB(t)

	userID, wordID := uuid.New(), uuid.New()
	card := SeedCardState(t, pool, userID, wordID, domain.ExerciseWordTranslation)

	var stability float64
	err := pool.QueryRow(
		context.Background(),
		`SELECT stability FROM card_state WHERE user_id = $1 AND word_id = $2 AND exercise_type = $3`,
		userID, wordID, string(domain.ExerciseWordTranslation),
	).Scan(&stability)
	if err != nil {
		t.Fatalf("expected card_state row in DB, got error: %v", err)
	}
	if stability != card.Stability {
		t.Fatalf("expected stability %f, got %f", card.Stability, stability)
	}

	event := SeedReviewEvent(t, pool, userID, wordID, domain.ExerciseWordTranslation, domain.GradeAgain, time.Now().UTC())

	var grade string
	err = pool.QueryRow(
		context.Background(),
		`SELECT grade FROM review_events WHERE id = $1`,
		event.ID,
	).Scan(&grade)
	if err != nil {
		t.Fatalf("expected review_events row in DB, got error: %v", err)
	}
	if grade != string(domain.GradeAgain) {
		t.Fatalf("expected grade %q, got %q", domain.GradeAgain, grade)
	}
}
