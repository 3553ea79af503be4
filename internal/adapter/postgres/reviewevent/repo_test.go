package reviewevent_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/adapter/postgres/reviewevent"
	"github.com/avolkov/srscore/internal/adapter/postgres/testhelper"
	"github.com/avolkov/srscore/internal/domain"
)

func TestRepo_AppendEvents_Empty(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	repo := reviewevent.New(pool)

	if err := repo.AppendEvents(context.Background(), nil); err != nil {
		t.Fatalf("AppendEvents(nil): unexpected error: %v", err)
	}
}

func TestRepo_AppendEvents_WritesSnapshotsAndSessionMetadata(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	repo := reviewevent.New(pool)
	ctx := context.Background()

	userID, wordID, sessionID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	latency := 1200
	pos := 3
	mode := "recognition"

	event := domain.ReviewEvent{
		ID:         uuid.New(),
		CardKey:    domain.CardKey{UserID: userID, WordID: wordID, ExerciseType: domain.ExerciseWordTranslation},
		ReviewedAt: now,
		Grade:      domain.GradeHard,
		LatencyMs:  &latency,
		Before: &domain.CardStateSnapshot{
			Stability: 2.0, Difficulty: 5.0, EffectiveDifficulty: 5.0, Retrievability: 0.6,
		},
		After: &domain.CardStateSnapshot{
			Stability: 2.8, Difficulty: 5.1, EffectiveDifficulty: 5.1, Retrievability: 1.0,
		},
		Kind:              domain.EventKindLTM,
		SessionID:         &sessionID,
		PositionInSession: &pos,
		PresentationMode:  &mode,
	}

	if err := repo.AppendEvents(ctx, []domain.ReviewEvent{event}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	var grade, kind string
	var afterStability float64
	var gotSessionID uuid.UUID
	err := pool.QueryRow(ctx,
		`SELECT grade, kind, after_stability, session_id FROM review_events WHERE id = $1`,
		event.ID,
	).Scan(&grade, &kind, &afterStability, &gotSessionID)
	if err != nil {
		t.Fatalf("query inserted event: %v", err)
	}

	if grade != string(domain.GradeHard) {
		t.Errorf("grade = %q, want %q", grade, domain.GradeHard)
	}
	if kind != string(domain.EventKindLTM) {
		t.Errorf("kind = %q, want %q", kind, domain.EventKindLTM)
	}
	if afterStability != 2.8 {
		t.Errorf("after_stability = %f, want 2.8", afterStability)
	}
	if gotSessionID != sessionID {
		t.Errorf("session_id = %s, want %s", gotSessionID, sessionID)
	}
}

func TestRepo_AppendEvents_BatchOfMultiple(t *testing.T) {
	t.Parallel()
	pool := testhelper.SetupTestDB(t)
	repo := reviewevent.New(pool)
	ctx := context.Background()

	userID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	events := make([]domain.ReviewEvent, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, domain.ReviewEvent{
			ID:         uuid.New(),
			CardKey:    domain.CardKey{UserID: userID, WordID: uuid.New(), ExerciseType: domain.ExerciseWordTranslation},
			ReviewedAt: now,
			Grade:      domain.GradeMedium,
			Kind:       domain.EventKindSTM,
		})
	}

	if err := repo.AppendEvents(ctx, events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM review_events WHERE user_id = $1`, userID).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 rows, got %d", count)
	}
}
