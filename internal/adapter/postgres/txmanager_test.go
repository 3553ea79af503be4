package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avolkov/srscore/internal/adapter/postgres"
	"github.com/avolkov/srscore/internal/adapter/postgres/testhelper"
)

// cardExists checks whether a card_state row for the given word exists.
func cardExists(t *testing.T, pool *pgxpool.Pool, userID, wordID uuid.UUID) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(
		context.Background(),
		`SELECT EXISTS(SELECT 1 FROM card_state WHERE user_id = $1 AND word_id = $2)`,
		userID, wordID,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("cardExists query: %v", err)
	}
	return exists
}

func insertCard(ctx context.Context, q postgres.Querier, userID, wordID uuid.UUID) error {
	_, err := q.Exec(ctx,
		`INSERT INTO card_state (user_id, word_id, exercise_type, stability, difficulty,
			effective_difficulty, review_count, last_review_at)
		 VALUES ($1, $2, 'word_translation', 2.0, 5.0, 5.0, 1, now())`,
		userID, wordID,
	)
	return err
}

func TestRunInTx_Commit(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	tm := postgres.NewTxManager(pool)

	userID, wordID := uuid.New(), uuid.New()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return insertCard(ctx, postgres.QuerierFromCtx(ctx, pool), userID, wordID)
	})
	if err != nil {
		t.Fatalf("RunInTx returned error: %v", err)
	}

	if !cardExists(t, pool, userID, wordID) {
		t.Fatal("expected card_state row to exist after committed transaction")
	}
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	tm := postgres.NewTxManager(pool)

	userID, wordID := uuid.New(), uuid.New()
	sentinel := errors.New("business logic error")

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		if execErr := insertCard(ctx, postgres.QuerierFromCtx(ctx, pool), userID, wordID); execErr != nil {
			t.Fatalf("insert inside tx failed: %v", execErr)
		}
		return sentinel
	})

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got: %v", err)
	}

	if cardExists(t, pool, userID, wordID) {
		t.Fatal("expected card_state row NOT to exist after rolled-back transaction")
	}
}

func TestRunInTx_RollbackOnPanic(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	tm := postgres.NewTxManager(pool)

	userID, wordID := uuid.New(), uuid.New()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic to be re-raised")
		}
		if r != "test panic" {
			t.Fatalf("expected panic value %q, got %v", "test panic", r)
		}

		if cardExists(t, pool, userID, wordID) {
			t.Fatal("expected card_state row NOT to exist after panic-rolled-back transaction")
		}
	}()

	_ = tm.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := insertCard(ctx, postgres.QuerierFromCtx(ctx, pool), userID, wordID); err != nil {
			t.Fatalf("insert inside tx failed: %v", err)
		}
		panic("test panic")
	})
}

func TestRunInTx_QuerierFromCtx_UsesTx(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	tm := postgres.NewTxManager(pool)

	userID, wordID := uuid.New(), uuid.New()

	// Insert inside a transaction, then verify it's visible within the same tx
	// but not outside until commit.
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, pool)
		if err := insertCard(ctx, q, userID, wordID); err != nil {
			return err
		}

		var exists bool
		err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM card_state WHERE user_id = $1 AND word_id = $2)`, userID, wordID).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			t.Fatal("expected card_state row to be visible within the transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx returned error: %v", err)
	}

	if !cardExists(t, pool, userID, wordID) {
		t.Fatal("expected card_state row to exist after committed transaction")
	}
}
