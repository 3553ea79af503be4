package cardstate

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	postgres "github.com/avolkov/srscore/internal/adapter/postgres"
	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/memory"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// FilterByBaseMeaning narrows candidateWordIDs to those whose
// word_translation card currently clears threshold — the filter_known gate
// §4.4 applies before a verb or preposition activity offers a NEW word. A
// candidate with no base card at all has no recorded base meaning yet and
// is excluded. The candidate set size varies per call, so the WHERE clause
// is assembled dynamically rather than hand-written.
func (r *Repo) FilterByBaseMeaning(ctx context.Context, userID uuid.UUID, candidateWordIDs []uuid.UUID, threshold float64, now time.Time) ([]uuid.UUID, error) {
	if len(candidateWordIDs) == 0 {
		return nil, nil
	}

	query := psql.Select("word_id", "stability", "last_ltm_at").
		From("card_state").
		Where(sq.Eq{
			"user_id":       userID,
			"exercise_type": string(domain.ExerciseWordTranslation),
			"word_id":       candidateWordIDs,
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build base-meaning eligibility query: %w", err)
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query base-meaning eligibility: %w", err)
	}
	defer rows.Close()

	var eligible []uuid.UUID
	for rows.Next() {
		var wordID uuid.UUID
		var stability float64
		var lastLTMAt *time.Time
		if err := rows.Scan(&wordID, &stability, &lastLTMAt); err != nil {
			return nil, fmt.Errorf("scan base-meaning eligibility row: %w", err)
		}
		if memory.Retrievability(stability, lastLTMAt, now) >= threshold {
			eligible = append(eligible, wordID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate base-meaning eligibility: %w", err)
	}
	return eligible, nil
}
