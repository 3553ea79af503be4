package domain

import (
	"time"

	"github.com/google/uuid"
)

// CardKey identifies a card uniquely. Unlike a dictionary entry's card
// (one per entry), a single word carries several independent cards here —
// one per exercise type — so ExerciseType is part of identity.
type CardKey struct {
	UserID       uuid.UUID
	WordID       uuid.UUID
	ExerciseType ExerciseType
}

// CardState holds the memory-model state of a single card. A card with no
// stored row has the implicit state InitialCardState returns; it is never
// materialized until the first review.
type CardState struct {
	Key CardKey

	Stability            float64
	Difficulty           float64
	EffectiveDifficulty  float64
	ReviewCount          int
	LastReviewAt         time.Time
	LastLTMAt            *time.Time
	LTMReviewDate        *time.Time // UTC calendar date, truncated to midnight
	STMSuccessCountToday int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InitialCardState returns the implicit state of a card that has never been
// reviewed: S = initialStability, D = D_eff = initialDifficulty. Callers
// draw both values from the configured memory-model parameters rather than
// a fixed constant, since §4.1 treats them as tunable.
func InitialCardState(key CardKey, initialStability, initialDifficulty float64) CardState {
	return CardState{
		Key:                 key,
		Stability:           initialStability,
		Difficulty:          initialDifficulty,
		EffectiveDifficulty: initialDifficulty,
	}
}

// IsNew reports whether the card has never been reviewed.
func (c *CardState) IsNew() bool {
	return c.ReviewCount == 0 && c.LastLTMAt == nil
}

// CardStateSnapshot is a before/after capture of the scored fields of a
// CardState, stored inline on a ReviewEvent. Nil means "card did not exist
// yet" — the before-snapshot of a brand-new card's first review.
type CardStateSnapshot struct {
	Stability           float64
	Difficulty          float64
	EffectiveDifficulty float64
	Retrievability      float64
}

// ReviewEvent is an append-only log record of a single review.
type ReviewEvent struct {
	ID uuid.UUID
	CardKey

	ReviewedAt time.Time
	Grade      Grade
	LatencyMs  *int

	Before *CardStateSnapshot
	After  *CardStateSnapshot

	Kind EventKind

	SessionID         *uuid.UUID
	PositionInSession *int
	PresentationMode  *string
}
