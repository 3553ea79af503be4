package domain

import (
	"time"

	"github.com/google/uuid"
)

// CardSnapshot is one row of snapshot_cards: retrievability computed at
// snapshot time, alongside the fields the pool builder partitions on.
type CardSnapshot struct {
	WordID         uuid.UUID
	Retrievability float64
	LastLTMAt      *time.Time
	LastReviewAt   time.Time
}

// AgainEvent is one row of recent_again_events: a word that failed within
// the STM lookback window, with the grade it most recently received. A
// word whose latest grade is EASY has exited STM and is excluded by the
// pool builder.
type AgainEvent struct {
	WordID      uuid.UUID
	LatestGrade Grade
	OccurredAt  time.Time
}

// PoolSnapshot is the immutable four-pool partition the pool builder
// produces for one activity launch, plus the retrievability map LTM is
// sorted by. The four member sets are kept pairwise disjoint by MoveTo.
type PoolSnapshot struct {
	ExerciseType ExerciseType

	LTM   map[uuid.UUID]struct{}
	STM   map[uuid.UUID]struct{}
	New   map[uuid.UUID]struct{}
	Known map[uuid.UUID]struct{}

	LTMScore map[uuid.UUID]float64
}

// NewPoolSnapshot returns an empty snapshot for the given activity.
func NewPoolSnapshot(exerciseType ExerciseType) *PoolSnapshot {
	return &PoolSnapshot{
		ExerciseType: exerciseType,
		LTM:          make(map[uuid.UUID]struct{}),
		STM:          make(map[uuid.UUID]struct{}),
		New:          make(map[uuid.UUID]struct{}),
		Known:        make(map[uuid.UUID]struct{}),
		LTMScore:     make(map[uuid.UUID]float64),
	}
}

// MoveTo applies one of the §4.4 in-memory transition rules: the word_id is
// removed from whichever set currently holds it (and from the LTM score
// map) before joining target, so the four pools stay pairwise disjoint.
func (p *PoolSnapshot) MoveTo(wordID uuid.UUID, target PoolKind) {
	delete(p.LTM, wordID)
	delete(p.STM, wordID)
	delete(p.New, wordID)
	delete(p.Known, wordID)
	delete(p.LTMScore, wordID)

	switch target {
	case PoolLTM:
		p.LTM[wordID] = struct{}{}
	case PoolSTM:
		p.STM[wordID] = struct{}{}
	case PoolNew:
		p.New[wordID] = struct{}{}
	case PoolKnown:
		p.Known[wordID] = struct{}{}
	}
}

// Contains reports which pool, if any, currently holds wordID.
func (p *PoolSnapshot) Contains(wordID uuid.UUID) (PoolKind, bool) {
	if _, ok := p.STM[wordID]; ok {
		return PoolSTM, true
	}
	if _, ok := p.LTM[wordID]; ok {
		return PoolLTM, true
	}
	if _, ok := p.New[wordID]; ok {
		return PoolNew, true
	}
	if _, ok := p.Known[wordID]; ok {
		return PoolKnown, true
	}
	return "", false
}

// SessionItem is one entry in an assembled session. TenseStep distinguishes
// the two sequential steps a verb expands into; it is empty for
// non-verb activities.
type SessionItem struct {
	WordID       uuid.UUID
	ExerciseType ExerciseType
	TenseStep    string
	Source       PoolKind
	Word         WordRef
}

// AssembleResult is the session assembler's output. An empty batch is a
// valid outcome, never an error; Reason explains a shortfall against N.
type AssembleResult struct {
	Items  []SessionItem
	Reason string
}

// SessionRequest parameterizes one call to the assembler.
type SessionRequest struct {
	UserID       uuid.UUID
	ExerciseType ExerciseType
	Size         int
	LTMFraction  float64
	Seed         int64
	FilterKnown  bool
}
