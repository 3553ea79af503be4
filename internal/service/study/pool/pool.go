// Package pool builds and maintains the four-pool partition (LTM/STM/NEW/
// KNOWN) the session assembler selects from.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/domain"
)

// CardStateReader is the subset of the persistence contract the builder
// needs: a per-activity snapshot of stored cards and recent failures.
type CardStateReader interface {
	SnapshotCards(ctx context.Context, userID uuid.UUID, exerciseType domain.ExerciseType) ([]domain.CardSnapshot, error)
	RecentAgainEvents(ctx context.Context, userID uuid.UUID, exerciseType domain.ExerciseType, since time.Time) ([]domain.AgainEvent, error)
}

// EligibilityParams carries the thresholds the LTM/KNOWN split and
// eligibleNewWords need without
// pulling in the config package directly, keeping this package's only
// dependency direction domain-ward.
type EligibilityParams struct {
	RTarget                    float64
	VerbFilterThreshold        float64
	PrepositionFilterThreshold float64
}

// BaseMeaningFilter narrows a candidate NEW-pool word set to those whose
// word_translation card clears a retrievability threshold — the filter_known
// gate §4.4 specifies for verb and preposition eligibility. Implemented
// against card_state directly so the threshold check never needs a
// lexicon round trip.
type BaseMeaningFilter interface {
	FilterByBaseMeaning(ctx context.Context, userID uuid.UUID, candidateWordIDs []uuid.UUID, threshold float64, now time.Time) ([]uuid.UUID, error)
}

// Builder constructs PoolSnapshots for one activity launch.
type Builder struct {
	cards       CardStateReader
	lexicon     domain.LexiconReader
	baseMeaning BaseMeaningFilter
	params      EligibilityParams
}

// New creates a Builder. baseMeaning may be nil, in which case filter_known
// is accepted but has no effect — useful for callers that don't wire a
// card_state-backed implementation (e.g. unit tests).
func New(cards CardStateReader, lexicon domain.LexiconReader, baseMeaning BaseMeaningFilter, params EligibilityParams) *Builder {
	return &Builder{cards: cards, lexicon: lexicon, baseMeaning: baseMeaning, params: params}
}

// Build produces the §4.4 four-pool snapshot for a non-verb activity launch
// (word_translation, word_preposition). Verb activities use BuildVerbJoint
// because their LTM classification is joint over two exercise types.
func (b *Builder) Build(ctx context.Context, userID uuid.UUID, exerciseType domain.ExerciseType, now time.Time, filterKnown bool) (*domain.PoolSnapshot, error) {
	snaps, err := b.cards.SnapshotCards(ctx, userID, exerciseType)
	if err != nil {
		return nil, fmt.Errorf("snapshot cards: %w", err)
	}

	snap := domain.NewPoolSnapshot(exerciseType)
	hasState := make(map[uuid.UUID]struct{}, len(snaps))

	for _, c := range snaps {
		hasState[c.WordID] = struct{}{}
		if c.Retrievability < b.params.RTarget {
			snap.LTM[c.WordID] = struct{}{}
			snap.LTMScore[c.WordID] = c.Retrievability
		} else {
			snap.Known[c.WordID] = struct{}{}
		}
	}

	eligible, err := b.eligibleNewWords(ctx, userID, exerciseType, now, filterKnown)
	if err != nil {
		return nil, fmt.Errorf("eligible new words: %w", err)
	}
	for _, w := range eligible {
		if _, ok := hasState[w.WordID]; !ok {
			snap.New[w.WordID] = struct{}{}
		}
	}

	if err := b.applySTMOverride(ctx, userID, exerciseType, now, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// BuildVerbJoint produces the joint pool snapshot for a verb activity: a
// word is LTM if either tense has R < R_TARGET (sort score
// min(R_perfectum, R_past)); NEW eligibility requires enriched verb
// metadata; STM is the union of AGAIN events across both tenses.
func (b *Builder) BuildVerbJoint(ctx context.Context, userID uuid.UUID, now time.Time, filterKnown bool) (*domain.PoolSnapshot, error) {
	perf, err := b.cards.SnapshotCards(ctx, userID, domain.ExerciseVerbPerfectum)
	if err != nil {
		return nil, fmt.Errorf("snapshot perfectum cards: %w", err)
	}
	past, err := b.cards.SnapshotCards(ctx, userID, domain.ExerciseVerbPastTense)
	if err != nil {
		return nil, fmt.Errorf("snapshot past-tense cards: %w", err)
	}

	byWord := make(map[uuid.UUID]*jointRetrievability)
	for _, c := range perf {
		j := byWord[c.WordID]
		if j == nil {
			j = &jointRetrievability{}
			byWord[c.WordID] = j
		}
		j.havePerf, j.perf = true, c.Retrievability
	}
	for _, c := range past {
		j := byWord[c.WordID]
		if j == nil {
			j = &jointRetrievability{}
			byWord[c.WordID] = j
		}
		j.havePast, j.past = true, c.Retrievability
	}

	snap := domain.NewPoolSnapshot(domain.ExerciseVerbPerfectum)
	for wordID, j := range byWord {
		r, isLTM := j.classify(b.params.RTarget)
		if isLTM {
			snap.LTM[wordID] = struct{}{}
			snap.LTMScore[wordID] = r
		} else {
			snap.Known[wordID] = struct{}{}
		}
	}

	eligible, err := b.eligibleNewWords(ctx, userID, domain.ExerciseVerbPerfectum, now, filterKnown)
	if err != nil {
		return nil, fmt.Errorf("eligible new verbs: %w", err)
	}
	for _, w := range eligible {
		if _, ok := byWord[w.WordID]; !ok {
			snap.New[w.WordID] = struct{}{}
		}
	}

	since := now.UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	for _, exerciseType := range []domain.ExerciseType{domain.ExerciseVerbPerfectum, domain.ExerciseVerbPastTense} {
		events, err := b.cards.RecentAgainEvents(ctx, userID, exerciseType, since)
		if err != nil {
			return nil, fmt.Errorf("recent again events (%s): %w", exerciseType, err)
		}
		for _, e := range events {
			if e.LatestGrade == domain.GradeEasy {
				continue
			}
			snap.MoveTo(e.WordID, domain.PoolSTM)
		}
	}

	return snap, nil
}

type jointRetrievability struct {
	havePerf, havePast bool
	perf, past         float64
}

// classify implements "LTM if either tense has R < R_TARGET, sort score
// min(R_perfectum, R_past)". A tense with no stored card is treated as
// fully retrievable (R=1.0) for the purposes of the joint minimum, since an
// unreviewed tense carries no urgency signal of its own.
func (j *jointRetrievability) classify(rTarget float64) (score float64, isLTM bool) {
	perf, past := 1.0, 1.0
	if j.havePerf {
		perf = j.perf
	}
	if j.havePast {
		past = j.past
	}
	score = min(perf, past)
	return score, perf < rTarget || past < rTarget
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (b *Builder) applySTMOverride(ctx context.Context, userID uuid.UUID, exerciseType domain.ExerciseType, now time.Time, snap *domain.PoolSnapshot) error {
	since := now.UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	events, err := b.cards.RecentAgainEvents(ctx, userID, exerciseType, since)
	if err != nil {
		return fmt.Errorf("recent again events: %w", err)
	}
	for _, e := range events {
		if e.LatestGrade == domain.GradeEasy {
			continue
		}
		snap.MoveTo(e.WordID, domain.PoolSTM)
	}
	return nil
}

func (b *Builder) eligibleNewWords(ctx context.Context, userID uuid.UUID, exerciseType domain.ExerciseType, now time.Time, filterKnown bool) ([]domain.WordRef, error) {
	filters := domain.WordFilters{}

	switch exerciseType {
	case domain.ExerciseVerbPerfectum, domain.ExerciseVerbPastTense:
		filters.EnrichedOnly = true
		filters.PartsOfSpeech = []domain.PartOfSpeech{domain.PartOfSpeechVerb}
	case domain.ExerciseWordPreposition:
		filters.PartsOfSpeech = []domain.PartOfSpeech{
			domain.PartOfSpeechVerb, domain.PartOfSpeechNoun, domain.PartOfSpeechAdjective,
		}
	}

	words, err := b.lexicon.ListWords(ctx, filters)
	if err != nil {
		return nil, err
	}

	out := words[:0:0]
	for _, w := range words {
		switch exerciseType {
		case domain.ExerciseVerbPerfectum, domain.ExerciseVerbPastTense:
			if !w.EnrichedVerb {
				continue
			}
		case domain.ExerciseWordPreposition:
			if !w.HasPreposition {
				continue
			}
		}
		out = append(out, w)
	}

	if !filterKnown || exerciseType == domain.ExerciseWordTranslation || b.baseMeaning == nil || len(out) == 0 {
		return out, nil
	}

	threshold := b.params.VerbFilterThreshold
	if exerciseType == domain.ExerciseWordPreposition {
		threshold = b.params.PrepositionFilterThreshold
	}

	candidateIDs := make([]uuid.UUID, len(out))
	for i, w := range out {
		candidateIDs[i] = w.WordID
	}
	allowedIDs, err := b.baseMeaning.FilterByBaseMeaning(ctx, userID, candidateIDs, threshold, now)
	if err != nil {
		return nil, fmt.Errorf("filter by base meaning: %w", err)
	}
	allowed := make(map[uuid.UUID]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}

	filtered := out[:0:0]
	for _, w := range out {
		if _, ok := allowed[w.WordID]; ok {
			filtered = append(filtered, w)
		}
	}
	return filtered, nil
}

// MoveTo applies one of the §4.4 transition rules following a review's
// outcome, keeping pool membership consistent without rereading storage.
func MoveTo(snap *domain.PoolSnapshot, wordID uuid.UUID, grade domain.Grade) {
	current, _ := snap.Contains(wordID)

	switch {
	case grade == domain.GradeAgain:
		snap.MoveTo(wordID, domain.PoolSTM)
	case current == domain.PoolSTM:
		if grade == domain.GradeEasy {
			snap.MoveTo(wordID, domain.PoolKnown)
		}
	case current == domain.PoolLTM || current == domain.PoolNew:
		snap.MoveTo(wordID, domain.PoolKnown)
	}
}
