package domain

import (
	"context"

	"github.com/google/uuid"
)

// WordRef is the subset of a lexicon word record the core reads. The core
// treats word records as opaque maps apart from these fields.
type WordRef struct {
	WordID         uuid.UUID
	Lemma          string
	PartOfSpeech   PartOfSpeech
	Translation    string
	EnrichedVerb   bool // perfectum/past_tense metadata present
	HasPreposition bool // at least one usable preposition example
}

// WordFilters narrows ListWords to a candidate set. Most callers use it for
// NEW-pool eligibility (EnrichedOnly/PartsOfSpeech/UserTags); the session
// assembler's hydration batcher instead sets WordIDs to resolve an exact,
// already-known set of ids in one round trip.
type WordFilters struct {
	EnrichedOnly   bool
	PartsOfSpeech  []PartOfSpeech
	UserTags       []string
	ExcludeWordIDs []uuid.UUID
	WordIDs        []uuid.UUID
}

// LexiconReader is the read-only collaborator the core calls to resolve
// word identity and eligibility metadata. It is an external collaborator —
// no production implementation ships in this module.
type LexiconReader interface {
	ListWords(ctx context.Context, filters WordFilters) ([]WordRef, error)
	GetWord(ctx context.Context, wordID uuid.UUID) (WordRef, error)
}
