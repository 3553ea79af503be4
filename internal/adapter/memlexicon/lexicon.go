// Package memlexicon provides an in-memory domain.LexiconReader loaded from
// a YAML word list. The scheduling core treats the lexicon as an external
// collaborator; this package exists only so cmd/server has something
// concrete to wire in, not as a production catalog implementation.
package memlexicon

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/avolkov/srscore/internal/domain"
)

// Entry is the on-disk representation of a single word record.
type Entry struct {
	WordID         uuid.UUID           `yaml:"word_id"`
	Lemma          string              `yaml:"lemma"`
	PartOfSpeech   domain.PartOfSpeech `yaml:"part_of_speech"`
	Translation    string              `yaml:"translation"`
	EnrichedVerb   bool                `yaml:"enriched_verb"`
	HasPreposition bool                `yaml:"has_preposition"`
}

// Lexicon is a read-only, in-memory word catalog.
type Lexicon struct {
	byID []domain.WordRef
	idx  map[uuid.UUID]domain.WordRef
}

// Load reads a YAML word list from path and builds a Lexicon.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon file: %w", err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse lexicon file: %w", err)
	}

	lex := &Lexicon{idx: make(map[uuid.UUID]domain.WordRef, len(entries))}
	for _, e := range entries {
		word := domain.WordRef{
			WordID:         e.WordID,
			Lemma:          e.Lemma,
			PartOfSpeech:   e.PartOfSpeech,
			Translation:    e.Translation,
			EnrichedVerb:   e.EnrichedVerb,
			HasPreposition: e.HasPreposition,
		}
		lex.byID = append(lex.byID, word)
		lex.idx[word.WordID] = word
	}
	return lex, nil
}

// ListWords implements domain.LexiconReader.
func (l *Lexicon) ListWords(_ context.Context, filters domain.WordFilters) ([]domain.WordRef, error) {
	if len(filters.WordIDs) > 0 {
		out := make([]domain.WordRef, 0, len(filters.WordIDs))
		for _, id := range filters.WordIDs {
			if w, ok := l.idx[id]; ok {
				out = append(out, w)
			}
		}
		return out, nil
	}

	excluded := make(map[uuid.UUID]bool, len(filters.ExcludeWordIDs))
	for _, id := range filters.ExcludeWordIDs {
		excluded[id] = true
	}
	pos := make(map[domain.PartOfSpeech]bool, len(filters.PartsOfSpeech))
	for _, p := range filters.PartsOfSpeech {
		pos[p] = true
	}

	out := make([]domain.WordRef, 0, len(l.byID))
	for _, w := range l.byID {
		if excluded[w.WordID] {
			continue
		}
		if len(pos) > 0 && !pos[w.PartOfSpeech] {
			continue
		}
		if filters.EnrichedOnly && !w.EnrichedVerb && !w.HasPreposition {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// GetWord implements domain.LexiconReader.
func (l *Lexicon) GetWord(_ context.Context, wordID uuid.UUID) (domain.WordRef, error) {
	w, ok := l.idx[wordID]
	if !ok {
		return domain.WordRef{}, fmt.Errorf("get word %s: %w", wordID, domain.ErrNotFound)
	}
	return w, nil
}
