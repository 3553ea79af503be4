package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/config"
	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/memory"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeCards struct {
	snapshots map[domain.ExerciseType][]domain.CardSnapshot
	again     map[domain.ExerciseType][]domain.AgainEvent
	loaded    map[domain.CardKey]domain.CardState
	saved     []domain.CardState
}

func (f *fakeCards) SnapshotCards(_ context.Context, _ uuid.UUID, exerciseType domain.ExerciseType) ([]domain.CardSnapshot, error) {
	return f.snapshots[exerciseType], nil
}

func (f *fakeCards) RecentAgainEvents(_ context.Context, _ uuid.UUID, exerciseType domain.ExerciseType, _ time.Time) ([]domain.AgainEvent, error) {
	return f.again[exerciseType], nil
}

func (f *fakeCards) LoadCard(_ context.Context, key domain.CardKey) (domain.CardState, error) {
	c, ok := f.loaded[key]
	if !ok {
		return domain.CardState{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeCards) BatchSaveCards(_ context.Context, cards []domain.CardState) error {
	f.saved = append(f.saved, cards...)
	return nil
}

type fakeEvents struct {
	appended []domain.ReviewEvent
}

func (f *fakeEvents) AppendEvents(_ context.Context, events []domain.ReviewEvent) error {
	f.appended = append(f.appended, events...)
	return nil
}

type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

type fakeLexicon struct {
	words map[uuid.UUID]domain.WordRef
}

func (f *fakeLexicon) ListWords(_ context.Context, filters domain.WordFilters) ([]domain.WordRef, error) {
	var out []domain.WordRef
	if len(filters.WordIDs) > 0 {
		for _, id := range filters.WordIDs {
			if w, ok := f.words[id]; ok {
				out = append(out, w)
			}
		}
		return out, nil
	}
	for _, w := range f.words {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeLexicon) GetWord(_ context.Context, id uuid.UUID) (domain.WordRef, error) {
	w, ok := f.words[id]
	if !ok {
		return domain.WordRef{}, domain.ErrNotFound
	}
	return w, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCfg() config.SessionConfig {
	return config.SessionConfig{
		WordSessionSize:            20,
		VerbSessionSize:            20,
		PrepositionSessionSize:     20,
		LTMSessionFraction:         0.75,
		VerbFilterThreshold:        0.70,
		PrepositionFilterThreshold: 0.70,
	}
}

// ---------------------------------------------------------------------------
// Scenario D: session under LTM shortage fills from NEW.
// ---------------------------------------------------------------------------

func TestStartSession_LTMShortageFillsFromNew(t *testing.T) {
	userID := uuid.New()

	ltmWords := make([]domain.CardSnapshot, 3)
	words := map[uuid.UUID]domain.WordRef{}
	for i := range ltmWords {
		id := uuid.New()
		ltmWords[i] = domain.CardSnapshot{WordID: id, Retrievability: 0.3}
		words[id] = domain.WordRef{WordID: id, Lemma: "ltm"}
	}
	for i := 0; i < 50; i++ {
		id := uuid.New()
		words[id] = domain.WordRef{WordID: id, Lemma: "new"}
	}

	cards := &fakeCards{snapshots: map[domain.ExerciseType][]domain.CardSnapshot{
		domain.ExerciseWordTranslation: ltmWords,
	}}
	lexicon := &fakeLexicon{words: words}

	a := NewAssembler(testLogger(), cards, &fakeEvents{}, lexicon, nil, fakeTx{}, testCfg(), memory.Default())

	req := domain.SessionRequest{UserID: userID, ExerciseType: domain.ExerciseWordTranslation, Size: 20, LTMFraction: 0.75, Seed: 42}
	sc, result, err := a.StartSession(context.Background(), req, time.Now())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(result.Items) != 20 {
		t.Fatalf("got %d items, want 20", len(result.Items))
	}
	if sc.ExerciseType != domain.ExerciseWordTranslation {
		t.Errorf("exercise type = %v", sc.ExerciseType)
	}

	ltmCount := 0
	for _, item := range result.Items {
		if item.Source == domain.PoolLTM {
			ltmCount++
		}
	}
	if ltmCount != 3 {
		t.Errorf("ltm items in session = %d, want 3", ltmCount)
	}
}

// ---------------------------------------------------------------------------
// Scenario E: verb joint classification and two-step expansion.
// ---------------------------------------------------------------------------

func TestStartSession_VerbExpandsToTwoSteps(t *testing.T) {
	userID := uuid.New()
	wordID := uuid.New()

	cards := &fakeCards{
		snapshots: map[domain.ExerciseType][]domain.CardSnapshot{
			domain.ExerciseVerbPerfectum: {{WordID: wordID, Retrievability: 0.4}},
			domain.ExerciseVerbPastTense: {{WordID: wordID, Retrievability: 0.9}},
		},
	}
	lexicon := &fakeLexicon{words: map[uuid.UUID]domain.WordRef{
		wordID: {WordID: wordID, Lemma: "gaan", EnrichedVerb: true, PartOfSpeech: domain.PartOfSpeechVerb},
	}}

	a := NewAssembler(testLogger(), cards, &fakeEvents{}, lexicon, nil, fakeTx{}, testCfg(), memory.Default())

	req := domain.SessionRequest{UserID: userID, ExerciseType: domain.ExerciseVerbPerfectum, Size: 20, LTMFraction: 0.75, Seed: 7}
	sc, result, err := a.StartSession(context.Background(), req, time.Now())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2 (perfectum + past_tense)", len(result.Items))
	}

	steps := map[string]bool{}
	for _, item := range result.Items {
		steps[item.TenseStep] = true
		if item.Source != domain.PoolLTM {
			t.Errorf("item source = %v, want LTM (min(0.4,0.9)=0.4 < R_TARGET)", item.Source)
		}
	}
	if !steps["perfectum"] || !steps["past_tense"] {
		t.Errorf("missing tense steps: %v", steps)
	}

	// Combine: perfectum AGAIN, past_tense EASY -> combined AGAIN -> STM.
	for _, item := range result.Items {
		grade := domain.GradeEasy
		if item.TenseStep == "perfectum" {
			grade = domain.GradeAgain
		}
		if err := a.Submit(context.Background(), sc, item, grade, time.Now(), nil); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if pk, ok := sc.pool.Contains(wordID); !ok || pk != domain.PoolSTM {
		t.Errorf("pool membership after AGAIN+EASY combine = %v, want STM", pk)
	}
}

// ---------------------------------------------------------------------------
// Scenario F: STM exit on EASY.
// ---------------------------------------------------------------------------

func TestSubmit_STMExitsToKnownOnEasy(t *testing.T) {
	userID := uuid.New()
	wordID := uuid.New()
	now := time.Now()

	cards := &fakeCards{
		snapshots: map[domain.ExerciseType][]domain.CardSnapshot{},
		again: map[domain.ExerciseType][]domain.AgainEvent{
			domain.ExerciseWordTranslation: {{WordID: wordID, LatestGrade: domain.GradeHard, OccurredAt: now}},
		},
		loaded: map[domain.CardKey]domain.CardState{},
	}
	lexicon := &fakeLexicon{words: map[uuid.UUID]domain.WordRef{
		wordID: {WordID: wordID, Lemma: "huis"},
	}}

	a := NewAssembler(testLogger(), cards, &fakeEvents{}, lexicon, nil, fakeTx{}, testCfg(), memory.Default())

	req := domain.SessionRequest{UserID: userID, ExerciseType: domain.ExerciseWordTranslation, Size: 20, LTMFraction: 0.75, Seed: 3}
	sc, result, err := a.StartSession(context.Background(), req, now)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Source != domain.PoolSTM {
		t.Fatalf("expected single STM item, got %+v", result.Items)
	}

	if err := a.Submit(context.Background(), sc, result.Items[0], domain.GradeEasy, now, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if pk, ok := sc.pool.Contains(wordID); !ok || pk != domain.PoolKnown {
		t.Errorf("pool membership after STM EASY = %v, want KNOWN", pk)
	}

	if err := a.EndSession(context.Background(), sc); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if sc.Status != domain.SessionStatusFinished {
		t.Errorf("status = %v, want Finished", sc.Status)
	}
}

// ---------------------------------------------------------------------------
// Scenario G: KNOWN-pool draws still log the submitted grade.
// ---------------------------------------------------------------------------

func TestSubmit_KnownPoolLogsSubmittedGradeWithoutMutatingState(t *testing.T) {
	userID := uuid.New()
	wordID := uuid.New()
	now := time.Now()

	card := domain.CardState{
		Key:        domain.CardKey{UserID: userID, WordID: wordID, ExerciseType: domain.ExerciseWordTranslation},
		Stability:  30,
		Difficulty: 5,
	}

	events := &fakeEvents{}
	cards := &fakeCards{
		snapshots: map[domain.ExerciseType][]domain.CardSnapshot{
			domain.ExerciseWordTranslation: {{WordID: wordID, Retrievability: 0.95}},
		},
		loaded: map[domain.CardKey]domain.CardState{card.Key: card},
	}
	lexicon := &fakeLexicon{words: map[uuid.UUID]domain.WordRef{
		wordID: {WordID: wordID, Lemma: "huis"},
	}}

	a := NewAssembler(testLogger(), cards, events, lexicon, nil, fakeTx{}, testCfg(), memory.Default())

	req := domain.SessionRequest{UserID: userID, ExerciseType: domain.ExerciseWordTranslation, Size: 20, LTMFraction: 0.75, Seed: 11}
	sc, result, err := a.StartSession(context.Background(), req, now)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Source != domain.PoolKnown {
		t.Fatalf("expected single KNOWN item, got %+v", result.Items)
	}

	latency := 800
	if err := a.Submit(context.Background(), sc, result.Items[0], domain.GradeMedium, now, &latency); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := a.EndSession(context.Background(), sc); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	if len(cards.saved) != 0 {
		t.Errorf("expected no card state saved for a KNOWN draw, got %d", len(cards.saved))
	}
	if len(events.appended) != 1 {
		t.Fatalf("expected one appended event, got %d", len(events.appended))
	}
	got := events.appended[0]
	if got.Grade != domain.GradeMedium {
		t.Errorf("event grade = %q, want %q", got.Grade, domain.GradeMedium)
	}
	if got.LatencyMs == nil || *got.LatencyMs != 800 {
		t.Errorf("event latency = %v, want 800", got.LatencyMs)
	}
	if got.Kind != domain.EventKindKnownNoScore {
		t.Errorf("event kind = %v, want KNOWN_NO_SCORE", got.Kind)
	}
}
