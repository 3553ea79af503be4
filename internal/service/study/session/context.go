package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/engine"
	"github.com/avolkov/srscore/internal/service/study/pool"
)

// Context is the owned, caller-held session value the design notes call for
// (§9): pool membership, the feedback buffer, and verb-pair pending grades
// all live here instead of a process-wide singleton. It is mutated only
// through the Assembler's Submit, Flush, EndSession and AbandonSession.
type Context struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ExerciseType domain.ExerciseType
	Status       domain.SessionStatus
	StartedAt    time.Time

	pool        *domain.PoolSnapshot
	position    int
	verbPending map[uuid.UUID]*verbPending

	pendingCards  map[domain.CardKey]domain.CardState
	pendingEvents []domain.ReviewEvent
}

// verbPending tracks the two tense grades a verb item needs before pool
// membership can be recombined per §4.5's verb combining rule.
type verbPending struct {
	perfectum *domain.Grade
	pastTense *domain.Grade
}

// Submit processes one graded item: runs the update engine for scored
// draws, tags KNOWN draws with a no-op event, and buffers both the updated
// card and the review event for the next Flush. It never touches storage
// directly — only LoadCard, to read the card's current state.
func (a *Assembler) Submit(ctx context.Context, sc *Context, item domain.SessionItem, grade domain.Grade, now time.Time, latencyMs *int) error {
	if sc.Status != domain.SessionStatusActive {
		return fmt.Errorf("%w: session is not active", domain.ErrInvalidRequest)
	}
	if !grade.IsValid() {
		return fmt.Errorf("%w: invalid grade %q", domain.ErrInvalidRequest, grade)
	}
	if latencyMs != nil && *latencyMs < 0 {
		return fmt.Errorf("%w: negative latency", domain.ErrInvalidRequest)
	}

	position := sc.position
	sc.position++

	key := domain.CardKey{UserID: sc.UserID, WordID: item.WordID, ExerciseType: item.ExerciseType}

	if item.Source == domain.PoolKnown {
		card, err := a.loadOrInit(ctx, key)
		if err != nil {
			return err
		}
		event := engine.KnownNoScoreEvent(card, grade, a.params, now, latencyMs, &sc.ID, &position)
		sc.bufferEvent(event)
		return nil
	}

	card, err := a.loadOrInit(ctx, key)
	if err != nil {
		return err
	}

	result := engine.ProcessReview(engine.ReviewInput{Card: card, Grade: grade, Now: now, LatencyMs: latencyMs, Params: a.params})
	result.Event.SessionID = &sc.ID
	result.Event.PositionInSession = &position
	sc.bufferCard(result.Card)
	sc.bufferEvent(result.Event)

	if item.ExerciseType.IsVerbTense() {
		sc.recordVerbGrade(item, grade)
		return nil
	}

	pool.MoveTo(sc.pool, item.WordID, grade)
	return nil
}

func (a *Assembler) loadOrInit(ctx context.Context, key domain.CardKey) (domain.CardState, error) {
	card, err := a.cards.LoadCard(ctx, key)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.CardState{}, fmt.Errorf("load card: %w", err)
	}
	return domain.InitialCardState(key, a.params.InitialStability, a.params.InitialDifficulty), nil
}

func (sc *Context) bufferCard(card domain.CardState) {
	if sc.pendingCards == nil {
		sc.pendingCards = make(map[domain.CardKey]domain.CardState)
	}
	sc.pendingCards[card.Key] = card
}

func (sc *Context) bufferEvent(event domain.ReviewEvent) {
	sc.pendingEvents = append(sc.pendingEvents, event)
}

// recordVerbGrade stores one tense's grade and, once both tenses of the
// same word have been graded, recombines pool membership exactly once per
// §4.5: AGAIN dominates; EASY+EASY while in STM is EASY; otherwise in STM
// is HARD; otherwise MEDIUM.
func (sc *Context) recordVerbGrade(item domain.SessionItem, grade domain.Grade) {
	p, ok := sc.verbPending[item.WordID]
	if !ok {
		p = &verbPending{}
		sc.verbPending[item.WordID] = p
	}

	g := grade
	switch item.ExerciseType {
	case domain.ExerciseVerbPerfectum:
		p.perfectum = &g
	case domain.ExerciseVerbPastTense:
		p.pastTense = &g
	}

	if p.perfectum == nil || p.pastTense == nil {
		return
	}

	combined := combineVerbGrade(sc.pool, item.WordID, *p.perfectum, *p.pastTense)
	pool.MoveTo(sc.pool, item.WordID, combined)
	delete(sc.verbPending, item.WordID)
}

func combineVerbGrade(snap *domain.PoolSnapshot, wordID uuid.UUID, a, b domain.Grade) domain.Grade {
	if a == domain.GradeAgain || b == domain.GradeAgain {
		return domain.GradeAgain
	}
	current, inPool := snap.Contains(wordID)
	inSTM := inPool && current == domain.PoolSTM
	if inSTM && a == domain.GradeEasy && b == domain.GradeEasy {
		return domain.GradeEasy
	}
	if inSTM {
		return domain.GradeHard
	}
	return domain.GradeMedium
}

// Flush commits every buffered card and event in a single transaction, per
// §5's crash-consistency requirement. Safe to call multiple times; a clean
// flush empties the buffers.
func (a *Assembler) Flush(ctx context.Context, sc *Context) error {
	if len(sc.pendingCards) == 0 && len(sc.pendingEvents) == 0 {
		return nil
	}

	cards := make([]domain.CardState, 0, len(sc.pendingCards))
	for _, c := range sc.pendingCards {
		cards = append(cards, c)
	}
	events := sc.pendingEvents

	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if len(cards) > 0 {
			if err := a.cards.BatchSaveCards(txCtx, cards); err != nil {
				return fmt.Errorf("batch save cards: %w", err)
			}
		}
		if len(events) > 0 {
			if err := a.events.AppendEvents(txCtx, events); err != nil {
				return fmt.Errorf("append events: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("flush session %s: %w", sc.ID, err)
	}

	sc.pendingCards = nil
	sc.pendingEvents = nil

	a.log.InfoContext(ctx, "session flushed",
		slog.String("session_id", sc.ID.String()),
		slog.Int("cards", len(cards)),
		slog.Int("events", len(events)),
	)
	return nil
}

// EndSession flushes pending writes and marks the session finished.
func (a *Assembler) EndSession(ctx context.Context, sc *Context) error {
	if err := a.Flush(ctx, sc); err != nil {
		return err
	}
	sc.Status = domain.SessionStatusFinished
	a.log.InfoContext(ctx, "session finished",
		slog.String("session_id", sc.ID.String()),
		slog.Int("reviewed", sc.position),
	)
	return nil
}

// AbandonSession discards buffered writes and marks the session abandoned,
// per §5's cancellation model — the caller elected to drop partial data
// rather than flush it.
func (a *Assembler) AbandonSession(ctx context.Context, sc *Context) {
	sc.pendingCards = nil
	sc.pendingEvents = nil
	sc.Status = domain.SessionStatusAbandoned
	a.log.InfoContext(ctx, "session abandoned", slog.String("session_id", sc.ID.String()))
}
