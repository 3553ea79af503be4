// Package engine implements the update engine: the single pure operation
// that transforms a card's memory state given a feedback grade, routing
// between the long-term-memory and short-term-memory branches.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/memory"
)

// ReviewInput holds everything ProcessReview needs. Pure value — no I/O, no
// clock access beyond Now.
type ReviewInput struct {
	Card      domain.CardState
	Grade     domain.Grade
	Now       time.Time
	LatencyMs *int
	Params    memory.Params
}

// ReviewResult is the engine's output: the card's new state and the review
// event record ready to append.
type ReviewResult struct {
	Card  domain.CardState
	Event domain.ReviewEvent
}

// ProcessReview classifies the review as LTM or STM per §4.2 and dispatches
// to the matching branch. It never mutates its input.
func ProcessReview(in ReviewInput) ReviewResult {
	before := snapshot(in.Card, in.Params, in.Now)

	var after domain.CardState
	var kind domain.EventKind
	if isLTMEvent(in.Card, in.Now) {
		after = applyLTM(in.Card, in.Grade, in.Now, in.Params)
		kind = domain.EventKindLTM
	} else {
		after = applySTM(in.Card, in.Grade, in.Now, in.Params)
		kind = domain.EventKindSTM
	}
	after.ReviewCount = in.Card.ReviewCount + 1

	afterSnap := snapshot(after, in.Params, in.Now)

	event := domain.ReviewEvent{
		ID:         uuid.New(),
		CardKey:    in.Card.Key,
		ReviewedAt: in.Now,
		Grade:      in.Grade,
		LatencyMs:  in.LatencyMs,
		Before:     before,
		After:      &afterSnap,
		Kind:       kind,
	}

	return ReviewResult{Card: after, Event: event}
}

// isLTMEvent implements the §4.2 classification: no prior LTM review, or a
// different UTC calendar date than now.
func isLTMEvent(card domain.CardState, now time.Time) bool {
	if card.LastLTMAt == nil {
		return true
	}
	return !sameUTCDate(*card.LastLTMAt, now)
}

func sameUTCDate(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// snapshot captures the scored fields before a transition. Brand-new cards
// (never reviewed) yield a nil snapshot, per §4.2's "_before null" rule.
func snapshot(card domain.CardState, p memory.Params, now time.Time) *domain.CardStateSnapshot {
	if card.IsNew() {
		return nil
	}
	return &domain.CardStateSnapshot{
		Stability:           card.Stability,
		Difficulty:          card.Difficulty,
		EffectiveDifficulty: card.EffectiveDifficulty,
		Retrievability:      memory.Retrievability(card.Stability, card.LastLTMAt, now),
	}
}

// applyLTM implements the LTM branch of §4.2.
func applyLTM(card domain.CardState, grade domain.Grade, now time.Time, p memory.Params) domain.CardState {
	r := memory.Retrievability(card.Stability, card.LastLTMAt, now)

	var newStability float64
	if grade.IsFailure() {
		newStability = maxF(p.SMin, card.Stability*(1-p.KFail*r))
	} else {
		newStability = ltmSuccessStability(card, grade, r, p)
	}

	surprise := r
	if !grade.IsFailure() {
		surprise = 1 - r
	}
	newDifficulty := p.ClipDifficulty(card.Difficulty + p.Eta*surprise*p.URating[grade])

	dateOf := now.UTC().Truncate(24 * time.Hour)
	return domain.CardState{
		Key:                  card.Key,
		Stability:            newStability,
		Difficulty:           newDifficulty,
		EffectiveDifficulty:  newDifficulty,
		ReviewCount:          card.ReviewCount,
		LastReviewAt:         now,
		LastLTMAt:            &now,
		LTMReviewDate:        &dateOf,
		STMSuccessCountToday: 0,
		CreatedAt:            card.CreatedAt,
		UpdatedAt:            now,
	}
}

// ltmSuccessStability implements the success branch's stability update,
// including the brand-new-card special case that sidesteps the (1-R)
// collapse-to-zero problem.
func ltmSuccessStability(card domain.CardState, grade domain.Grade, r float64, p memory.Params) float64 {
	if card.IsNew() || r >= 0.99 {
		return maxF(p.SMin, p.SMin*p.BaseGain[grade]*2.0)
	}
	f := p.DifficultyPenalty(card.EffectiveDifficulty)
	deltaS := p.K * card.Stability * p.BaseGain[grade] * (1 - r) * f
	return card.Stability + deltaS
}

// applySTM implements the STM branch of §4.2.
func applySTM(card domain.CardState, grade domain.Grade, now time.Time, p memory.Params) domain.CardState {
	next := card
	next.LastReviewAt = now
	next.UpdatedAt = now

	if grade.IsFailure() {
		return next
	}

	r := memory.Retrievability(card.Stability, card.LastLTMAt, now)
	dFloor := p.ClipDifficulty(card.Difficulty + p.Eta*(1-r)*p.URating[domain.GradeHard])

	m := card.STMSuccessCountToday
	lambda := 0.5 / float64(m+1)
	dEffNew := maxF(dFloor, dFloor+(card.EffectiveDifficulty-dFloor)*(1-lambda))

	next.EffectiveDifficulty = dEffNew
	next.STMSuccessCountToday = m + 1
	return next
}

// KnownNoScoreEvent logs a presentation from the KNOWN pool. State is never
// mutated for these draws, but the submitted grade and latency are still
// recorded per §4.5 step 5 / §4.2 — the user's feedback must be logged even
// though it does not drive a transition.
func KnownNoScoreEvent(card domain.CardState, grade domain.Grade, p memory.Params, now time.Time, latencyMs *int, sessionID *uuid.UUID, position *int) domain.ReviewEvent {
	snap := snapshot(card, p, now)
	return domain.ReviewEvent{
		ID:                uuid.New(),
		CardKey:           card.Key,
		ReviewedAt:        now,
		Grade:             grade,
		LatencyMs:         latencyMs,
		Before:            snap,
		After:             snap,
		Kind:              domain.EventKindKnownNoScore,
		SessionID:         sessionID,
		PositionInSession: position,
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
