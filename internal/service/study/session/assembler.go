// Package session implements the presentation-facing session lifecycle:
// assembling a batch of items per the ratio-based procedure, routing
// submitted grades through the update engine, and flushing buffered writes
// in one transaction.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/config"
	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/memory"
	"github.com/avolkov/srscore/internal/service/study/pool"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type cardStateRepo interface {
	pool.CardStateReader
	LoadCard(ctx context.Context, key domain.CardKey) (domain.CardState, error)
	BatchSaveCards(ctx context.Context, cards []domain.CardState) error
}

type reviewEventRepo interface {
	AppendEvents(ctx context.Context, events []domain.ReviewEvent) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// baseMeaningFilter is optional: nil means filter_known is accepted but
// never narrows the NEW pool (see pool.Builder).
type baseMeaningFilter = pool.BaseMeaningFilter

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// Assembler implements the presentation collaborator's three operations:
// StartSession, Submit, EndSession.
type Assembler struct {
	cards   cardStateRepo
	events  reviewEventRepo
	lexicon domain.LexiconReader
	builder *pool.Builder
	tx      txManager
	log     *slog.Logger
	cfg     config.SessionConfig
	params  memory.Params
}

// NewAssembler creates an Assembler. baseMeaning may be nil (see
// baseMeaningFilter).
func NewAssembler(
	log *slog.Logger,
	cards cardStateRepo,
	events reviewEventRepo,
	lexicon domain.LexiconReader,
	baseMeaning baseMeaningFilter,
	tx txManager,
	cfg config.SessionConfig,
	params memory.Params,
) *Assembler {
	return &Assembler{
		cards:   cards,
		events:  events,
		lexicon: lexicon,
		builder: pool.New(cards, lexicon, baseMeaning, pool.EligibilityParams{
			RTarget:                    params.RTarget,
			VerbFilterThreshold:        cfg.VerbFilterThreshold,
			PrepositionFilterThreshold: cfg.PrepositionFilterThreshold,
		}),
		tx:     tx,
		log:    log.With("service", "session"),
		cfg:    cfg,
		params: params,
	}
}

// StartSession builds the pool for the requested activity and assembles a
// batch of SessionItems per §4.5. An empty or short batch is a valid
// outcome, reported through AssembleResult.Reason, never an error.
func (a *Assembler) StartSession(ctx context.Context, req domain.SessionRequest, now time.Time) (*Context, domain.AssembleResult, error) {
	if !req.ExerciseType.IsValid() {
		return nil, domain.AssembleResult{}, fmt.Errorf("%w: unknown exercise type %q", domain.ErrInvalidRequest, req.ExerciseType)
	}

	size := req.Size
	if size <= 0 {
		size = a.cfg.SizeFor(req.ExerciseType)
	}
	ltmFraction := req.LTMFraction
	if ltmFraction <= 0 {
		ltmFraction = a.cfg.LTMSessionFraction
	}

	var snap *domain.PoolSnapshot
	var err error
	if req.ExerciseType.IsVerbTense() {
		snap, err = a.builder.BuildVerbJoint(ctx, req.UserID, now, req.FilterKnown)
	} else {
		snap, err = a.builder.Build(ctx, req.UserID, req.ExerciseType, now, req.FilterKnown)
	}
	if err != nil {
		return nil, domain.AssembleResult{}, fmt.Errorf("build pool: %w", err)
	}

	//nolint:gosec // deterministic session shuffling, not cryptographic
	rng := rand.New(rand.NewSource(seedFor(req, now)))
	picked := pick(snap, size, ltmFraction, rng)

	items, dropped := a.expandAndHydrate(ctx, req, picked)
	if len(dropped) > 0 {
		a.log.WarnContext(ctx, "dropped word ids missing lexicon record",
			slog.Int("count", len(dropped)))
	}

	sc := &Context{
		ID:           uuid.New(),
		UserID:       req.UserID,
		ExerciseType: req.ExerciseType,
		Status:       domain.SessionStatusActive,
		StartedAt:    now,
		pool:         snap,
		verbPending:  make(map[uuid.UUID]*verbPending),
	}

	a.log.InfoContext(ctx, "session started",
		slog.String("user_id", req.UserID.String()),
		slog.String("session_id", sc.ID.String()),
		slog.String("exercise_type", req.ExerciseType.String()),
		slog.Int("items", len(items)),
	)

	return sc, domain.AssembleResult{Items: items, Reason: picked.reason}, nil
}

// seedFor returns the caller-supplied seed, or now's nanosecond timestamp
// when the request carries none (in which case the session is not
// reproducible).
func seedFor(req domain.SessionRequest, now time.Time) int64 {
	if req.Seed != 0 {
		return req.Seed
	}
	return now.UnixNano()
}

// expandAndHydrate turns the picked word_ids into ordered SessionItems,
// expanding verb activities into their two tense steps, and resolves word
// records through the batched lexicon loader.
func (a *Assembler) expandAndHydrate(ctx context.Context, req domain.SessionRequest, picked pickResult) ([]domain.SessionItem, []uuid.UUID) {
	loader := newWordLoader(a.lexicon)
	words, dropped := hydrate(ctx, loader, picked.wordIDs)

	items := make([]domain.SessionItem, 0, len(picked.wordIDs)*2)
	for _, wordID := range picked.wordIDs {
		word, ok := words[wordID]
		if !ok {
			continue
		}
		src := picked.source[wordID]

		if req.ExerciseType.IsVerbTense() {
			items = append(items,
				domain.SessionItem{WordID: wordID, ExerciseType: domain.ExerciseVerbPerfectum, TenseStep: "perfectum", Source: src, Word: word},
				domain.SessionItem{WordID: wordID, ExerciseType: domain.ExerciseVerbPastTense, TenseStep: "past_tense", Source: src, Word: word},
			)
			continue
		}
		items = append(items, domain.SessionItem{WordID: wordID, ExerciseType: req.ExerciseType, Source: src, Word: word})
	}
	return items, dropped
}
