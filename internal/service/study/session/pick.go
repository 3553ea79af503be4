package session

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/domain"
)

// pickResult is the outcome of the §4.5 selection procedure before
// verb-pair expansion and hydration: a list of word_ids in their final
// (already shuffled) order paired with the pool each was drawn from, plus a
// shortfall reason when fewer than size items were available.
type pickResult struct {
	wordIDs []uuid.UUID
	source  map[uuid.UUID]domain.PoolKind
	reason  string
}

// pick implements the six-step ratio-based assembly procedure. rng drives
// every randomised step (STM order, NEW sampling, KNOWN sampling, final
// shuffle) so the whole call is deterministic given the same seed.
func pick(pool *domain.PoolSnapshot, size int, ltmFraction float64, rng *rand.Rand) pickResult {
	chosen := make([]uuid.UUID, 0, size)
	source := make(map[uuid.UUID]domain.PoolKind, size)
	taken := make(map[uuid.UUID]struct{}, size)

	take := func(id uuid.UUID, from domain.PoolKind) {
		chosen = append(chosen, id)
		source[id] = from
		taken[id] = struct{}{}
	}

	// Step 1: most-urgent-first LTM slice up to target_LTM.
	ltmSorted := sortedLTM(pool)
	targetLTM := int(float64(size) * ltmFraction)
	if targetLTM > len(ltmSorted) {
		targetLTM = len(ltmSorted)
	}
	for _, id := range ltmSorted[:targetLTM] {
		take(id, domain.PoolLTM)
	}

	// Step 2: STM in randomised order.
	if len(chosen) < size {
		for _, id := range shuffledKeys(pool.STM, rng) {
			if len(chosen) >= size {
				break
			}
			if _, ok := taken[id]; ok {
				continue
			}
			take(id, domain.PoolSTM)
		}
	}

	// Step 3: uniform sample without replacement from NEW.
	if len(chosen) < size {
		for _, id := range shuffledKeys(pool.New, rng) {
			if len(chosen) >= size {
				break
			}
			if _, ok := taken[id]; ok {
				continue
			}
			take(id, domain.PoolNew)
		}
	}

	// Step 4: remaining LTM overflow, still in urgency order.
	if len(chosen) < size {
		for _, id := range ltmSorted[targetLTM:] {
			if len(chosen) >= size {
				break
			}
			if _, ok := taken[id]; ok {
				continue
			}
			take(id, domain.PoolLTM)
		}
	}

	// Step 5: KNOWN fallback, no state mutation on these draws.
	if len(chosen) < size {
		for _, id := range shuffledKeys(pool.Known, rng) {
			if len(chosen) >= size {
				break
			}
			if _, ok := taken[id]; ok {
				continue
			}
			take(id, domain.PoolKnown)
		}
	}

	reason := ""
	if len(chosen) == 0 {
		reason = "no items available"
	} else if len(chosen) < size {
		reason = "pool exhausted before reaching requested session size"
	}

	// Step 6: shuffle the assembled batch.
	rng.Shuffle(len(chosen), func(i, j int) { chosen[i], chosen[j] = chosen[j], chosen[i] })

	return pickResult{wordIDs: chosen, source: source, reason: reason}
}

// sortedLTM returns LTM word_ids ordered ascending by retrievability — the
// lowest R (most urgent to review) first. Ids are collected in canonical
// (string) order before sorting by score so that retrievability ties break
// the same way on every run, independent of Go's randomised map iteration —
// required for §4.5's determinism guarantee given a fixed seed.
func sortedLTM(pool *domain.PoolSnapshot) []uuid.UUID {
	ids := canonicalKeys(pool.LTM)
	sort.Slice(ids, func(i, j int) bool {
		si, sj := pool.LTMScore[ids[i]], pool.LTMScore[ids[j]]
		if si != sj {
			return si < sj
		}
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// canonicalKeys collects a pool's word_ids in a fixed, reproducible order
// (ascending string form), undoing Go's randomised map iteration order so
// that shuffledKeys' rng.Shuffle is the only source of randomness — the
// same seed must always permute the same starting sequence.
func canonicalKeys(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func shuffledKeys(set map[uuid.UUID]struct{}, rng *rand.Rand) []uuid.UUID {
	ids := canonicalKeys(set)
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}
