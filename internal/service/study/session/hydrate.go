package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/avolkov/srscore/internal/domain"
)

const (
	hydrateMaxBatch = 100
	hydrateWait     = 2 * time.Millisecond
)

// newWordLoader builds a per-StartSession DataLoader that batches the N
// GetWord-equivalent lookups a freshly assembled session needs into a
// single ListWords round trip.
func newWordLoader(lexicon domain.LexiconReader) *dataloader.Loader[uuid.UUID, domain.WordRef] {
	batchFn := func(ctx context.Context, keys []uuid.UUID) []*dataloader.Result[domain.WordRef] {
		words, err := lexicon.ListWords(ctx, domain.WordFilters{WordIDs: keys})
		if err != nil {
			results := make([]*dataloader.Result[domain.WordRef], len(keys))
			for i := range results {
				results[i] = &dataloader.Result[domain.WordRef]{Error: err}
			}
			return results
		}

		byID := make(map[uuid.UUID]domain.WordRef, len(words))
		for _, w := range words {
			byID[w.WordID] = w
		}

		results := make([]*dataloader.Result[domain.WordRef], len(keys))
		for i, k := range keys {
			w, ok := byID[k]
			if !ok {
				results[i] = &dataloader.Result[domain.WordRef]{Error: domain.ErrNotFound}
				continue
			}
			results[i] = &dataloader.Result[domain.WordRef]{Data: w}
		}
		return results
	}

	return dataloader.NewBatchedLoader(
		batchFn,
		dataloader.WithWait[uuid.UUID, domain.WordRef](hydrateWait),
		dataloader.WithBatchCapacity[uuid.UUID, domain.WordRef](hydrateMaxBatch),
	)
}

// hydrate resolves word_ids to WordRefs through the loader, dropping any
// word_id the lexicon no longer has a record for — a missing lexicon entry
// is a pool-builder precondition violation (§7), not a fatal error: the
// word is silently dropped and logged by the caller.
func hydrate(ctx context.Context, loader *dataloader.Loader[uuid.UUID, domain.WordRef], wordIDs []uuid.UUID) (map[uuid.UUID]domain.WordRef, []uuid.UUID) {
	thunks := make([]dataloader.Thunk[domain.WordRef], len(wordIDs))
	for i, id := range wordIDs {
		thunks[i] = loader.Load(ctx, id)
	}

	out := make(map[uuid.UUID]domain.WordRef, len(wordIDs))
	var dropped []uuid.UUID
	for i, thunk := range thunks {
		w, err := thunk()
		if err != nil {
			dropped = append(dropped, wordIDs[i])
			continue
		}
		out[wordIDs[i]] = w
	}
	return out, dropped
}
