package scraper

import (
	"context"
	"fmt"
	"log"

	"carwatch/models"
	"carwatch/storage"
)

// DiffEngine classifies freshly crawled listings against the persisted
// store: price changes and sold transitions are applied to the store as
// they are detected, unknown identifiers are staged as new.
type DiffEngine struct {
	store storage.Store
}

func NewDiffEngine(store storage.Store) *DiffEngine {
	return &DiffEngine{store: store}
}

// DiffPage compares one page's listings with the stored records.
// Returns the change events for already-known listings plus the staged
// new listings (pending image enrichment; not yet persisted).
func (e *DiffEngine) DiffPage(ctx context.Context, incoming map[int64]*models.Listing) ([]*models.Change, []*models.Listing, error) {
	ids := make([]int64, 0, len(incoming))
	for id := range incoming {
		ids = append(ids, id)
	}

	records, err := e.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load stored listings: %w", err)
	}

	var changes []*models.Change
	known := make(map[int64]bool, len(records))

	for _, record := range records {
		known[record.ID] = true
		fresh := incoming[record.ID]
		if fresh == nil {
			continue
		}

		if fresh.Price != record.Price {
			if err := e.store.UpdatePrice(ctx, record.ID, fresh.Price); err != nil {
				return nil, nil, fmt.Errorf("update price for %d: %w", record.ID, err)
			}
			changes = append(changes, &models.Change{
				Kind:     models.ChangePriceChanged,
				Listing:  fresh,
				OldPrice: record.Price,
			})
			log.Printf("Price changed for listing %d: %d -> %d", record.ID, record.Price, fresh.Price)
		}

		// The sold flag is monotonic: only a false->true transition is
		// an event, and it fires at most once.
		if fresh.Sold && !record.Sold {
			if err := e.store.MarkSold(ctx, record.ID); err != nil {
				return nil, nil, fmt.Errorf("mark %d sold: %w", record.ID, err)
			}
			changes = append(changes, &models.Change{Kind: models.ChangeSold, Listing: fresh})
			log.Printf("Listing %d is sold", record.ID)
		}
	}

	var staged []*models.Listing
	for id, l := range incoming {
		if !known[id] {
			staged = append(staged, l)
		}
	}

	return changes, staged, nil
}

// SweepMissing finds stored non-sold listings absent from the full set
// of identifiers seen this cycle and marks them sold (presumed sold:
// they vanished from the crawl). Must run exactly once per cycle, after
// all pages are processed. An empty seen set sweeps nothing, so a cycle
// that found no listings cannot mark the whole corpus sold.
func (e *DiffEngine) SweepMissing(ctx context.Context, seenIDs []int64) ([]*models.Change, error) {
	missing, err := e.store.GetByIDsExcluding(ctx, seenIDs)
	if err != nil {
		return nil, fmt.Errorf("load missing listings: %w", err)
	}

	var changes []*models.Change
	for _, record := range missing {
		if err := e.store.MarkSold(ctx, record.ID); err != nil {
			return nil, fmt.Errorf("mark %d sold: %w", record.ID, err)
		}
		changes = append(changes, &models.Change{Kind: models.ChangeSold, Listing: record})
		log.Printf("Listing %d is sold (missing from crawl)", record.ID)
	}

	return changes, nil
}
