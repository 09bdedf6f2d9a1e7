package scraper

import (
	"context"
	"sync"
	"testing"

	"carwatch/models"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu       sync.Mutex
	listings map[int64]*models.Listing

	priceUpdates int
	soldMarks    map[int64]int
	upserted     []*models.Listing
	runs         []*models.CrawlRun
}

func newFakeStore(seed ...*models.Listing) *fakeStore {
	s := &fakeStore{
		listings:  make(map[int64]*models.Listing),
		soldMarks: make(map[int64]int),
	}
	for _, l := range seed {
		copied := *l
		s.listings[l.ID] = &copied
	}
	return s
}

func (s *fakeStore) GetByIDs(ctx context.Context, ids []int64) ([]*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Listing
	for _, id := range ids {
		if l, ok := s.listings[id]; ok {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeStore) GetByIDsExcluding(ctx context.Context, ids []int64) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	var out []*models.Listing
	for id, l := range s.listings {
		if !seen[id] && !l.Sold {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertListings(ctx context.Context, listings []*models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range listings {
		copied := *l
		s.listings[l.ID] = &copied
		s.upserted = append(s.upserted, &copied)
	}
	return nil
}

func (s *fakeStore) UpdatePrice(ctx context.Context, id int64, price int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[id]; ok {
		l.Price = price
	}
	s.priceUpdates++
	return nil
}

func (s *fakeStore) MarkSold(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[id]; ok {
		l.Sold = true
	}
	s.soldMarks[id]++
	return nil
}

func (s *fakeStore) CreateRun(ctx context.Context, run *models.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) UpdateRun(ctx context.Context, run *models.CrawlRun) error { return nil }

func (s *fakeStore) GetUnarchivedImages(ctx context.Context, limit int) ([]models.ListingImage, error) {
	return nil, nil
}

func (s *fakeStore) MarkImageArchived(ctx context.Context, imageID int64, key string) error {
	return nil
}

func (s *fakeStore) Close() error { return nil }

func TestDiffPage_PriceChange(t *testing.T) {
	store := newFakeStore(&models.Listing{ID: 1, Price: 120})
	engine := NewDiffEngine(store)
	ctx := context.Background()

	incoming := map[int64]*models.Listing{1: {ID: 1, Price: 150}}
	changes, staged, err := engine.DiffPage(ctx, incoming)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(staged) != 0 {
		t.Fatalf("expected nothing staged, got %d", len(staged))
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Kind != models.ChangePriceChanged {
		t.Fatalf("expected price change, got %v", changes[0].Kind)
	}
	if changes[0].OldPrice != 120 || changes[0].Listing.Price != 150 {
		t.Fatalf("unexpected prices: old %d new %d", changes[0].OldPrice, changes[0].Listing.Price)
	}

	// The store was updated, so the same page diffed again is quiet.
	changes, _, err = engine.DiffPage(ctx, incoming)
	if err != nil {
		t.Fatalf("second diff: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes on repeat, got %d", len(changes))
	}
}

func TestDiffPage_EqualPriceNoEvent(t *testing.T) {
	store := newFakeStore(&models.Listing{ID: 1, Price: 100})
	engine := NewDiffEngine(store)

	changes, staged, err := engine.DiffPage(context.Background(), map[int64]*models.Listing{1: {ID: 1, Price: 100}})
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(changes) != 0 || len(staged) != 0 {
		t.Fatalf("expected quiet diff, got %d changes %d staged", len(changes), len(staged))
	}
	if store.priceUpdates != 0 {
		t.Fatalf("unexpected price write")
	}
}

func TestDiffPage_SoldOnce(t *testing.T) {
	store := newFakeStore(&models.Listing{ID: 2, Price: 90})
	engine := NewDiffEngine(store)
	ctx := context.Background()

	incoming := map[int64]*models.Listing{2: {ID: 2, Price: 90, Sold: true}}
	changes, _, err := engine.DiffPage(ctx, incoming)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(changes) != 1 || changes[0].Kind != models.ChangeSold {
		t.Fatalf("expected a single sold event, got %+v", changes)
	}

	changes, _, err = engine.DiffPage(ctx, incoming)
	if err != nil {
		t.Fatalf("second diff: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("sold event fired twice")
	}
	if store.soldMarks[2] != 1 {
		t.Fatalf("expected one sold write, got %d", store.soldMarks[2])
	}
}

func TestDiffPage_UnknownStaged(t *testing.T) {
	store := newFakeStore(&models.Listing{ID: 1, Price: 100})
	engine := NewDiffEngine(store)

	incoming := map[int64]*models.Listing{
		1: {ID: 1, Price: 100},
		7: {ID: 7, Price: 200},
	}
	changes, staged, err := engine.DiffPage(context.Background(), incoming)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %d", len(changes))
	}
	if len(staged) != 1 || staged[0].ID != 7 {
		t.Fatalf("expected listing 7 staged, got %+v", staged)
	}
	if len(store.upserted) != 0 {
		t.Fatalf("staged listing must not be persisted by the diff")
	}
}

func TestSweepMissing(t *testing.T) {
	store := newFakeStore(
		&models.Listing{ID: 1, Price: 100},
		&models.Listing{ID: 2, Price: 90, Sold: true},
		&models.Listing{ID: 3, Price: 80},
	)
	engine := NewDiffEngine(store)
	ctx := context.Background()

	changes, err := engine.SweepMissing(ctx, []int64{3})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 presumed-sold event, got %d", len(changes))
	}
	if changes[0].Kind != models.ChangeSold || changes[0].Listing.ID != 1 {
		t.Fatalf("unexpected change %+v", changes[0])
	}

	// Once marked sold, the next sweep stays quiet.
	changes, err = engine.SweepMissing(ctx, []int64{3})
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("presumed-sold fired twice")
	}
}

func TestSweepMissing_EmptySeenSet(t *testing.T) {
	store := newFakeStore(
		&models.Listing{ID: 1, Price: 100},
		&models.Listing{ID: 2, Price: 90},
	)
	engine := NewDiffEngine(store)

	// A cycle that saw nothing must not condemn the whole corpus.
	changes, err := engine.SweepMissing(context.Background(), nil)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("empty seen set marked %d listings sold", len(changes))
	}
	if len(store.soldMarks) != 0 {
		t.Fatalf("unexpected sold writes %v", store.soldMarks)
	}
}
