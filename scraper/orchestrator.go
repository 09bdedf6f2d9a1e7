package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"carwatch/config"
	"carwatch/models"
	"carwatch/storage"
)

// Notifier delivers one change event to every subscriber. Implemented
// by notify.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, change *models.Change) error
}

// Orchestrator drives one full crawl cycle: paginate, diff each page
// under the page pipeline bound, enrich and announce new listings,
// sweep for presumed-sold listings, then advance the watermark.
type Orchestrator struct {
	cfg        *config.Config
	producer   *Producer
	diff       *DiffEngine
	details    *DetailFetcher
	notifier   Notifier
	store      storage.Store
	watermarks *storage.WatermarkStore
}

func NewOrchestrator(
	cfg *config.Config,
	producer *Producer,
	diff *DiffEngine,
	details *DetailFetcher,
	notifier Notifier,
	store storage.Store,
	watermarks *storage.WatermarkStore,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		producer:   producer,
		diff:       diff,
		details:    details,
		notifier:   notifier,
		store:      store,
		watermarks: watermarks,
	}
}

// cycleState accumulates what one cycle has observed. It is created per
// cycle and passed through the stages; nothing crawl-related lives in
// package state.
type cycleState struct {
	mu          sync.Mutex
	seenIDs     map[int64]struct{}
	newListings []*models.Listing

	priceChanges int
	soldDetected int
}

func newCycleState() *cycleState {
	return &cycleState{seenIDs: make(map[int64]struct{})}
}

func (s *cycleState) addPage(incoming map[int64]*models.Listing, staged []*models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range incoming {
		s.seenIDs[id] = struct{}{}
	}
	s.newListings = append(s.newListings, staged...)
}

func (s *cycleState) countChanges(changes []*models.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		switch c.Kind {
		case models.ChangePriceChanged:
			s.priceChanges++
		case models.ChangeSold:
			s.soldDetected++
		}
	}
}

func (s *cycleState) seenList() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.seenIDs))
	for id := range s.seenIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RunCycle executes one crawl cycle. Any fatal error leaves the
// watermark untouched so the next scheduled cycle re-covers the same
// page range.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	startedAt := time.Now()

	watermark, err := o.watermarks.Read()
	if err != nil {
		return err
	}

	run := &models.CrawlRun{
		ID:        uuid.New(),
		StartedAt: startedAt,
		Status:    models.RunStatusRunning,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		log.Printf("Warning: failed to record crawl run: %v", err)
	}

	state := newCycleState()
	err = o.runCycle(ctx, watermark, state, run)

	now := time.Now()
	run.FinishedAt = &now
	run.ListingsSeen = len(state.seenList())
	run.ListingsNew = len(state.newListings)
	run.PriceChanges = state.priceChanges
	run.SoldDetected = state.soldDetected
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
	} else {
		run.Status = models.RunStatusCompleted
	}
	if updateErr := o.store.UpdateRun(ctx, run); updateErr != nil {
		log.Printf("Warning: failed to update crawl run: %v", updateErr)
	}

	if err != nil {
		return err
	}

	// Advance to the cycle's start so listings updated while the cycle
	// ran are re-covered next time.
	if err := o.watermarks.Write(startedAt); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}

	log.Printf("Cycle complete: %d seen, %d new, %d price changes, %d sold",
		run.ListingsSeen, run.ListingsNew, run.PriceChanges, run.SoldDetected)
	return nil
}

func (o *Orchestrator) runCycle(ctx context.Context, watermark time.Time, state *cycleState, run *models.CrawlRun) error {
	pages, err := o.producer.CollectPages(ctx, watermark)
	if err != nil {
		return err
	}
	run.PagesFetched = len(pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Crawler.PageWorkers)
	for _, page := range pages {
		g.Go(func() error {
			return o.processPage(gctx, page, state)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// New listings are announced and stored only after their images are
	// fetched, so the first notification is complete.
	enriched := o.details.PopulateAll(ctx, state.newListings)
	for _, listing := range enriched {
		change := &models.Change{Kind: models.ChangeNew, Listing: listing}
		if err := o.notifier.Dispatch(ctx, change); err != nil {
			return err
		}
	}
	if len(enriched) > 0 {
		log.Printf("Storing %d new listings", len(enriched))
		if err := o.store.UpsertListings(ctx, enriched); err != nil {
			return err
		}
	}
	state.mu.Lock()
	state.newListings = enriched
	state.mu.Unlock()

	// Exactly one presumed-sold pass per cycle, after all pages.
	soldChanges, err := o.diff.SweepMissing(ctx, state.seenList())
	if err != nil {
		return err
	}
	state.countChanges(soldChanges)
	for _, change := range soldChanges {
		if err := o.notifier.Dispatch(ctx, change); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) processPage(ctx context.Context, page *goquery.Document, state *cycleState) error {
	incoming, err := ExtractListings(page)
	if err != nil {
		var extractErr *ExtractError
		if errors.As(err, &extractErr) && !o.cfg.Crawler.StrictExtraction {
			log.Printf("Warning: skipping page with bad markup: %v", err)
			return nil
		}
		return err
	}

	changes, staged, err := o.diff.DiffPage(ctx, incoming)
	if err != nil {
		return err
	}

	state.addPage(incoming, staged)
	state.countChanges(changes)

	for _, change := range changes {
		if err := o.notifier.Dispatch(ctx, change); err != nil {
			return err
		}
	}

	return nil
}
