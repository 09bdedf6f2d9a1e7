package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"carwatch/config"
	"carwatch/scraper"
)

// Scheduler triggers crawl cycles on a cron expression or a fixed
// interval. Cycle errors are logged, never fatal: the next tick retries
// from the unadvanced watermark.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	runOnce := func() {
		if err := s.orchestrator.RunCycle(ctx); err != nil {
			log.Printf("Crawl cycle error: %v", err)
		}
	}

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, runOnce); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
	s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
	go func() {
		runOnce()
		for {
			select {
			case <-s.ticker.C:
				runOnce()
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}
