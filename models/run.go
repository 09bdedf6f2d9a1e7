package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CrawlRun is the record of one crawl cycle.
type CrawlRun struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	Status       RunStatus  `json:"status" db:"status"`
	PagesFetched int        `json:"pages_fetched" db:"pages_fetched"`
	ListingsSeen int        `json:"listings_seen" db:"listings_seen"`
	ListingsNew  int        `json:"listings_new" db:"listings_new"`
	PriceChanges int        `json:"price_changes" db:"price_changes"`
	SoldDetected int        `json:"sold_detected" db:"sold_detected"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
}
