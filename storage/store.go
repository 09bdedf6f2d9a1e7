package storage

import (
	"context"

	"carwatch/models"
)

// Store is the persisted listing state the diff pass runs against.
// Listings are never deleted; a sold flag is set at most once.
type Store interface {
	// GetByIDs returns the stored listings whose IDs appear in ids.
	GetByIDs(ctx context.Context, ids []int64) ([]*models.Listing, error)

	// GetByIDsExcluding returns the stored non-sold listings whose IDs do
	// NOT appear in ids, images included. This backs the end-of-cycle
	// presumed-sold pass. An empty ids set returns nothing: a cycle that
	// saw no listings at all must not condemn the whole corpus.
	GetByIDsExcluding(ctx context.Context, ids []int64) ([]*models.Listing, error)

	// UpsertListings writes listings and their images. The sold flag and
	// update timestamp only ever move forward.
	UpsertListings(ctx context.Context, listings []*models.Listing) error

	UpdatePrice(ctx context.Context, id int64, price int) error
	MarkSold(ctx context.Context, id int64) error

	CreateRun(ctx context.Context, run *models.CrawlRun) error
	UpdateRun(ctx context.Context, run *models.CrawlRun) error

	// Image archival queue, consumed by the media worker.
	GetUnarchivedImages(ctx context.Context, limit int) ([]models.ListingImage, error)
	MarkImageArchived(ctx context.Context, imageID int64, key string) error

	Close() error
}
