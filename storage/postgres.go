package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carwatch/models"
)

// PostgresStore is the pgx-backed Store, used when DATABASE_URL is set.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id BIGINT PRIMARY KEY,
		link TEXT NOT NULL,
		brand TEXT NOT NULL,
		model TEXT NOT NULL,
		year INT NOT NULL,
		generation TEXT,
		engine TEXT,
		price INT NOT NULL,
		fuel_type TEXT,
		mileage TEXT,
		location TEXT,
		gearbox TEXT,
		plate_number TEXT,
		vin TEXT,
		description TEXT,
		sold BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS listing_images (
		id BIGSERIAL PRIMARY KEY,
		listing_id BIGINT NOT NULL REFERENCES listings(id),
		source TEXT,
		url TEXT NOT NULL,
		position INT DEFAULT 0,
		archive_key TEXT,
		UNIQUE(listing_id, url)
	);

	CREATE TABLE IF NOT EXISTS crawl_runs (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		status TEXT,
		pages_fetched INT DEFAULT 0,
		listings_seen INT DEFAULT 0,
		listings_new INT DEFAULT 0,
		price_changes INT DEFAULT 0,
		sold_detected INT DEFAULT 0,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_listings_sold ON listings(sold);
	CREATE INDEX IF NOT EXISTS idx_images_listing ON listing_images(listing_id, position);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const pgListingColumns = `id, link, brand, model, year, COALESCE(generation, ''), COALESCE(engine, ''),
		price, COALESCE(fuel_type, ''), COALESCE(mileage, ''), COALESCE(location, ''), COALESCE(gearbox, ''),
		COALESCE(plate_number, ''), COALESCE(vin, ''), COALESCE(description, ''), sold, created_at, updated_at`

func scanPgListing(rows pgx.Rows) (*models.Listing, error) {
	var l models.Listing
	err := rows.Scan(&l.ID, &l.Link, &l.Brand, &l.Model, &l.Year, &l.Generation, &l.Engine,
		&l.Price, &l.FuelType, &l.Mileage, &l.Location, &l.Gearbox, &l.PlateNumber, &l.VIN,
		&l.Description, &l.Sold, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) GetByIDs(ctx context.Context, ids []int64) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM listings WHERE id = ANY($1)`, pgListingColumns)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) GetByIDsExcluding(ctx context.Context, ids []int64) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM listings WHERE sold = FALSE AND NOT (id = ANY($1))`, pgListingColumns)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, l := range listings {
		images, err := s.imagesForListing(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		l.Images = images
	}
	return listings, nil
}

func (s *PostgresStore) imagesForListing(ctx context.Context, listingID int64) ([]models.ListingImage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, listing_id, COALESCE(source, ''), url, COALESCE(archive_key, '')
		FROM listing_images WHERE listing_id = $1 ORDER BY position`, listingID)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var images []models.ListingImage
	for rows.Next() {
		var img models.ListingImage
		if err := rows.Scan(&img.ID, &img.ListingID, &img.Source, &img.URL, &img.ArchiveKey); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *PostgresStore) UpsertListings(ctx context.Context, listings []*models.Listing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, l := range listings {
		_, err := tx.Exec(ctx, `
			INSERT INTO listings (id, link, brand, model, year, generation, engine, price, fuel_type,
				mileage, location, gearbox, plate_number, vin, description, sold, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (id) DO UPDATE SET
				price = EXCLUDED.price,
				sold = listings.sold OR EXCLUDED.sold,
				updated_at = GREATEST(listings.updated_at, EXCLUDED.updated_at),
				description = EXCLUDED.description`,
			l.ID, l.Link, l.Brand, l.Model, l.Year, l.Generation, l.Engine, l.Price, l.FuelType,
			l.Mileage, l.Location, l.Gearbox, l.PlateNumber, l.VIN, l.Description,
			l.Sold, l.CreatedAt, l.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert listing %d: %w", l.ID, err)
		}

		for i, img := range l.Images {
			_, err := tx.Exec(ctx, `
				INSERT INTO listing_images (listing_id, source, url, position)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (listing_id, url) DO NOTHING`,
				l.ID, string(img.Source), img.URL, i)
			if err != nil {
				return fmt.Errorf("insert image for %d: %w", l.ID, err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, id int64, price int) error {
	_, err := s.pool.Exec(ctx, `UPDATE listings SET price = $2 WHERE id = $1`, id, price)
	return err
}

func (s *PostgresStore) MarkSold(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE listings SET sold = TRUE WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.CrawlRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crawl_runs (id, started_at, status) VALUES ($1, $2, $3)`,
		run.ID, run.StartedAt, run.Status)
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.CrawlRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE crawl_runs SET
			finished_at = $2, status = $3, pages_fetched = $4, listings_seen = $5,
			listings_new = $6, price_changes = $7, sold_detected = $8, error_message = $9
		WHERE id = $1`,
		run.ID, run.FinishedAt, run.Status, run.PagesFetched, run.ListingsSeen,
		run.ListingsNew, run.PriceChanges, run.SoldDetected, run.ErrorMessage)
	return err
}

func (s *PostgresStore) GetUnarchivedImages(ctx context.Context, limit int) ([]models.ListingImage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, listing_id, COALESCE(source, ''), url, ''
		FROM listing_images WHERE archive_key IS NULL
		ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var images []models.ListingImage
	for rows.Next() {
		var img models.ListingImage
		if err := rows.Scan(&img.ID, &img.ListingID, &img.Source, &img.URL, &img.ArchiveKey); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *PostgresStore) MarkImageArchived(ctx context.Context, imageID int64, key string) error {
	_, err := s.pool.Exec(ctx, `UPDATE listing_images SET archive_key = $2 WHERE id = $1`, imageID, key)
	return err
}
