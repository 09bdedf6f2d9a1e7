package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"carwatch/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id INTEGER PRIMARY KEY,
		link TEXT NOT NULL,
		brand TEXT NOT NULL,
		model TEXT NOT NULL,
		year INTEGER NOT NULL,
		generation TEXT,
		engine TEXT,
		price INTEGER NOT NULL,
		fuel_type TEXT,
		mileage TEXT,
		location TEXT,
		gearbox TEXT,
		plate_number TEXT,
		vin TEXT,
		description TEXT,
		sold BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS listing_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		listing_id INTEGER NOT NULL REFERENCES listings(id),
		source TEXT,
		url TEXT NOT NULL,
		position INTEGER DEFAULT 0,
		archive_key TEXT,
		UNIQUE(listing_id, url)
	);

	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		pages_fetched INTEGER DEFAULT 0,
		listings_seen INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		price_changes INTEGER DEFAULT 0,
		sold_detected INTEGER DEFAULT 0,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_listings_sold ON listings(sold);
	CREATE INDEX IF NOT EXISTS idx_images_listing ON listing_images(listing_id, position);
	CREATE INDEX IF NOT EXISTS idx_images_unarchived ON listing_images(archive_key) WHERE archive_key IS NULL;
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const listingColumns = `id, link, brand, model, year, generation, engine, price, fuel_type,
		mileage, location, gearbox, plate_number, vin, description, sold, created_at, updated_at`

func scanListing(rows *sql.Rows) (*models.Listing, error) {
	var l models.Listing
	var plate, vin, desc sql.NullString
	err := rows.Scan(&l.ID, &l.Link, &l.Brand, &l.Model, &l.Year, &l.Generation, &l.Engine,
		&l.Price, &l.FuelType, &l.Mileage, &l.Location, &l.Gearbox, &plate, &vin, &desc,
		&l.Sold, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.PlateNumber = plate.String
	l.VIN = vin.String
	l.Description = desc.String
	return &l, nil
}

func placeholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *SQLiteStore) GetByIDs(ctx context.Context, ids []int64) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM listings WHERE id IN (%s)`, listingColumns, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) GetByIDsExcluding(ctx context.Context, ids []int64) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM listings WHERE sold = FALSE AND id NOT IN (%s)`,
		listingColumns, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
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

func (s *SQLiteStore) imagesForListing(ctx context.Context, listingID int64) ([]models.ListingImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, source, url, COALESCE(archive_key, '')
		FROM listing_images WHERE listing_id = ? ORDER BY position`, listingID)
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

func (s *SQLiteStore) UpsertListings(ctx context.Context, listings []*models.Listing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, l := range listings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO listings (id, link, brand, model, year, generation, engine, price, fuel_type,
				mileage, location, gearbox, plate_number, vin, description, sold, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				price = excluded.price,
				sold = MAX(listings.sold, excluded.sold),
				updated_at = MAX(listings.updated_at, excluded.updated_at),
				description = excluded.description`,
			l.ID, l.Link, l.Brand, l.Model, l.Year, l.Generation, l.Engine, l.Price, l.FuelType,
			l.Mileage, l.Location, l.Gearbox, nullable(l.PlateNumber), nullable(l.VIN),
			nullable(l.Description), l.Sold, l.CreatedAt, l.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert listing %d: %w", l.ID, err)
		}

		for i, img := range l.Images {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO listing_images (listing_id, source, url, position)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(listing_id, url) DO NOTHING`,
				l.ID, img.Source, img.URL, i)
			if err != nil {
				return fmt.Errorf("insert image for %d: %w", l.ID, err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) UpdatePrice(ctx context.Context, id int64, price int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE listings SET price = ? WHERE id = ?`, price, id)
	return err
}

func (s *SQLiteStore) MarkSold(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE listings SET sold = TRUE WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.CrawlRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES (?, ?, ?)`,
		run.ID.String(), run.StartedAt, run.Status)
	return err
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.CrawlRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crawl_runs SET
			finished_at = ?, status = ?, pages_fetched = ?, listings_seen = ?,
			listings_new = ?, price_changes = ?, sold_detected = ?, error_message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.PagesFetched, run.ListingsSeen,
		run.ListingsNew, run.PriceChanges, run.SoldDetected, nullable(run.ErrorMessage),
		run.ID.String())
	return err
}

func (s *SQLiteStore) GetUnarchivedImages(ctx context.Context, limit int) ([]models.ListingImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, source, url, ''
		FROM listing_images WHERE archive_key IS NULL
		ORDER BY id LIMIT ?`, limit)
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

func (s *SQLiteStore) MarkImageArchived(ctx context.Context, imageID int64, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE listing_images SET archive_key = ? WHERE id = ?`, key, imageID)
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
