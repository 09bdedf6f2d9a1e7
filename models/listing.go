package models

import "time"

// ImageSource identifies where a listing image was collected from.
type ImageSource string

const (
	ImageSourceAutoRia ImageSource = "auto-ria"
	ImageSourceAuction ImageSource = "auction"
)

// ListingImage is one photo belonging to a listing. The ListingID
// back-reference exists for storage queries only; the object graph is
// one-directional (Listing owns its images).
type ListingImage struct {
	ID         int64       `json:"id" db:"id"`
	ListingID  int64       `json:"listing_id" db:"listing_id"`
	Source     ImageSource `json:"source" db:"source"`
	URL        string      `json:"url" db:"url"`
	ArchiveKey string      `json:"archive_key,omitempty" db:"archive_key"`
}

// Listing is one crawled vehicle advertisement. The ID is the source
// site's own advert identifier and is stable across crawls.
type Listing struct {
	ID          int64     `json:"id" db:"id"`
	Link        string    `json:"link" db:"link"`
	Brand       string    `json:"brand" db:"brand"`
	Model       string    `json:"model" db:"model"`
	Year        int       `json:"year" db:"year"`
	Generation  string    `json:"generation" db:"generation"`
	Engine      string    `json:"engine" db:"engine"`
	Price       int       `json:"price" db:"price"`
	FuelType    string    `json:"fuel_type" db:"fuel_type"`
	Mileage     string    `json:"mileage" db:"mileage"`
	Location    string    `json:"location" db:"location"`
	Gearbox     string    `json:"gearbox" db:"gearbox"`
	PlateNumber string    `json:"plate_number" db:"plate_number"` // optional
	VIN         string    `json:"vin" db:"vin"`                   // optional
	Description string    `json:"description" db:"description"`
	Sold        bool      `json:"sold" db:"sold"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	Images []ListingImage `json:"images"`
}

// ImageURLs returns the image URLs in order, capped at max entries.
func (l *Listing) ImageURLs(max int) []string {
	var urls []string
	for _, img := range l.Images {
		if len(urls) >= max {
			break
		}
		urls = append(urls, img.URL)
	}
	return urls
}
