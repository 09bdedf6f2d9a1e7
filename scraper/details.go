package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/semaphore"

	"carwatch/httputil"
	"carwatch/models"
)

// DetailFetcher loads a listing's own page and collects its photo URLs.
// Fetches run under their own concurrency bound, independent of the
// page pipeline bound.
type DetailFetcher struct {
	client  *http.Client
	baseURL string
	sem     *semaphore.Weighted
}

func NewDetailFetcher(client *http.Client, baseURL string, maxParallel int) *DetailFetcher {
	return &DetailFetcher{
		client:  client,
		baseURL: baseURL,
		sem:     semaphore.NewWeighted(int64(maxParallel)),
	}
}

// Populate fetches the listing's detail page and fills in its images.
func (f *DetailFetcher) Populate(ctx context.Context, listing *models.Listing) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.sem.Release(1)

	log.Printf("Fetching images for listing %d", listing.ID)

	detailURL := f.baseURL + listing.Link
	req, err := http.NewRequestWithContext(ctx, "GET", detailURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httputil.BrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{URL: detailURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{URL: detailURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parse detail page: %w", err)
	}

	listing.Images = extractImages(doc, listing.ID)
	log.Printf("Fetched %d images for listing %d", len(listing.Images), listing.ID)
	return nil
}

// PopulateAll enriches every listing concurrently up to the fetcher's
// bound. A failed fetch drops only the affected listing; siblings
// proceed. Returns the listings whose images were fetched.
func (f *DetailFetcher) PopulateAll(ctx context.Context, listings []*models.Listing) []*models.Listing {
	var (
		mu       sync.Mutex
		enriched []*models.Listing
		wg       sync.WaitGroup
	)

	for _, listing := range listings {
		wg.Add(1)
		go func(l *models.Listing) {
			defer wg.Done()
			if err := f.Populate(ctx, l); err != nil {
				log.Printf("Warning: failed to fetch images for listing %d: %v", l.ID, err)
				return
			}
			mu.Lock()
			enriched = append(enriched, l)
			mu.Unlock()
		}(listing)
	}
	wg.Wait()

	return enriched
}

func extractImages(doc *goquery.Document, listingID int64) []models.ListingImage {
	var images []models.ListingImage
	doc.Find(".photo-620x465 source").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("srcset")
		if !ok || src == "" {
			return
		}
		images = append(images, models.ListingImage{
			ListingID: listingID,
			Source:    models.ImageSourceAutoRia,
			URL:       src,
		})
	})
	return images
}
