package scraper

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Producer walks the paginated search newest-first and gathers every
// page that may contain listings updated since the watermark. Page
// fetches are strictly sequential: each page's stop decision depends on
// its own oldest timestamp.
type Producer struct {
	source *PageSource
}

func NewProducer(source *PageSource) *Producer {
	return &Producer{source: source}
}

// CollectPages fetches pages starting at 0 until the oldest listing on
// a page is not newer than the watermark (that crossing page is
// included) or a page comes back empty.
func (p *Producer) CollectPages(ctx context.Context, watermark time.Time) ([]*goquery.Document, error) {
	var pages []*goquery.Document

	for page := 0; ; page++ {
		log.Printf("Fetching listings page %d", page)
		doc, err := p.source.FetchPage(ctx, page)
		if err != nil {
			return nil, err
		}

		oldest, err := OldestUpdateTime(doc)
		if err != nil {
			var extractErr *ExtractError
			if errors.As(err, &extractErr) {
				// No listings on the page: end of the result set.
				break
			}
			return nil, err
		}

		pages = append(pages, doc)
		if !oldest.After(watermark) {
			break
		}
	}

	log.Printf("Fetched %d pages", len(pages))
	return pages, nil
}
