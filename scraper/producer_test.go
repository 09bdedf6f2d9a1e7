package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"carwatch/config"
)

func testSearch() config.SearchConfig {
	return config.SearchConfig{
		CategoryID: 1,
		BrandID:    79,
		ModelID:    2104,
		Currency:   1,
		Sort:       "dates.created.desc",
	}
}

// pageWithOldest builds a minimal results page whose oldest listing was
// updated at the given time. An empty page has no listings at all.
func pageWithOldest(oldest time.Time, empty bool) string {
	if empty {
		return `<div id="searchResults"></div>`
	}
	return fmt.Sprintf(`<div id="searchResults">
		<div class="footer_ticket"><span data-update-date="%s"></span></div>
	</div>`, oldest.Format("2006-01-02 15:04:05"))
}

func TestCollectPages_StopsAtWatermark(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	// Pages sorted newest-first: page 0 is the freshest.
	oldestByPage := []time.Time{
		base.Add(5 * time.Hour),
		base.Add(3 * time.Hour),
		base.Add(1 * time.Hour),
		base,
	}

	var fetched atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page >= len(oldestByPage) {
			t.Errorf("unexpected fetch of page %d", page)
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, pageWithOldest(oldestByPage[page], false))
	}))
	defer server.Close()

	source := NewPageSource(server.Client(), server.URL, testSearch(), 100)
	producer := NewProducer(source)

	// Watermark between pages 1 and 2: page 2 is the crossing page and
	// must still be included.
	watermark := base.Add(2 * time.Hour)
	pages, err := producer.CollectPages(context.Background(), watermark)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if got := fetched.Load(); got != 3 {
		t.Fatalf("expected 3 fetches, got %d", got)
	}
}

func TestCollectPages_StopsOnEmptyPage(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		fmt.Fprint(w, pageWithOldest(base.Add(time.Duration(10-page)*time.Hour), page >= 2))
	}))
	defer server.Close()

	source := NewPageSource(server.Client(), server.URL, testSearch(), 100)
	producer := NewProducer(source)

	// Zero watermark (first run): crawl until the result set ends.
	pages, err := producer.CollectPages(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
}

func TestCollectPages_FetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	source := NewPageSource(server.Client(), server.URL, testSearch(), 100)
	producer := NewProducer(source)

	_, err := producer.CollectPages(context.Background(), time.Time{})
	if err == nil {
		t.Fatalf("expected fetch error")
	}
}
