package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"carwatch/config"
	"carwatch/httputil"
)

// PageSource fetches raw listing pages for the configured search.
type PageSource struct {
	client   *http.Client
	baseURL  string
	search   config.SearchConfig
	pageSize int
}

func NewPageSource(client *http.Client, baseURL string, search config.SearchConfig, pageSize int) *PageSource {
	return &PageSource{
		client:   client,
		baseURL:  baseURL,
		search:   search,
		pageSize: pageSize,
	}
}

// FetchPage retrieves one zero-based page of search results.
func (s *PageSource) FetchPage(ctx context.Context, page int) (*goquery.Document, error) {
	q := url.Values{}
	q.Set("categories.main.id", strconv.Itoa(s.search.CategoryID))
	q.Set("brand.id[0]", strconv.Itoa(s.search.BrandID))
	q.Set("model.id[0]", strconv.Itoa(s.search.ModelID))
	q.Set("price.currency", strconv.Itoa(s.search.Currency))
	q.Set("sort[0].order", s.search.Sort)
	if s.search.ExcludeUSA {
		q.Set("country.import.usa.not", "-1")
	}
	if s.search.ExcludeAbroad {
		q.Set("abroad.not", "0")
	}
	if s.search.CustomsPaid {
		q.Set("custom.not", "1")
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(s.pageSize))

	pageURL := s.baseURL + "/search/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httputil.BrowserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", page, err)
	}
	return doc, nil
}
