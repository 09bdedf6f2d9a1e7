package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"carwatch/models"
)

// ExtractListings parses one search results page into a map of listing
// ID to listing. Pure and deterministic: identical markup yields
// identical output.
func ExtractListings(doc *goquery.Document) (map[int64]*models.Listing, error) {
	listings := make(map[int64]*models.Listing)

	var extractErr error
	doc.Find(".ticket-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		listing, err := extractListing(item)
		if err != nil {
			extractErr = err
			return false
		}
		listings[listing.ID] = listing
		return true
	})
	if extractErr != nil {
		return nil, extractErr
	}

	return listings, nil
}

func extractListing(item *goquery.Selection) (*models.Listing, error) {
	info := item.Find("div").First()
	content := item.Find(".content").First()
	if content.Length() == 0 {
		return nil, &ExtractError{Field: "content"}
	}

	id, err := intAttr(info, "data-id")
	if err != nil {
		return nil, err
	}
	year, err := intAttr(info, "data-year")
	if err != nil {
		return nil, err
	}
	link, err := attr(info, "data-link-to-view")
	if err != nil {
		return nil, err
	}
	brand, err := attr(info, "data-mark-name")
	if err != nil {
		return nil, err
	}
	model, err := attr(info, "data-model-name")
	if err != nil {
		return nil, err
	}
	generation, err := attr(info, "data-generation-name")
	if err != nil {
		return nil, err
	}
	engine, err := attr(info, "data-modification-name")
	if err != nil {
		return nil, err
	}
	price, err := intSelAttr(content, ".price-ticket", "data-main-price")
	if err != nil {
		return nil, err
	}
	fuel, err := text(content, "li:has(.icon-fuel)")
	if err != nil {
		return nil, err
	}
	mileage, err := text(content, "li:has(.icon-mileage)")
	if err != nil {
		return nil, err
	}
	location, err := text(content, "li:has(.icon-location)")
	if err != nil {
		return nil, err
	}
	gearbox, err := text(content, "li:has(.icon-akp)")
	if err != nil {
		return nil, err
	}
	description, err := text(content, ".descriptions-ticket > span")
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{
		ID:          int64(id),
		Link:        link,
		Brand:       brand,
		Model:       model,
		Year:        year,
		Generation:  generation,
		Engine:      engine,
		Price:       price,
		FuelType:    fuel,
		Mileage:     mileage,
		Location:    strings.TrimSuffix(location, " ( от )"),
		Gearbox:     gearbox,
		PlateNumber: tryText(content, ".state-num"),
		VIN:         tryText(content, ".label-vin span, .vin-code"),
		Description: description,
	}

	if item.Find(".sold-out").Length() > 0 {
		soldAt, err := dateAttr(item, ".footer_ticket > span", "data-sold-date", false)
		if err != nil {
			return nil, err
		}
		listing.Sold = true
		listing.CreatedAt = soldAt
		listing.UpdatedAt = soldAt
	} else {
		createdAt, err := dateAttr(item, ".footer_ticket > span", "data-add-date", false)
		if err != nil {
			return nil, err
		}
		updatedAt, err := dateAttr(item, ".footer_ticket > span", "data-update-date", false)
		if err != nil {
			return nil, err
		}
		listing.CreatedAt = createdAt
		listing.UpdatedAt = updatedAt
	}

	return listing, nil
}

// OldestUpdateTime returns the update timestamp of the last (oldest)
// listing on the page. Pages are sorted newest-first, so this is the
// pagination stop criterion. Returns an ExtractError when the page has
// no listings.
func OldestUpdateTime(doc *goquery.Document) (time.Time, error) {
	return dateAttr(doc.Selection, ".footer_ticket > span[data-update-date]", "data-update-date", true)
}

func text(sel *goquery.Selection, selector string) (string, error) {
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return "", &ExtractError{Field: selector}
	}
	return strings.TrimSpace(found.Text()), nil
}

func tryText(sel *goquery.Selection, selector string) string {
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

func attr(sel *goquery.Selection, name string) (string, error) {
	val, ok := sel.Attr(name)
	if !ok {
		return "", &ExtractError{Field: name}
	}
	return strings.TrimSpace(val), nil
}

func intAttr(sel *goquery.Selection, name string) (int, error) {
	val, err := attr(sel, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, &ExtractError{Field: name, Err: err}
	}
	return n, nil
}

func intSelAttr(sel *goquery.Selection, selector, name string) (int, error) {
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return 0, &ExtractError{Field: selector}
	}
	return intAttr(found, name)
}

// dateAttr reads a timestamp attribute from the first (or last) element
// matching selector.
func dateAttr(sel *goquery.Selection, selector, name string, last bool) (time.Time, error) {
	found := sel.Find(selector)
	if found.Length() == 0 {
		return time.Time{}, &ExtractError{Field: selector}
	}
	if last {
		found = found.Last()
	} else {
		found = found.First()
	}

	val, ok := found.Attr(name)
	if !ok {
		return time.Time{}, &ExtractError{Field: name}
	}
	return parseTimestamp(strings.TrimSpace(val), name)
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTimestamp(val, field string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ExtractError{Field: field, Err: fmt.Errorf("unrecognized timestamp %q", val)}
}
