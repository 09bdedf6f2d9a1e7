package scraper

import "fmt"

// FetchError is a failed page or detail request: transport failure or a
// non-2xx response. Fatal for the current cycle.
type FetchError struct {
	URL        string
	StatusCode int // 0 for transport errors
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractError is a required field missing or malformed in the page
// markup. Fatal for the page; cycle policy is configurable.
type ExtractError struct {
	Field string
	Err   error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("extract %s: element not found", e.Field)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
