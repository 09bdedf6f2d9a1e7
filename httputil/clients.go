package httputil

import (
	"net/http"
	"time"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

type Clients struct {
	Scraping *http.Client // for the listings site
	API      *http.Client // for the Telegram API
}

func NewClients() *Clients {
	return &Clients{
		Scraping: &http.Client{Timeout: 30 * time.Second},
		API:      &http.Client{Timeout: 90 * time.Second}, // must outlive long-poll getUpdates
	}
}

// BrowserHeaders sets the request headers the listings site expects from
// a regular browser visit.
func BrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}
