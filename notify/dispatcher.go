package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"carwatch/models"
)

// maxImagesPerMessage caps how many photos are attached to one alert.
const maxImagesPerMessage = 10

// Transport delivers rendered messages to one recipient. Implemented by
// telegram.Client.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendImageGroup(ctx context.Context, chatID int64, photoURLs []string) error
}

// Registry is read-only access to the current subscriber set.
type Registry interface {
	List() []int64
}

// Dispatcher renders listing change alerts and delivers one message per
// event to every subscriber. Delivery to a given subscriber is
// serialized; delivery to different subscribers may interleave.
type Dispatcher struct {
	transport   Transport
	subscribers Registry
	baseURL     string

	maxAttempts    int
	ignoreFailures bool
	sleep          func(context.Context, time.Duration)

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewDispatcher(transport Transport, subscribers Registry, baseURL string, propagateErrors bool) *Dispatcher {
	return &Dispatcher{
		transport:      transport,
		subscribers:    subscribers,
		baseURL:        baseURL,
		maxAttempts:    defaultMaxAttempts,
		ignoreFailures: !propagateErrors,
		sleep:          sleepCtx,
		locks:          make(map[int64]*sync.Mutex),
	}
}

func (d *Dispatcher) lockFor(chatID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[chatID] = l
	}
	return l
}

// Dispatch renders and delivers one change event to every subscriber.
func (d *Dispatcher) Dispatch(ctx context.Context, change *models.Change) error {
	var text string
	var images []string

	switch change.Kind {
	case models.ChangeNew:
		text = d.renderNewListing(change.Listing)
		images = change.Listing.ImageURLs(maxImagesPerMessage)
	case models.ChangeSold:
		text = d.renderSold(change.Listing)
		images = change.Listing.ImageURLs(maxImagesPerMessage)
	case models.ChangePriceChanged:
		text = d.renderPriceChange(change.Listing, change.OldPrice)
	default:
		return fmt.Errorf("unknown change kind: %s", change.Kind)
	}

	for _, chatID := range d.subscribers.List() {
		if err := d.deliver(ctx, chatID, text, images); err != nil {
			if !d.ignoreFailures {
				return fmt.Errorf("deliver to %d: %w", chatID, err)
			}
			log.Printf("Warning: dropping notification for %d after %d attempts: %v", chatID, d.maxAttempts, err)
		}
	}

	return nil
}

// deliver sends one message (optional media group, then text) to one
// subscriber. The subscriber's lock is held across the whole retry
// loop, flood-control waits included, so messages to one chat go out in
// submission order.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64, text string, images []string) error {
	lock := d.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	return withRetry(ctx, d.maxAttempts, d.sleep, func() error {
		if len(images) > 0 {
			if err := d.transport.SendImageGroup(ctx, chatID, images); err != nil {
				return err
			}
		}
		return d.transport.SendText(ctx, chatID, text)
	})
}

func (d *Dispatcher) renderNewListing(l *models.Listing) string {
	return fmt.Sprintf("🚗 New Car Alert! 🚗\n\n"+
		"Brand: %s\n"+
		"Model: %s\n"+
		"Year: %d\n"+
		"Price: $%d\n"+
		"Location: %s\n"+
		"Link: %s%s\n",
		l.Brand, l.Model, l.Year, l.Price, l.Location, d.baseURL, l.Link)
}

func (d *Dispatcher) renderSold(l *models.Listing) string {
	return fmt.Sprintf("🚨 Sold Car Alert! 🚨\n\n"+
		"Brand: %s\n"+
		"Model: %s\n"+
		"Year: %d\n"+
		"Price: $%d\n"+
		"Location: %s\n"+
		"Sold on: %s\n",
		l.Brand, l.Model, l.Year, l.Price, l.Location,
		l.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func (d *Dispatcher) renderPriceChange(l *models.Listing, oldPrice int) string {
	return fmt.Sprintf("📉 Price Change Alert! 📉\n\n"+
		"Brand: %s\n"+
		"Model: %s\n"+
		"Year: %d\n"+
		"Old Price: $%d\n"+
		"New Price: $%d\n"+
		"Location: %s\n"+
		"Link: %s%s\n",
		l.Brand, l.Model, l.Year, oldPrice, l.Price, l.Location, d.baseURL, l.Link)
}
