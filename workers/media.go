package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"carwatch/httputil"
	"carwatch/models"
	"carwatch/storage"
)

const maxImageBytes = 20 * 1024 * 1024

// Uploader puts archived image bytes into object storage. Implemented
// by storage.S3Uploader.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// MediaWorker archives listing photos: it drains the unarchived image
// queue, downloads each photo, content-hashes it, and uploads it to
// object storage. Listing photo URLs on the source site expire once an
// advert is taken down, so sold alerts keep working only for photos
// archived while the listing was live.
type MediaWorker struct {
	store      storage.Store
	uploader   Uploader
	httpClient *http.Client
}

func NewMediaWorker(store storage.Store, uploader Uploader) *MediaWorker {
	return &MediaWorker{
		store:      store,
		uploader:   uploader,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Run drains batches of unarchived images on a fixed interval until the
// context is cancelled.
func (w *MediaWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Media worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *MediaWorker) processBatch(ctx context.Context, batchSize int) {
	images, err := w.store.GetUnarchivedImages(ctx, batchSize)
	if err != nil {
		log.Printf("Media: query error: %v", err)
		return
	}
	if len(images) == 0 {
		return
	}

	log.Printf("Media: archiving %d images", len(images))

	for _, img := range images {
		key, err := w.archive(ctx, &img)
		if err != nil {
			log.Printf("Media: failed to archive %s: %v", img.URL, err)
			continue
		}
		if err := w.store.MarkImageArchived(ctx, img.ID, key); err != nil {
			log.Printf("Media: failed to record archive key for image %d: %v", img.ID, err)
		}

		// Politeness delay between downloads from the source site.
		time.Sleep(250 * time.Millisecond)
	}
}

// archive downloads one image and uploads it under a content-addressed
// key, returning the key.
func (w *MediaWorker) archive(ctx context.Context, img *models.ListingImage) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", img.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httputil.BrowserHeaders(req)
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])
	key := fmt.Sprintf("images/%d/%s%s", img.ListingID, digest, guessExtension(img.URL, resp.Header.Get("Content-Type")))

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	if err := w.uploader.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	return key, nil
}

func guessExtension(url, contentType string) string {
	if ext := path.Ext(strings.SplitN(url, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
