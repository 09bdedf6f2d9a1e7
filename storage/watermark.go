package storage

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// WatermarkStore persists the timestamp of the most recent successfully
// completed crawl as unix nanoseconds in a plain text file. The integer
// representation round-trips exactly, so pagination never stops early or
// late because of precision loss.
type WatermarkStore struct {
	path string
}

func NewWatermarkStore(path string) *WatermarkStore {
	return &WatermarkStore{path: path}
}

// Read returns the stored watermark, or the zero time when none has been
// written yet (first run crawls until the result set ends).
func (w *WatermarkStore) Read() (time.Time, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read watermark: %w", err)
	}

	nanos, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse watermark: %w", err)
	}

	return time.Unix(0, nanos), nil
}

// Write stores t as the new watermark. The watermark never moves
// backwards; a t older than the stored value is ignored.
func (w *WatermarkStore) Write(t time.Time) error {
	current, err := w.Read()
	if err == nil && t.Before(current) {
		return nil
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(t.UnixNano(), 10)), 0644); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace watermark: %w", err)
	}
	return nil
}
