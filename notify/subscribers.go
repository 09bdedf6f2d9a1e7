package notify

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Subscribers is the file-backed recipient set, one chat ID per line.
type Subscribers struct {
	mu   sync.RWMutex
	path string
	ids  map[int64]struct{}
}

// LoadSubscribers reads the subscriber file; a missing file yields an
// empty set.
func LoadSubscribers(path string) (*Subscribers, error) {
	s := &Subscribers{
		path: path,
		ids:  make(map[int64]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open subscribers file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse subscriber %q: %w", line, err)
		}
		s.ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subscribers file: %w", err)
	}

	return s, nil
}

// Add registers a chat ID, reporting whether it was new.
func (s *Subscribers) Add(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove drops a chat ID, reporting whether it was present.
func (s *Subscribers) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

func (s *Subscribers) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// List returns the current chat IDs in stable order.
func (s *Subscribers) List() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Save writes the set back to disk atomically.
func (s *Subscribers) Save() error {
	var sb strings.Builder
	for _, id := range s.List() {
		fmt.Fprintf(&sb, "%d\n", id)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write subscribers file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace subscribers file: %w", err)
	}
	return nil
}
