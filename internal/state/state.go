// Package state persists crawl progress between scheduled runs.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"bekendmakingen/internal/models"
)

// ErrCorruptState is returned when a state file exists but cannot be decoded.
var ErrCorruptState = errors.New("corrupt state file")

// Load decodes the JSON file at path into v.
// A missing file is not an error; found reports whether it existed.
func Load(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read state %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}

	return true, nil
}

// Save writes v as indented JSON, replacing path atomically.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// URLList is the ordered, duplicate-free list of collected item URLs.
type URLList struct {
	items []models.URLItem
	seen  map[string]struct{}
}

// NewURLList builds a list from items, dropping duplicates and empty URLs.
func NewURLList(items ...models.URLItem) *URLList {
	l := &URLList{seen: make(map[string]struct{}, len(items))}
	for _, item := range items {
		l.Add(item)
	}

	return l
}

// LoadURLList reads a url list file. A missing file yields an empty list.
func LoadURLList(path string) (*URLList, error) {
	var items []models.URLItem
	if _, err := Load(path, &items); err != nil {
		return nil, err
	}

	return NewURLList(items...), nil
}

// Add appends item if its URL is new. It reports whether the item was added.
func (l *URLList) Add(item models.URLItem) bool {
	if item.URL == "" {
		return false
	}

	if _, ok := l.seen[item.URL]; ok {
		return false
	}

	l.seen[item.URL] = struct{}{}
	l.items = append(l.items, item)

	return true
}

// Contains reports whether url is in the list.
func (l *URLList) Contains(url string) bool {
	_, ok := l.seen[url]

	return ok
}

// Len returns the number of items.
func (l *URLList) Len() int {
	return len(l.items)
}

// Items returns a copy of the items in insertion order.
func (l *URLList) Items() []models.URLItem {
	out := make([]models.URLItem, len(l.items))
	copy(out, l.items)

	return out
}

// Save writes the list as a JSON array.
func (l *URLList) Save(path string) error {
	items := l.items
	if items == nil {
		items = []models.URLItem{}
	}

	return Save(path, items)
}

// HarvestState is the SRU harvester cursor.
type HarvestState struct {
	UpdatedAt   time.Time `json:"updated_at"`
	Seen        []string  `json:"seen,omitempty"`
	StartRecord int       `json:"start_record"`
	Total       int       `json:"total"`

	seenSet map[string]struct{}
}

// LoadHarvestState reads the harvester state; a missing file starts at record 1.
func LoadHarvestState(path string) (*HarvestState, error) {
	st := &HarvestState{}
	if _, err := Load(path, st); err != nil {
		return nil, err
	}

	if st.StartRecord < 1 {
		st.StartRecord = 1
	}

	st.index()

	return st, nil
}

func (s *HarvestState) index() {
	s.seenSet = make(map[string]struct{}, len(s.Seen))
	for _, id := range s.Seen {
		s.seenSet[id] = struct{}{}
	}
}

// HasSeen reports whether id was emitted by an earlier page or run.
func (s *HarvestState) HasSeen(id string) bool {
	if s.seenSet == nil {
		s.index()
	}

	_, ok := s.seenSet[id]

	return ok
}

// MarkSeen records id. It reports whether id was new.
func (s *HarvestState) MarkSeen(id string) bool {
	if s.HasSeen(id) {
		return false
	}

	s.seenSet[id] = struct{}{}
	s.Seen = append(s.Seen, id)

	return true
}

// Save stamps and writes the state.
func (s *HarvestState) Save(path string) error {
	s.UpdatedAt = time.Now().UTC()

	return Save(path, s)
}

// UploadProgress records the index of the last record pushed to the hub.
type UploadProgress struct {
	LastIndex int `json:"last_index"`
}

// LoadUploadProgress reads the upload progress file, returning 0 when absent or unreadable.
func LoadUploadProgress(path string) int {
	var p UploadProgress
	if _, err := Load(path, &p); err != nil {
		return 0
	}

	return p.LastIndex
}

// SaveUploadProgress writes the upload progress file.
func SaveUploadProgress(path string, index int) error {
	return Save(path, UploadProgress{LastIndex: index})
}
