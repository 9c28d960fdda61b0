package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"card-tracker/internal/card"
)

const trackFileName = "tracked_cards.json"

var (
	// ErrNotFound means no state has ever been persisted.
	ErrNotFound = errors.New("no tracker state found")
	// ErrCorrupt means persisted state exists but cannot be decoded.
	ErrCorrupt = errors.New("tracker state is corrupt")
)

// State is the durable snapshot owned by the tracker: the card set as of the
// last successful check and when that check ran. It is always persisted as a
// single unit.
type State struct {
	LastCheckTime time.Time   `json:"last_check_time"`
	Cards         []card.Card `json:"cards"`
}

// Store persists tracker state between runs.
type Store interface {
	Load() (*State, error)
	Save(*State) error
}

// FileStore keeps the state in one JSON document on local disk.
type FileStore struct {
	path string
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{path: filepath.Join(dataDir, trackFileName)}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if state.LastCheckTime.IsZero() {
		return nil, fmt.Errorf("%w: missing last_check_time", ErrCorrupt)
	}
	return &state, nil
}

// Save overwrites the whole document. The write goes to a temp file first and
// is renamed into place, so a crash never leaves a half-written cache.
func (s *FileStore) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
