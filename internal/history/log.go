package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"card-tracker/internal/card"
)

const historyFileName = "check_history.json"

// TimestampFormat is the human-readable form shown in the history view.
const TimestampFormat = "2006-01-02 15:04:05"

// Record is the outcome of one completed check cycle. One is appended per
// cycle even when nothing new was found.
type Record struct {
	Timestamp string      `json:"timestamp"`
	NewCards  []card.Card `json:"new_cards"`
}

// NewRecord stamps a record with the display form of t.
func NewRecord(t time.Time, newCards []card.Card) Record {
	if newCards == nil {
		newCards = []card.Card{}
	}
	return Record{
		Timestamp: t.Format(TimestampFormat),
		NewCards:  newCards,
	}
}

// Log is a bounded, newest-first on-disk list of check records. It is a
// display log, not an audit trail: the whole file is rewritten on every
// append and corruption just resets it.
type Log struct {
	path string
}

func NewLog(dataDir string) *Log {
	return &Log{path: filepath.Join(dataDir, historyFileName)}
}

// Load returns the recorded history, newest first. A missing or unreadable
// file is an empty history, never an error.
func (l *Log) Load() []Record {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read check history", "path", l.path, "error", err)
		}
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("Check history is corrupt, starting fresh", "path", l.path, "error", err)
		return nil
	}
	return records
}

// Append puts rec at the head, truncates to maxSize and rewrites the file
// atomically.
func (l *Log) Append(rec Record, maxSize int) error {
	records := append([]Record{rec}, l.Load()...)
	if maxSize > 0 && len(records) > maxSize {
		records = records[:maxSize]
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode check history: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", l.path, err)
	}
	return nil
}
