package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"card-tracker/internal/card"
)

func TestAppendIsBoundedAndNewestFirst(t *testing.T) {
	log := NewLog(t.TempDir())
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		rec := NewRecord(base.Add(time.Duration(i)*time.Hour), []card.Card{
			card.New(fmt.Sprintf("%d", i), fmt.Sprintf("Card %d", i), base),
		})
		if err := log.Append(rec, 10); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records := log.Load()
	if len(records) != 10 {
		t.Fatalf("records = %d, want 10", len(records))
	}
	if records[0].Timestamp != base.Add(14*time.Hour).Format(TimestampFormat) {
		t.Fatalf("newest record not at head: %q", records[0].Timestamp)
	}
	if records[9].Timestamp != base.Add(5*time.Hour).Format(TimestampFormat) {
		t.Fatalf("oldest surviving record wrong: %q", records[9].Timestamp)
	}
}

func TestAppendEmptyResultStillRecorded(t *testing.T) {
	log := NewLog(t.TempDir())

	rec := NewRecord(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), nil)
	if err := log.Append(rec, 10); err != nil {
		t.Fatalf("append: %v", err)
	}

	records := log.Load()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].NewCards == nil || len(records[0].NewCards) != 0 {
		t.Fatalf("new_cards = %v, want empty list", records[0].NewCards)
	}
}

func TestLoadMissingFile(t *testing.T) {
	log := NewLog(t.TempDir())
	if records := log.Load(); len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}

func TestLoadCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, historyFileName), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	log := NewLog(dir)
	if records := log.Load(); len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}

	// The log keeps working after corruption.
	rec := NewRecord(time.Now(), nil)
	if err := log.Append(rec, 10); err != nil {
		t.Fatalf("append after corruption: %v", err)
	}
	if records := log.Load(); len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
}
