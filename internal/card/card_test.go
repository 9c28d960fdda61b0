package card

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		prefix string
		want   string
	}{
		{name: "prefix stripped", title: "Hazbin Hotel Angel Dust", prefix: "Hazbin Hotel", want: "Angel Dust"},
		{name: "no prefix", title: "Angel Dust", prefix: "Hazbin Hotel", want: "Angel Dust"},
		{name: "prefix in middle", title: "The Hazbin Hotel Card", prefix: "Hazbin Hotel", want: "The Hazbin Hotel Card"},
		{name: "empty prefix", title: "Hazbin Hotel Angel Dust", prefix: "", want: "Hazbin Hotel Angel Dust"},
		{name: "title equals prefix", title: "Hazbin Hotel", prefix: "Hazbin Hotel", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.title, tt.prefix); got != tt.want {
				t.Fatalf("NormalizeTitle(%q, %q) = %q, want %q", tt.title, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestCardRoundTripKeepsSourceFields(t *testing.T) {
	src := `{
		"id": 8653412,
		"title": "Hazbin Hotel Alastor",
		"published_at": "2024-01-10T12:00:00-05:00",
		"vendor": "Hazbin Hotel",
		"images": [{"src": "https://cdn.example/alastor.png"}]
	}`

	var c Card
	if err := json.Unmarshal([]byte(src), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.ID != "8653412" {
		t.Fatalf("id = %q, want 8653412", c.ID)
	}
	if c.Title != "Hazbin Hotel Alastor" {
		t.Fatalf("title = %q", c.Title)
	}
	want, _ := time.Parse(time.RFC3339, "2024-01-10T12:00:00-05:00")
	if !c.PublishedAt.Equal(want) {
		t.Fatalf("published_at = %v, want %v", c.PublishedAt, want)
	}

	c.Title = NormalizeTitle(c.Title, "Hazbin Hotel")

	out, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var again Card
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("unmarshal round-trip: %v", err)
	}
	if again.ID != c.ID || !again.PublishedAt.Equal(c.PublishedAt) {
		t.Fatalf("round-trip changed id/published_at: %+v", again)
	}
	if again.Title != "Alastor" {
		t.Fatalf("normalized title lost on round-trip: %q", again.Title)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("unmarshal fields: %v", err)
	}
	for _, key := range []string{"vendor", "images"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("source field %q dropped on round-trip", key)
		}
	}
}

func TestCardStringID(t *testing.T) {
	var c Card
	src := `{"id": "gid://shop/Product/42", "title": "Card", "published_at": "2024-01-10T12:00:00Z"}`
	if err := json.Unmarshal([]byte(src), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.ID != "gid://shop/Product/42" {
		t.Fatalf("id = %q", c.ID)
	}
}

func TestCardMissingPublishedAt(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "absent", src: `{"id": 1, "title": "Card"}`},
		{name: "null", src: `{"id": 1, "title": "Card", "published_at": null}`},
		{name: "not a timestamp", src: `{"id": 1, "title": "Card", "published_at": "yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Card
			err := json.Unmarshal([]byte(tt.src), &c)
			if !errors.Is(err, ErrNoPublishedAt) {
				t.Fatalf("err = %v, want ErrNoPublishedAt", err)
			}
		})
	}
}

func TestSortByPublishedDesc(t *testing.T) {
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	cards := []Card{
		New("1", "oldest", base.Add(-2*time.Hour)),
		New("2", "newest", base),
		New("3", "middle", base.Add(-time.Hour)),
	}

	SortByPublishedDesc(cards)

	got := []string{cards[0].ID, cards[1].ID, cards[2].ID}
	want := []string{"2", "3", "1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
