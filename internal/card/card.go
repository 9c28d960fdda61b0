package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNoPublishedAt marks a card whose published_at field is missing or not a
// parseable timestamp. Newness is decided purely by published_at, so such a
// card cannot be diffed and the whole fetch that produced it must fail.
var ErrNoPublishedAt = errors.New("missing or unparseable published_at")

// Card is a single product entry from the remote catalog.
//
// The tracker only interprets id, title and published_at. Every other field
// the source sent is carried verbatim in raw and written back on encode, so a
// cache round-trip loses nothing.
type Card struct {
	ID          string
	Title       string
	PublishedAt time.Time

	raw map[string]json.RawMessage
}

// New builds a card from scratch. Used by tests and for cards that did not
// come from a source document.
func New(id, title string, publishedAt time.Time) Card {
	return Card{ID: id, Title: title, PublishedAt: publishedAt}
}

func (c *Card) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	// id is source-assigned and opaque: integer on this source, but keep
	// string ids working too.
	if idRaw, ok := fields["id"]; ok {
		var n json.Number
		if err := json.Unmarshal(idRaw, &n); err == nil {
			c.ID = n.String()
		} else {
			var s string
			if err := json.Unmarshal(idRaw, &s); err != nil {
				return fmt.Errorf("card id: %w", err)
			}
			c.ID = s
		}
	}

	if titleRaw, ok := fields["title"]; ok {
		if err := json.Unmarshal(titleRaw, &c.Title); err != nil {
			return fmt.Errorf("card %s title: %w", c.ID, err)
		}
	}

	pubRaw, ok := fields["published_at"]
	if !ok {
		return fmt.Errorf("card %s: %w", c.ID, ErrNoPublishedAt)
	}
	var pub string
	if err := json.Unmarshal(pubRaw, &pub); err != nil {
		return fmt.Errorf("card %s: %w", c.ID, ErrNoPublishedAt)
	}
	t, err := time.Parse(time.RFC3339, pub)
	if err != nil {
		return fmt.Errorf("card %s: %w", c.ID, ErrNoPublishedAt)
	}
	c.PublishedAt = t

	c.raw = fields
	return nil
}

func (c Card) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(c.raw)+3)
	for k, v := range c.raw {
		fields[k] = v
	}

	// Title may have been normalized after decode; the other two interpreted
	// fields stay exactly as the source sent them when we have them.
	title, err := json.Marshal(c.Title)
	if err != nil {
		return nil, err
	}
	fields["title"] = title

	if _, ok := fields["id"]; !ok {
		id, err := json.Marshal(c.ID)
		if err != nil {
			return nil, err
		}
		fields["id"] = id
	}
	if _, ok := fields["published_at"]; !ok {
		pub, err := json.Marshal(c.PublishedAt.Format(time.RFC3339))
		if err != nil {
			return nil, err
		}
		fields["published_at"] = pub
	}

	return json.Marshal(fields)
}

// NormalizeTitle strips a known source-specific prefix from a title. Only an
// exact match at the start counts; anything else is returned unchanged.
func NormalizeTitle(title, prefix string) string {
	if prefix == "" || !strings.HasPrefix(title, prefix) {
		return title
	}
	return strings.TrimLeft(strings.TrimPrefix(title, prefix), " ")
}

// SortByPublishedDesc orders cards newest-first. Ties keep their incoming
// order.
func SortByPublishedDesc(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].PublishedAt.After(cards[j].PublishedAt)
	})
}
