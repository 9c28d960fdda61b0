package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"card-tracker/internal/card"
	"card-tracker/internal/config"
)

const (
	pushoverURL       = "https://api.pushover.net/1/messages.json"
	notificationTitle = "Card Tracker - New cards available!"

	// Cards announced once are never announced again. Source timestamps can
	// sit ahead of our wall clock, which would otherwise re-flag the same
	// card as new on consecutive cycles.
	announcedCacheSize = 512
)

// Notifier delivers a push for newly found cards. Delivery is best-effort:
// the tracker logs a returned error and moves on.
type Notifier interface {
	NewCards(ctx context.Context, cards []card.Card) error
}

// Disabled is the Notifier used when notifications are turned off.
type Disabled struct{}

func (Disabled) NewCards(context.Context, []card.Card) error {
	return nil
}

// Pushover posts new-card summaries to the Pushover messages endpoint.
type Pushover struct {
	userKey string
	appKey  string
	url     string
	client  *http.Client

	announced *lru.Cache[string, struct{}]
}

func NewPushover(cfg config.PushoverConfig) (*Pushover, error) {
	announced, err := lru.New[string, struct{}](announcedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Pushover{
		userKey: cfg.UserKey,
		appKey:  cfg.AppKey,
		url:     pushoverURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		announced: announced,
	}, nil
}

func (p *Pushover) NewCards(ctx context.Context, cards []card.Card) error {
	fresh := make([]card.Card, 0, len(cards))
	for _, c := range cards {
		if _, seen := p.announced.Get(c.ID); !seen {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	form := url.Values{
		"token":   {p.appKey},
		"user":    {p.userKey},
		"title":   {notificationTitle},
		"message": {buildMessage(fresh)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("pushover responded with status: %d", resp.StatusCode)
	}

	// Only delivered cards count as announced; a failed send retries on the
	// next cycle that still considers them new.
	for _, c := range fresh {
		p.announced.Add(c.ID, struct{}{})
	}
	return nil
}

func buildMessage(cards []card.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d new cards:", len(cards))
	for _, c := range cards {
		b.WriteString("\n- ")
		b.WriteString(c.Title)
	}
	return b.String()
}
