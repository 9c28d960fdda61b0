package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"card-tracker/internal/cache"
	"card-tracker/internal/card"
	"card-tracker/internal/history"
	"card-tracker/internal/notify"
)

var (
	metricCheckCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cards_check_count_total",
		Help: "The total number of check cycles",
	}, []string{"status"})

	metricNewCards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cards_new_total",
		Help: "The total number of new cards found",
	})
)

// ErrCheckInFlight is returned to a manual check request while a cycle is
// already running. Cycles are never run concurrently.
var ErrCheckInFlight = errors.New("a check is already running")

// MinInterval is the floor for the periodic check interval.
const MinInterval = time.Minute

// Source provides the full current catalog.
type Source interface {
	FetchAll(ctx context.Context) ([]card.Card, error)
}

// CycleResult is the snapshot published to subscribers after every completed
// cycle, whether or not anything new was found.
type CycleResult struct {
	CompletedAt   time.Time
	LastCheckTime time.Time
	Cards         []card.Card
	NewCards      []card.Card
}

// Tracker owns the fetch-diff-cache-notify cycle and the persisted state
// behind it. All state mutation happens inside RunCheck; consumers read
// snapshots via State or the subscription channel.
type Tracker struct {
	source   Source
	store    cache.Store
	history  *history.Log
	notifier notify.Notifier

	historySize int

	mu       sync.Mutex
	state    cache.State
	checking bool
	interval time.Duration

	subMu sync.Mutex
	subs  []chan CycleResult

	intervalCh chan time.Duration

	now func() time.Time
}

func New(source Source, store cache.Store, hist *history.Log, notifier notify.Notifier, interval time.Duration, historySize int) *Tracker {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Tracker{
		source:      source,
		store:       store,
		history:     hist,
		notifier:    notifier,
		historySize: historySize,
		interval:    interval,
		intervalCh:  make(chan time.Duration, 1),
		now:         time.Now,
	}
}

// Populate loads the persisted state, or bootstraps it with a synchronous
// fetch when there is nothing usable on disk. A missing or corrupt cache is
// recovered here, never surfaced to the user.
func (t *Tracker) Populate(ctx context.Context) error {
	state, err := t.store.Load()
	if err == nil {
		t.mu.Lock()
		t.state = *state
		t.mu.Unlock()
		slog.Info("Loaded tracker state",
			"cards", len(state.Cards),
			"last_check_time", state.LastCheckTime)
		return nil
	}

	if !errors.Is(err, cache.ErrNotFound) && !errors.Is(err, cache.ErrCorrupt) {
		return fmt.Errorf("failed to load tracker state: %w", err)
	}
	slog.Warn("No usable tracker state, bootstrapping from source", "reason", err)

	cards, err := t.source.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to bootstrap tracker state: %w", err)
	}

	state = &cache.State{LastCheckTime: t.now().UTC(), Cards: cards}
	t.mu.Lock()
	t.state = *state
	t.mu.Unlock()

	if err := t.store.Save(state); err != nil {
		slog.Error("Failed to persist bootstrapped state", "error", err)
	}
	slog.Info("Bootstrapped tracker state", "cards", len(cards))
	return nil
}

// RunCheck executes one cycle: fetch, diff against the previous check time,
// replace the card set, persist, record history, notify. It returns the new
// cards, which the diff takes from the PRE-cycle last check time. A fetch
// failure aborts the cycle without touching any state.
func (t *Tracker) RunCheck(ctx context.Context) ([]card.Card, error) {
	t.mu.Lock()
	if t.checking {
		t.mu.Unlock()
		return nil, ErrCheckInFlight
	}
	t.checking = true
	prev := t.state.LastCheckTime
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.checking = false
		t.mu.Unlock()
	}()

	slog.Info("Running cards check")
	fetched, err := t.source.FetchAll(ctx)
	if err != nil {
		metricCheckCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("check cycle aborted: %w", err)
	}

	// A zero prev means this is the very first populated cycle: the fetched
	// set is the baseline, nothing counts as new.
	var newCards []card.Card
	if !prev.IsZero() {
		for _, c := range fetched {
			if c.PublishedAt.After(prev) {
				newCards = append(newCards, c)
			}
		}
	}
	slog.Info("Check complete", "cards", len(fetched), "new", len(newCards))

	now := t.now().UTC()
	state := cache.State{LastCheckTime: now, Cards: fetched}
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	if err := t.store.Save(&state); err != nil {
		slog.Error("Failed to persist tracker state", "error", err)
	}
	if err := t.history.Append(history.NewRecord(now, newCards), t.historySize); err != nil {
		slog.Error("Failed to append check history", "error", err)
	}

	if len(newCards) > 0 {
		metricNewCards.Add(float64(len(newCards)))
		if err := t.notifier.NewCards(ctx, newCards); err != nil {
			slog.Error("Failed to send notification", "error", err)
		}
	}

	metricCheckCount.WithLabelValues("success").Inc()
	t.publish(CycleResult{
		CompletedAt:   now,
		LastCheckTime: now,
		Cards:         fetched,
		NewCards:      newCards,
	})
	return newCards, nil
}

// Run checks immediately, then on every tick until ctx is cancelled.
// Interval changes arrive over intervalCh and rearm the ticker without
// affecting a cycle already in flight.
func (t *Tracker) Run(ctx context.Context) {
	if _, err := t.RunCheck(ctx); err != nil {
		slog.Error("Check failed", "error", err)
	}

	t.mu.Lock()
	interval := t.interval
	t.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-t.intervalCh:
			ticker.Reset(d)
			slog.Info("Check interval updated", "interval", d)
		case <-ticker.C:
			if _, err := t.RunCheck(ctx); err != nil && !errors.Is(err, ErrCheckInFlight) {
				slog.Error("Check failed", "error", err)
			}
		}
	}
}

// SetInterval rearms the periodic timer. Values below MinInterval are
// clamped.
func (t *Tracker) SetInterval(d time.Duration) {
	if d < MinInterval {
		slog.Warn("Check interval below minimum, clamping",
			"configured", d, "minimum", MinInterval)
		d = MinInterval
	}

	t.mu.Lock()
	t.interval = d
	t.mu.Unlock()

	// Keep only the latest pending value.
	select {
	case <-t.intervalCh:
	default:
	}
	select {
	case t.intervalCh <- d:
	default:
	}
}

// Subscribe returns a channel of cycle results for the presentation layer.
// Events are dropped, not blocked on, when the subscriber falls behind.
func (t *Tracker) Subscribe(buf int) <-chan CycleResult {
	ch := make(chan CycleResult, buf)
	t.subMu.Lock()
	t.subs = append(t.subs, ch)
	t.subMu.Unlock()
	return ch
}

func (t *Tracker) publish(res CycleResult) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- res:
		default:
			slog.Warn("Subscriber is not keeping up, dropping cycle event")
		}
	}
}

// State returns a consistent snapshot of the card set and last check time as
// of the most recently completed cycle.
func (t *Tracker) State() ([]card.Card, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cards := make([]card.Card, len(t.state.Cards))
	copy(cards, t.state.Cards)
	return cards, t.state.LastCheckTime
}

// History returns the recorded check history, newest first.
func (t *Tracker) History() []history.Record {
	return t.history.Load()
}
