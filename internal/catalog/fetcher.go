package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"card-tracker/internal/card"
	"card-tracker/internal/config"
)

var (
	metricFetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cards_fetch_count_total",
		Help: "The total number of catalog fetches",
	}, []string{"status"})

	metricFetchPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cards_fetch_pages_total",
		Help: "The total number of catalog pages requested",
	})
)

// StatusError is returned when the source answers with an HTTP error status.
// Unlike a connectivity drop it fails the whole fetch.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source responded with status %d", e.Code)
}

// Fetcher pulls the full card catalog from the products.json endpoint.
type Fetcher struct {
	url         string
	pageLimit   int
	titlePrefix string
	client      *http.Client
}

func NewFetcher(cfg config.SourceConfig) *Fetcher {
	return &Fetcher{
		url:         cfg.URL,
		pageLimit:   cfg.PageLimit,
		titlePrefix: cfg.TitlePrefix,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// FetchAll pages through the catalog until the source returns an empty
// products list, then normalizes titles and sorts newest-first.
//
// A connectivity failure mid-way does not fail the fetch: whatever was
// accumulated so far is returned as that cycle's catalog. An HTTP error
// status or an undecodable card fails the whole fetch.
func (f *Fetcher) FetchAll(ctx context.Context) ([]card.Card, error) {
	var all []card.Card

	for page := 1; ; page++ {
		products, err := f.fetchPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				metricFetchCount.WithLabelValues("error").Inc()
				return nil, ctx.Err()
			}
			var statusErr *StatusError
			var decErr *decodeError
			if errors.As(err, &statusErr) || errors.As(err, &decErr) {
				metricFetchCount.WithLabelValues("error").Inc()
				return nil, err
			}
			// No connectivity. Degrade to what we already have.
			slog.Warn("Catalog fetch interrupted, keeping partial result",
				"page", page, "cards", len(all), "error", err)
			metricFetchCount.WithLabelValues("partial").Inc()
			break
		}
		if len(products) == 0 {
			metricFetchCount.WithLabelValues("success").Inc()
			break
		}
		all = append(all, products...)
	}

	for i := range all {
		all[i].Title = card.NormalizeTitle(all[i].Title, f.titlePrefix)
	}
	card.SortByPublishedDesc(all)
	return all, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, page int) ([]card.Card, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(f.pageLimit))
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()

	metricFetchPages.Inc()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var body struct {
		Products []card.Card `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &decodeError{page: page, err: err}
	}
	return body.Products, nil
}

type decodeError struct {
	page int
	err  error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("failed to decode page %d: %v", e.page, e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}
