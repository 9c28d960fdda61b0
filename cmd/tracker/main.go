package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"card-tracker/internal/cache"
	"card-tracker/internal/catalog"
	"card-tracker/internal/config"
	"card-tracker/internal/history"
	"card-tracker/internal/notify"
	"card-tracker/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config/tracker.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single check and exit")
	flag.Parse()

	// Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Tracker.DataDir, 0o755); err != nil {
		logger.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Init Store
	var store cache.Store
	if cfg.Store.Type == "valkey" {
		logger.Info("Using Valkey store", "address", cfg.Store.Address)
		s, err := cache.NewValkeyStore(cfg.Store.Address, cfg.Store.Password)
		if err != nil {
			logger.Error("Failed to initialize Valkey store", "error", err)
			os.Exit(1)
		}
		store = s
	} else {
		logger.Info("Using file store", "dir", cfg.Tracker.DataDir)
		store = cache.NewFileStore(cfg.Tracker.DataDir)
	}

	// Init Components
	var notifier notify.Notifier = notify.Disabled{}
	if cfg.Pushover.Enabled {
		p, err := notify.NewPushover(cfg.Pushover)
		if err != nil {
			logger.Error("Failed to initialize Pushover", "error", err)
			os.Exit(1)
		}
		notifier = p
		logger.Info("Pushover notifications enabled")
	}

	fetcher := catalog.NewFetcher(cfg.Source)
	hist := history.NewLog(cfg.Tracker.DataDir)
	tr := tracker.New(fetcher, store, hist, notifier, cfg.CheckInterval(), cfg.Tracker.HistorySize)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	if err := tr.Populate(ctx); err != nil {
		logger.Error("Failed to populate tracker", "error", err)
		os.Exit(1)
	}

	if *once {
		newCards, err := tr.RunCheck(ctx)
		if err != nil {
			logger.Error("Check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Check finished", "new_cards", len(newCards))
		return
	}

	// Metrics Server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Info("Starting metrics server", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	// Cycle events go to the log; a UI would subscribe the same way.
	events := tr.Subscribe(8)
	go func() {
		for res := range events {
			logger.Info("Cycle completed",
				"last_check_time", res.LastCheckTime,
				"cards", len(res.Cards),
				"new_cards", len(res.NewCards))
		}
	}()

	// Run Tracker
	logger.Info("Starting card tracker",
		"interval", cfg.CheckInterval(),
		"source", cfg.Source.URL,
		"history_size", cfg.Tracker.HistorySize)

	tr.Run(ctx)
	logger.Info("Tracker stopped")
}
