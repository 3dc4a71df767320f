package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/commitbot/internal/analysis"
	"github.com/user/commitbot/internal/config"
	"github.com/user/commitbot/internal/github"
	"github.com/user/commitbot/internal/monitor"
	"github.com/user/commitbot/internal/notifier"
	"github.com/user/commitbot/internal/storage"
	"github.com/user/commitbot/internal/telegram"
	"github.com/user/commitbot/pkg/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for error output
		logger.Init(logger.Options{Level: "debug"})
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	closeLog, err := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer closeLog()

	logger.Info().Msg("Starting GitHub commit bot")

	// Initialize database
	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open subscription store")
	}
	defer store.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	logActiveSubscriptions(store)

	// Initialize GitHub client
	ghClient, err := github.NewClient(cfg.GitHub.Token, github.Options{
		PerPage:      cfg.GitHub.PerPage,
		MaxRepos:     cfg.GitHub.MaxRepos,
		ActiveWithin: cfg.GitHub.ActiveWithin(),
		Timeout:      cfg.GitHub.Timeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize GitHub client")
	}
	if cfg.GitHub.Token == "" {
		logger.Warn().Msg("No GitHub token configured, API rate limits will be low")
	}

	// Initialize Telegram bot
	handlers := telegram.NewHandlers(store, ghClient, nil)
	bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.Debug, cfg.Telegram.RateLimit, handlers)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}
	if err := bot.RegisterCommands(); err != nil {
		logger.Warn().Err(err).Msg("Failed to register command menu")
	}

	// Create notifier
	notifyOpts := []notifier.Option{notifier.WithCommitDetailer(ghClient)}
	if cfg.AI.Enabled {
		enricher := analysis.NewOllamaEnricher(analysis.OllamaConfig{
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Token:   cfg.AI.Token,
			Timeout: cfg.AI.Timeout,
		})
		notifyOpts = append(notifyOpts, notifier.WithEnricher(enricher))
		logger.Info().Str("model", enricher.ModelName()).Str("base_url", cfg.AI.BaseURL).Msg("Commit analysis enabled")
	}
	notify := notifier.NewNotifier(bot, notifyOpts...)
	handlers.SetCommitPreview(ghClient, notify)

	// Start monitor
	mon := monitor.New(store, ghClient, notify,
		monitor.WithMaxNotificationsPerSubscription(cfg.Monitor.MaxNotifications))
	handlers.SetMonitorStatus(mon)
	mon.Start(cfg.Monitor.IntervalMinutes)

	// Set up HTTP router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/status", statusHandler(store, mon))

	server := &http.Server{
		Addr:    cfg.ServerAddress(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("address", cfg.ServerAddress()).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start Telegram bot
	bot.Start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Let an in-flight check cycle finish before the store closes.
	mon.Stop()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	bot.Stop()

	logger.Info().Msg("Shutdown complete")
}

func logActiveSubscriptions(store *storage.SubscriptionStore) {
	subs, err := store.ListActive()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to list active subscriptions")
		return
	}
	logger.Info().Int("count", len(subs)).Msg("Loaded active subscriptions")
	for _, sub := range subs {
		logger.Debug().
			Str("subscription_id", sub.ID).
			Int64("user_id", sub.UserID).
			Str("target", sub.Target()).
			Str("last_commit", sub.LastCommitSHA).
			Msg("Active subscription")
	}
}

type statusResponse struct {
	Running   bool                `json:"running"`
	Store     storage.Stats       `json:"store"`
	LastCycle monitor.CycleReport `json:"last_cycle"`
}

func statusHandler(store *storage.SubscriptionStore, mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load store stats")
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusResponse{
			Running:   mon.IsRunning(),
			Store:     stats,
			LastCycle: mon.LastCycle(),
		})
	}
}
